package flags

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestAddToggleFlagParsesValues(testInstance *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		expectedValue   bool
		expectedChanged bool
	}{
		{name: "DefaultFalse", arguments: []string{}, expectedValue: false, expectedChanged: false},
		{name: "ImplicitTrue", arguments: []string{"--yes"}, expectedValue: true, expectedChanged: true},
		{name: "ShorthandTrue", arguments: []string{"-y"}, expectedValue: true, expectedChanged: true},
		{name: "ExplicitYes", arguments: []string{"--yes=yes"}, expectedValue: true, expectedChanged: true},
		{name: "ExplicitTrueUppercase", arguments: []string{"--yes=TRUE"}, expectedValue: true, expectedChanged: true},
		{name: "ExplicitNo", arguments: []string{"--yes=no"}, expectedValue: false, expectedChanged: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			command := &cobra.Command{}

			var toggleValue bool
			AddToggleFlag(command.Flags(), &toggleValue, "yes", "y", false, "Confirm prompts")

			require.NoError(testInstance, command.ParseFlags(testCase.arguments))
			require.Equal(testInstance, testCase.expectedValue, toggleValue)

			flag := command.Flags().Lookup("yes")
			require.NotNil(testInstance, flag)
			require.Equal(testInstance, testCase.expectedChanged, flag.Changed)
		})
	}
}

func TestAddToggleFlagRejectsInvalidValues(testInstance *testing.T) {
	command := &cobra.Command{}

	var toggleValue bool
	AddToggleFlag(command.Flags(), &toggleValue, "yes", "", false, "Confirm prompts")

	require.Error(testInstance, command.ParseFlags([]string{"--yes=maybe"}))
	require.False(testInstance, toggleValue)
}

func TestFormatToggleUsageHighlightsDefault(testInstance *testing.T) {
	require.Equal(testInstance, "`<yes|NO>` Confirm prompts", formatToggleUsage("Confirm prompts", false))
	require.Equal(testInstance, "`<YES|no>`", formatToggleUsage("", true))
}

package ui

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const savedPostsURLConstant = "https://bsky.app/saved"

func TestStatusFormatter(testInstance *testing.T) {
	testCases := []struct {
		name           string
		formatter      StatusFormatter
		failure        error
		expectedStatus Status
		buildsSuccess  bool
	}{
		{
			name:           "success_with_link",
			formatter:      StatusFormatter{SavedPostsURL: savedPostsURLConstant},
			buildsSuccess:  true,
			expectedStatus: Status{State: StatusSuccess, Message: "Done! View your saved posts: https://bsky.app/saved"},
		},
		{
			name:           "success_without_link",
			formatter:      StatusFormatter{SavedPostsURL: "  "},
			buildsSuccess:  true,
			expectedStatus: Status{State: StatusSuccess, Message: "Done!"},
		},
		{
			name:           "failure_message",
			formatter:      StatusFormatter{SavedPostsURL: savedPostsURLConstant},
			failure:        errors.New("unable to open session for alice.example: bad password"),
			expectedStatus: Status{State: StatusError, Message: "unable to open session for alice.example: bad password"},
		},
		{
			name:           "failure_without_message",
			formatter:      StatusFormatter{},
			failure:        errors.New(" "),
			expectedStatus: Status{State: StatusError, Message: "Unknown error"},
		},
		{
			name:           "failure_nil",
			formatter:      StatusFormatter{},
			expectedStatus: Status{State: StatusError, Message: "Unknown error"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			if testCase.buildsSuccess {
				require.Equal(testInstance, testCase.expectedStatus, testCase.formatter.BuildSuccessStatus())
				return
			}
			require.Equal(testInstance, testCase.expectedStatus, testCase.formatter.BuildErrorStatus(testCase.failure))
		})
	}
}

func TestConsoleProgressReporterWritesLinesToPlainWriters(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	outputBuffer := &strings.Builder{}
	reporter := NewConsoleProgressReporter(outputBuffer, zap.New(observedCore))
	require.Equal(testInstance, Status{State: StatusIdle}, reporter.Current())

	reporter.Report("Reading batch 1")
	reporter.Report("Creating bookmark 1")
	require.Equal(testInstance, Status{State: StatusWorking, Message: "Creating bookmark 1"}, reporter.Current())

	reporter.Finish(Status{State: StatusSuccess, Message: "Done!"})
	require.Equal(testInstance, StatusSuccess, reporter.Current().State)

	require.Equal(testInstance, "Reading batch 1\nCreating bookmark 1\nDone!\n", outputBuffer.String())
	require.Equal(testInstance, 2, observedLogs.FilterMessage("Migration progress").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Migration finished").Len())
}

func TestConsoleProgressReporterOverwritesOnTerminals(testInstance *testing.T) {
	outputBuffer := &strings.Builder{}
	reporter := NewConsoleProgressReporter(outputBuffer, nil)
	reporter.overwrite = true

	reporter.Report("Reading batch 1")
	reporter.Report("Reading batch 2")
	reporter.Finish(Status{State: StatusError, Message: "boom"})

	require.Equal(testInstance, "\r\x1b[2KReading batch 1\r\x1b[2KReading batch 2\r\x1b[2Kboom\n", outputBuffer.String())
}

func TestConsoleProgressReporterToleratesNil(testInstance *testing.T) {
	var reporter *ConsoleProgressReporter
	reporter.Report("ignored")
	reporter.Finish(Status{State: StatusSuccess})

	NewConsoleProgressReporter(nil, nil).Report("discarded")
}

type unwrappingWriter struct {
	strings.Builder
}

func (writer *unwrappingWriter) Unwrap() io.Writer {
	return &writer.Builder
}

func TestIsTerminalWriterUnwrapsWriters(testInstance *testing.T) {
	require.False(testInstance, isTerminalWriter(&strings.Builder{}))
	require.False(testInstance, isTerminalWriter(&unwrappingWriter{}))
	require.False(testInstance, isTerminalWriter(nil))
}

package migrate

import (
	"fmt"
	"strings"
)

const unsupportedModeTemplateConstant = "unsupported mode %q (expected %s or %s)"

// Mode selects whether pin-marker replies survive the migration.
type Mode string

// Mode enumerations.
const (
	ModeKeep   Mode = Mode("keep")
	ModeDelete Mode = Mode("delete")
)

// ParseMode normalizes value into a Mode. An empty value selects ModeKeep.
func ParseMode(value string) (Mode, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	switch Mode(normalizedValue) {
	case "", ModeKeep:
		return ModeKeep, nil
	case ModeDelete:
		return ModeDelete, nil
	default:
		return "", fmt.Errorf(unsupportedModeTemplateConstant, value, ModeKeep, ModeDelete)
	}
}

// UnmarshalText decodes configuration values into a Mode.
func (mode *Mode) UnmarshalText(text []byte) error {
	parsedMode, parseError := ParseMode(string(text))
	if parseError != nil {
		return parseError
	}
	*mode = parsedMode
	return nil
}

// DeletesMarkers reports whether the mode removes pin-marker replies.
func (mode Mode) DeletesMarkers() bool {
	return mode == ModeDelete
}

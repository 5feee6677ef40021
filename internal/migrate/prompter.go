package migrate

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	affirmativeShortResponseConstant = "y"
	affirmativeLongResponseConstant  = "yes"
	promptLineTerminatorConstant     = "\n"
	emptySecretMessageConstant       = "no password entered"
)

// ConfirmationPrompter asks the user to confirm an irreversible action.
type ConfirmationPrompter interface {
	Confirm(prompt string) (bool, error)
}

// SecretPrompter asks the user for a secret without echoing it.
type SecretPrompter interface {
	ReadSecret(prompt string) (string, error)
}

// IOPrompter reads confirmations and secrets from an input stream. Secrets are
// read without echo when the input is a terminal.
type IOPrompter struct {
	input  io.Reader
	reader *bufio.Reader
	writer io.Writer
}

// NewIOPrompter constructs a prompter from the provided reader and writer.
func NewIOPrompter(input io.Reader, output io.Writer) *IOPrompter {
	if input == nil {
		input = strings.NewReader("")
	}
	if output == nil {
		output = io.Discard
	}
	return &IOPrompter{input: input, reader: bufio.NewReader(input), writer: output}
}

// Confirm writes the prompt and interprets affirmative responses (y/yes).
func (prompter *IOPrompter) Confirm(prompt string) (bool, error) {
	if _, writeError := io.WriteString(prompter.writer, prompt); writeError != nil {
		return false, writeError
	}

	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && !errors.Is(readError, io.EOF) {
		return false, readError
	}

	switch strings.TrimSpace(strings.ToLower(response)) {
	case affirmativeShortResponseConstant, affirmativeLongResponseConstant:
		return true, nil
	default:
		return false, nil
	}
}

// ReadSecret writes the prompt and reads one line without echo on terminals.
func (prompter *IOPrompter) ReadSecret(prompt string) (string, error) {
	if _, writeError := io.WriteString(prompter.writer, prompt); writeError != nil {
		return "", writeError
	}

	var secret string
	if inputFile, isFile := prompter.input.(*os.File); isFile && term.IsTerminal(int(inputFile.Fd())) {
		secretBytes, readError := term.ReadPassword(int(inputFile.Fd()))
		_, _ = io.WriteString(prompter.writer, promptLineTerminatorConstant)
		if readError != nil {
			return "", readError
		}
		secret = string(secretBytes)
	} else {
		line, readError := prompter.reader.ReadString('\n')
		if readError != nil && !errors.Is(readError, io.EOF) {
			return "", readError
		}
		secret = line
	}

	secret = strings.TrimSpace(secret)
	if len(secret) == 0 {
		return "", errors.New(emptySecretMessageConstant)
	}
	return secret, nil
}

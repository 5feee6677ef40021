package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	successMessageConstant           = "Done!"
	successWithLinkTemplateConstant  = "%s View your saved posts: %s"
	unknownFailureMessageConstant    = "Unknown error"
	clearLinePrefixConstant          = "\r\x1b[2K"
	lineTerminatorConstant           = "\n"
	progressLogMessageConstant       = "Migration progress"
	logFieldProgressConstant         = "progress"
	logFieldStatusConstant           = "status"
	terminalStatusLogMessageConstant = "Migration finished"
)

// StatusState enumerates the states a migration run passes through.
type StatusState string

// Status state enumerations.
const (
	StatusIdle    StatusState = StatusState("idle")
	StatusWorking StatusState = StatusState("working")
	StatusSuccess StatusState = StatusState("success")
	StatusError   StatusState = StatusState("error")
)

// Status is the latest known state of a run.
type Status struct {
	State   StatusState
	Message string
}

// StatusFormatter builds human-readable terminal messages.
type StatusFormatter struct {
	SavedPostsURL string
}

// BuildSuccessStatus formats the terminal success status.
func (formatter StatusFormatter) BuildSuccessStatus() Status {
	savedPostsURL := strings.TrimSpace(formatter.SavedPostsURL)
	if len(savedPostsURL) == 0 {
		return Status{State: StatusSuccess, Message: successMessageConstant}
	}
	return Status{State: StatusSuccess, Message: fmt.Sprintf(successWithLinkTemplateConstant, successMessageConstant, savedPostsURL)}
}

// BuildErrorStatus formats the terminal error status from the first unrecovered failure.
func (formatter StatusFormatter) BuildErrorStatus(failure error) Status {
	if failure == nil || len(strings.TrimSpace(failure.Error())) == 0 {
		return Status{State: StatusError, Message: unknownFailureMessageConstant}
	}
	return Status{State: StatusError, Message: failure.Error()}
}

// ConsoleProgressReporter writes progress messages to a console writer.
type ConsoleProgressReporter struct {
	writer    io.Writer
	logger    *zap.Logger
	overwrite bool
	pending   bool
	current   Status
	mutex     sync.Mutex
}

// NewConsoleProgressReporter constructs a reporter writing to writer. Messages
// overwrite each other when writer is a terminal. Every message is mirrored to
// logger at debug level.
func NewConsoleProgressReporter(writer io.Writer, logger *zap.Logger) *ConsoleProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleProgressReporter{
		writer:    writer,
		logger:    logger,
		overwrite: isTerminalWriter(writer),
		current:   Status{State: StatusIdle},
	}
}

// Report records message as the latest working state and displays it.
func (reporter *ConsoleProgressReporter) Report(message string) {
	if reporter == nil {
		return
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	reporter.current = Status{State: StatusWorking, Message: message}
	reporter.logger.Debug(progressLogMessageConstant, zap.String(logFieldProgressConstant, message))

	if reporter.overwrite {
		_, _ = io.WriteString(reporter.writer, clearLinePrefixConstant+message)
		reporter.pending = true
		return
	}
	_, _ = io.WriteString(reporter.writer, message+lineTerminatorConstant)
}

// Finish displays the terminal status on its own line.
func (reporter *ConsoleProgressReporter) Finish(status Status) {
	if reporter == nil {
		return
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	reporter.current = status
	reporter.logger.Debug(terminalStatusLogMessageConstant, zap.String(logFieldStatusConstant, string(status.State)))

	prefix := ""
	if reporter.pending {
		prefix = clearLinePrefixConstant
		reporter.pending = false
	}
	_, _ = io.WriteString(reporter.writer, prefix+status.Message+lineTerminatorConstant)
}

// Current returns the latest status.
func (reporter *ConsoleProgressReporter) Current() Status {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	return reporter.current
}

func isTerminalWriter(writer io.Writer) bool {
	for writer != nil {
		switch typedWriter := writer.(type) {
		case *os.File:
			return term.IsTerminal(int(typedWriter.Fd()))
		case interface{ Unwrap() io.Writer }:
			writer = typedWriter.Unwrap()
		default:
			return false
		}
	}
	return false
}

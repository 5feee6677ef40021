// Package cli constructs the pin2saved command-line interface, wiring the
// Cobra command hierarchy, the configuration loader with its embedded
// defaults, and the diagnostic and console loggers.
package cli

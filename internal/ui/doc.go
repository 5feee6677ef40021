// Package ui renders migration progress and the terminal status for CLI users.
//
// Progress messages are transient: on a terminal each message replaces the
// previous one, elsewhere every message is written on its own line. Detailed
// telemetry continues to flow through the structured logger.
package ui

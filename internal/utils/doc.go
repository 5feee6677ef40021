// Package utils exposes the configuration, logging, and command-context helpers
// shared by the CLI commands.
//
// ConfigurationLoader layers embedded defaults, an optional configuration file,
// dotenv files, and PIN2SAVED_* environment variables through Viper.
// LoggerFactory builds the diagnostic zap logger together with a console logger
// for human-readable output.
package utils

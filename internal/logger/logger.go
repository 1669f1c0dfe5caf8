package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the root logger every component logger derives from.
var Logger zerolog.Logger

// Initialize sets up the root logger. format is "console" or "json"; console
// output is meant for operators watching the engine, json for log shipping.
func Initialize(logLevel, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch format {
	case "json":
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	default:
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02 15:04:05",
		}
		Logger = zerolog.New(consoleWriter).With().Timestamp().Caller().Logger()
	}

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Replace the stdlib-style global with the configured logger.
	log.Logger = Logger
}

// GetForComponent returns a logger tagged with a component field for
// filtering.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init initializes the global logger
func Init(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var output io.Writer = os.Stdout
	if os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()

	Logger.Debug().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// SetOutput redirects the global logger, mainly for tests.
func SetOutput(w io.Writer) {
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

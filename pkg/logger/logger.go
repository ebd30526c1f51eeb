package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New configures zerolog with JSON output and returns the process logger.
// Components derive child loggers from it with their own tags.
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailatlas").
		Logger()

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return logger.Level(parsed)
}

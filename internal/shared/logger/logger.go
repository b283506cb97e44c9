package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New initializes a zerolog.Logger tagged with the binary name.
// 'devMode' enables human-readable console logging at debug level.
func New(devMode bool, service string) zerolog.Logger {
	return newWithWriter(os.Stderr, devMode, service)
}

func newWithWriter(out io.Writer, devMode bool, service string) zerolog.Logger {
	var logger zerolog.Logger

	if devMode {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(consoleWriter).Level(zerolog.DebugLevel)
	} else {
		logger = zerolog.New(out).Level(zerolog.InfoLevel)
	}

	return logger.With().Timestamp().Str("service", service).Logger()
}

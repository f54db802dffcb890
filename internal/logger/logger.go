package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error, fatal or panic (default info)
//   - format: "json" for production, "pretty" for console output
//
// Every entry carries the service name so that API and worker logs can be
// told apart when shipped to the same sink.
func Setup(level, format, service string) zerolog.Logger {
	return New(os.Stdout, level, format, service)
}

// New is Setup with an explicit destination.
func New(out io.Writer, level, format, service string) zerolog.Logger {
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Caller().
		Logger()
}

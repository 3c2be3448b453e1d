// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects the level and output format.
type Config struct {
	Level   string
	Console bool
}

// New returns a logger writing to stdout: human-readable when cfg.Console is
// set, JSON lines otherwise.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorFieldName = "err"

	w := out
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(w).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return def
	}
}

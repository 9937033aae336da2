// Package logging builds the zerolog loggers used across brainmem.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	Level  string    // debug, info, warn, error (default: info)
	Format Format    // json or console (default: json)
	Output io.Writer // default: os.Stderr
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New creates a logger from cfg. A nil config yields an info-level JSON
// logger on stderr.
func New(cfg *Config) (zerolog.Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch cfg.Format {
	case "", FormatJSON:
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("app", "brainmem").
		Logger(), nil
}

// Component returns a child logger with the component field set.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

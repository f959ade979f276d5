// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Components derive child loggers
// from it via WithComponent rather than constructing their own.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Config controls the output format and verbosity of the base logger.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "json" or "pretty"
}

// Init installs the process-wide logger per cfg. Must be called once at
// startup before any component derives a child logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithInstance returns a child logger tagged with a component and instance name.
func WithInstance(component, instance string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("instance", instance).Logger()
}

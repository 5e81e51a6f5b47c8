// Package logger builds the zerolog loggers used across the downloader.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config represents logger configuration.
type Config struct {
	// Level is a zerolog level name. Empty falls back to APP_ENV.
	Level string
	// AppEnv selects the default level: debug outside production.
	AppEnv string
	// Output defaults to os.Stderr.
	Output io.Writer
	// NoColor disables ANSI colors.
	NoColor bool
}

// New creates a console logger for component, configured from the
// WPLACE_LOG_LEVEL and APP_ENV environment variables.
func New(component string) zerolog.Logger {
	return NewWithConfig(component, Config{
		Level:  os.Getenv("WPLACE_LOG_LEVEL"),
		AppEnv: os.Getenv("APP_ENV"),
	})
}

// NewWithConfig creates a console logger for component.
func NewWithConfig(component string, cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: "2006-01-02 15:04:05",
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return fmt.Sprintf("[%s]", component)
			}
			return fmt.Sprintf("[%s] %s", component, i)
		},
	}

	return zerolog.New(writer).
		Level(level(cfg)).
		With().
		Timestamp().
		Logger()
}

// OrNop returns l, or a disabled logger when l is nil.
func OrNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

func level(cfg Config) zerolog.Level {
	if cfg.Level != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			return lvl
		}
	}
	switch cfg.AppEnv {
	case "production", "staging":
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

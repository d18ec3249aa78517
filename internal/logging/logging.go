// Package logging builds the service's zerolog logger from config.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/config"
)

// New creates a logger configured from config. Supports
// "trace" | "debug" | "info" | "warn" | "error" levels and
// "json" | "console" formats; dev forces console output.
func New(cfg config.LogConfig, dev bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

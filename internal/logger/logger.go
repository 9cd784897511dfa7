// Package logger builds the slog.Logger used across the service.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lepinkainen/humanlog"
)

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger, or a human readable one when format is "text".
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == "text" {
		return slog.New(humanlog.NewHandler(w, &humanlog.Options{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetupDefault installs the logger as the slog default and returns it.
func SetupDefault(w io.Writer, format, level string) *slog.Logger {
	l := New(w, format, ParseLevel(level))
	slog.SetDefault(l)
	return l
}

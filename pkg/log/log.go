// Package log configures the process-wide slog logger used by the pdfflow binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a textual level to a slog.Level, falling back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
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

// Setup installs the default logger. Format "json" selects the JSON handler, anything else text.
func Setup(logLevel, format string) {
	slog.SetDefault(New(os.Stderr, logLevel, format))
}

// New builds a logger writing to w.
func New(w io.Writer, logLevel, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

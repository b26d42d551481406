// Package logging provides structured logging for runtime-http-bench.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Formats accepted by NewLogger.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPretty = "pretty"
)

// NewLogger creates a structured logger writing to stderr.
// Format should be "json", "text" or "pretty".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(newHandler(os.Stderr, format, logLevel, logLevel == slog.LevelDebug))
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing. Pretty output is written without colour.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(newHandler(w, format, parseLevel(level), false))
}

func newHandler(w io.Writer, format string, level slog.Level, addSource bool) slog.Handler {
	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: addSource})
	case FormatText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: addSource})
	default:
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  addSource,
			TimeFormat: time.TimeOnly,
			NoColor:    w != os.Stderr,
		})
	}
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

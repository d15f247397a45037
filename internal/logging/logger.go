package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a config string to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
// The writer must be stderr when the process speaks MCP over stdio;
// stdout carries the protocol stream.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

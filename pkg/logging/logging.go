// Package logging provides structured JSON logging for client components.
package logging

import (
	"log/slog"
	"os"
)

// Logger is a structured logger scoped to one client component.
type Logger struct {
	*slog.Logger
}

// New creates a component logger writing JSON to stdout.
func New(component string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "loom"),
	)

	return &Logger{Logger: logger}
}

// Wrap adopts an existing slog logger, tagging it with a component field.
// Useful when the embedding application already configured its handler.
func Wrap(logger *slog.Logger, component string) *Logger {
	if logger == nil {
		return New(component, slog.LevelInfo)
	}
	return &Logger{Logger: logger.With(slog.String("component", component))}
}

// WithThread returns a logger with thread-specific fields.
func (l *Logger) WithThread(threadID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("thread_id", threadID),
		),
	}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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

package annbed

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with container-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContainer adds the container's id field to the logger.
func (l *Logger) WithContainer(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("container", id),
	}
}

// WithElement adds collection and element name fields to the logger.
func (l *Logger) WithElement(collection, name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", collection, "element", name),
	}
}

// LogFlush logs a whole-container flush.
func (l *Logger) LogFlush(ctx context.Context, elements int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"elements", elements,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"elements", elements,
		)
	}
}

// LogSubset logs a subset operation.
func (l *Logger) LogSubset(ctx context.Context, nObs, nVars int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "subset failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "subset completed",
			"n_obs", nObs,
			"n_vars", nVars,
		)
	}
}

// LogConcat logs a concatenation.
func (l *Logger) LogConcat(ctx context.Context, inputs, joinLen int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "concat failed",
			"inputs", inputs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "concat completed",
			"inputs", inputs,
			"join_axis_length", joinLen,
		)
	}
}

// LogDropped logs a collection member dropped during concatenation.
func (l *Logger) LogDropped(ctx context.Context, collection, name, reason string) {
	l.WarnContext(ctx, "dropped during concat",
		"collection", collection,
		"element", name,
		"reason", reason,
	)
}

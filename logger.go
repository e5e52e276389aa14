package scoutdex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with scoutdex-specific context.
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
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithQueryID adds a query_id field to the logger (useful for correlating
// every log line of one request).
func (l *Logger) WithQueryID(queryID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("query_id", queryID),
	}
}

// WithProjection adds a projection field to the logger.
func (l *Logger) WithProjection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("projection", name),
	}
}

// WithStrategy adds a strategy field to the logger.
func (l *Logger) WithStrategy(strategy string) *Logger {
	return &Logger{
		Logger: l.Logger.With("strategy", strategy),
	}
}

// LogSearch logs a completed (or failed) search.
func (l *Logger) LogSearch(ctx context.Context, strategy string, results int, degraded bool, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"strategy", strategy,
			"elapsed", elapsed,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"strategy", strategy,
			"results", results,
			"degraded", degraded,
			"elapsed", elapsed,
		)
	}
}

// LogUnboundedScan logs a query that fell back to the default projection.
// These are worth watching: they read a single global partition.
func (l *Logger) LogUnboundedScan(ctx context.Context, projection string) {
	l.WarnContext(ctx, "no coverable predicate, falling back to unbounded scan",
		"projection", projection,
	)
}

// LogBranchFailure logs one fan-out branch that failed while the query as a
// whole carried on degraded.
func (l *Logger) LogBranchFailure(ctx context.Context, projection string, err error) {
	l.WarnContext(ctx, "fan-out branch failed, degrading",
		"projection", projection,
		"error", err,
	)
}

// LogBrowse logs a browse page read.
func (l *Logger) LogBrowse(ctx context.Context, projection, key string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "browse failed",
			"projection", projection,
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "browse completed",
			"projection", projection,
			"key", key,
			"results", results,
		)
	}
}

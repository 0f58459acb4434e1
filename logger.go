package ternbase

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with ternbase-specific context.
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

// WithSection adds a database section name to the logger.
func (l *Logger) WithSection(section string) *Logger {
	return &Logger{
		Logger: l.Logger.With("section", section),
	}
}

// WithSid adds a signature id field to the logger.
func (l *Logger) WithSid(sid uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("sid", sid),
	}
}

// WithProgress adds a generator progress cursor to the logger.
func (l *Logger) WithProgress(progress uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("progress", progress),
	}
}

// LogOpen logs a database open.
func (l *Logger) LogOpen(ctx context.Context, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "database open failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database opened",
			"filename", filename,
		)
	}
}

// LogSave logs a database save.
func (l *Logger) LogSave(ctx context.Context, filename string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "database save failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database saved",
			"filename", filename,
			"bytes", bytes,
		)
	}
}

// LogTruncated logs that a run hit a storage ceiling and wound down early.
func (l *Logger) LogTruncated(ctx context.Context, section string, progress uint64, name string) {
	l.WarnContext(ctx, "storage full, truncating",
		"section", section,
		"progress", progress,
		"name", name,
	)
}

// LogRebuild logs an index rebuild.
func (l *Logger) LogRebuild(ctx context.Context, section string, entries uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index rebuild failed",
			"section", section,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index rebuilt",
			"section", section,
			"entries", entries,
		)
	}
}

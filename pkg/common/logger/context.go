package logger

import "context"

// LoggerContext accumulates attributes over the lifetime of an operation so
// later log calls automatically include everything learned so far. It is not
// safe for concurrent use; it is intended for a single request or task flow.
type LoggerContext struct {
	logger *Logger
	attrs  []any
}

// NewLoggerContext wraps a Logger for attribute accumulation.
func NewLoggerContext(logger *Logger) *LoggerContext {
	return &LoggerContext{logger: logger}
}

// Add appends key/value pairs that will be attached to all subsequent records.
func (lc *LoggerContext) Add(args ...any) { lc.attrs = append(lc.attrs, args...) }

// Debug logs at LevelDebug including all accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger.write(ctx, LevelDebug, 3, msg, append(lc.attrs, args...)...)
}

// Info logs at LevelInfo including all accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger.write(ctx, LevelInfo, 3, msg, append(lc.attrs, args...)...)
}

// Warn logs at LevelWarn including all accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger.write(ctx, LevelWarn, 3, msg, append(lc.attrs, args...)...)
}

// Error logs at LevelError including all accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger.write(ctx, LevelError, 3, msg, append(lc.attrs, args...)...)
}

package logger

import "log/slog"

// Level represents a logging severity. Values mirror slog's levels so the two
// can be converted directly.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

package logging

import (
	"context"
	"log/slog"
)

// LevelOK marks a successfully completed step (connected, armed, converged).
// It sits between INFO and WARN so console handlers capped at INFO still show it.
const LevelOK = slog.Level(2)

// EnableTrace is a variable to enable/disable trace logs.
// Default is false to reduce noise.
var EnableTrace = false

// OK logs msg at LevelOK.
func OK(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), LevelOK, msg, args...)
}

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
// Convergence loops use it for per-iteration samples.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug(msg, args...)
	}
}

// replaceLevel prints LevelOK as "OK" instead of "INFO+2".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelOK {
		a.Value = slog.StringValue("OK")
	}
	return a
}

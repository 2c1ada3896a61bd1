package memgo

import (
	"log/slog"
	"os"
)

// noopLevel sits far above every real level, so a handler gated on it
// never emits.
const noopLevel = slog.Level(1000)

// Logger wraps slog.Logger with allocation-specific helpers, so every
// operation logs the same field names (op, elem_size, count, size).
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger over handler. A nil handler falls back to
// Info-level text on stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger emitting JSON lines on stderr at the
// given minimum level.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger emitting human-readable lines on stderr
// at the given minimum level.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards everything. It is the default:
// allocation paths are hot, and logging is strictly opt-in.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: noopLevel}))
}

// WithOp tags the logger with an operation name.
func (l *Logger) WithOp(op string) *Logger { return &Logger{Logger: l.With("op", op)} }

// WithSize tags the logger with a byte size.
func (l *Logger) WithSize(size int) *Logger { return &Logger{Logger: l.With("size", size)} }

// WithCount tags the logger with an element count.
func (l *Logger) WithCount(count int) *Logger { return &Logger{Logger: l.With("count", count)} }

// LogAlloc logs the outcome of an allocation: Debug on success, Error on
// failure.
func (l *Logger) LogAlloc(op string, elemSize, count, size int, err error) {
	if err != nil {
		l.Error("allocation failed",
			"op", op,
			"elem_size", elemSize,
			"count", count,
			"error", err,
		)
		return
	}
	l.Debug("allocation completed",
		"op", op,
		"elem_size", elemSize,
		"count", count,
		"size", size,
	)
}

// LogRealloc logs the outcome of a reallocation.
func (l *Logger) LogRealloc(op string, oldSize, newSize int, err error) {
	if err != nil {
		l.Error("reallocation failed",
			"op", op,
			"old_size", oldSize,
			"new_size", newSize,
			"error", err,
		)
		return
	}
	l.Debug("reallocation completed",
		"op", op,
		"old_size", oldSize,
		"new_size", newSize,
	)
}

// LogFree logs a block release.
func (l *Logger) LogFree(size int) {
	l.Debug("block freed", "size", size)
}

// LogOverflow logs a size computation rejected before reaching the backend.
func (l *Logger) LogOverflow(op string, elemSize, count int) {
	l.Warn("size computation overflow",
		"op", op,
		"elem_size", elemSize,
		"count", count,
	)
}

package memgo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCaptureLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewLogger(handler), &buf
}

func TestNewLogger(t *testing.T) {
	t.Run("nil handler falls back to text", func(t *testing.T) {
		l := NewLogger(nil)
		assert.NotNil(t, l)
		assert.NotNil(t, l.Logger)
	})
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestLogAlloc(t *testing.T) {
	t.Run("success logs at debug", func(t *testing.T) {
		l, buf := newCaptureLogger()

		l.LogAlloc("alloc", 4, 42, 168, nil)

		out := buf.String()
		assert.Contains(t, out, "allocation completed")
		assert.Contains(t, out, "op=alloc")
		assert.Contains(t, out, "elem_size=4")
		assert.Contains(t, out, "count=42")
		assert.Contains(t, out, "size=168")
	})

	t.Run("failure logs at error", func(t *testing.T) {
		l, buf := newCaptureLogger()

		l.LogAlloc("alloc_zeroed", 8, 10, 80, errors.New("boom"))

		out := buf.String()
		assert.Contains(t, out, "level=ERROR")
		assert.Contains(t, out, "allocation failed")
		assert.Contains(t, out, "error=boom")
	})
}

func TestLogRealloc(t *testing.T) {
	l, buf := newCaptureLogger()

	l.LogRealloc("realloc", 64, 128, nil)
	l.LogRealloc("resize", 128, 256, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "reallocation completed")
	assert.Contains(t, out, "old_size=64")
	assert.Contains(t, out, "new_size=128")
	assert.Contains(t, out, "reallocation failed")
}

func TestLogFree(t *testing.T) {
	l, buf := newCaptureLogger()

	l.LogFree(168)

	assert.Contains(t, buf.String(), "block freed")
	assert.Contains(t, buf.String(), "size=168")
}

func TestLogOverflow(t *testing.T) {
	l, buf := newCaptureLogger()

	l.LogOverflow("alloc", 8, 1<<62)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "size computation overflow")
}

func TestLoggerWith(t *testing.T) {
	l, buf := newCaptureLogger()

	l.WithOp("resize").WithSize(256).WithCount(32).Info("hello")

	out := buf.String()
	assert.Contains(t, out, "op=resize")
	assert.Contains(t, out, "size=256")
	assert.Contains(t, out, "count=32")
}

package resource

import (
	"context"
	"io"
)

// burstFor caps a single limiter charge at the configured burst, so
// oversized buffers throttle in chunks instead of failing WaitN outright.
func burstFor(rc *Controller, n int) int {
	if rc == nil || rc.io == nil {
		return n
	}
	if b := rc.io.Burst(); b > 0 && n > b {
		return b
	}
	return n
}

// RateLimitedWriter throttles writes against the controller's IO budget.
// Snapshot dumps wrap their destination in one so background persistence
// cannot starve foreground IO.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

// NewRateLimitedWriter wraps w. The context bounds every Write; a
// canceled context fails the next charge.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

// Write charges the limiter before each chunk and forwards the chunk to
// the underlying writer. Short writes report how much actually went out.
func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	var written int
	for written < len(p) {
		chunk := burstFor(w.rc, len(p)-written)
		if err := w.rc.AcquireIO(w.ctx, chunk); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// RateLimitedReader throttles reads against the controller's IO budget.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader wraps r. The context bounds every Read.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

// Read reads first and charges for the bytes actually received, so one
// read may overrun the limit transiently and later reads absorb the
// delay.
func (r *RateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	for charged := 0; charged < n; {
		chunk := burstFor(r.rc, n-charged)
		if werr := r.rc.AcquireIO(r.ctx, chunk); werr != nil {
			return n, werr
		}
		charged += chunk
	}
	return n, err
}

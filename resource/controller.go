// Package resource enforces process-wide budgets for allocator-managed
// memory, background concurrency and IO throughput. A nil *Controller is
// valid everywhere and enforces nothing, so callers can thread an optional
// controller through without nil checks.
package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would push usage
// past the configured memory limit.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds the limits a Controller enforces. The zero value enforces
// nothing beyond usage tracking.
type Config struct {
	// MemoryLimitBytes caps the total bytes reserved through the
	// controller. 0 means track usage without a cap.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers caps concurrent background jobs (snapshot
	// writes and similar). 0 defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec caps the IO throughput of background jobs.
	// 0 means unlimited.
	IOLimitBytesPerSec int64
}

// Controller meters memory, background concurrency and IO against the
// configured limits. One controller is typically shared by every allocator
// in the process so the budget is global.
//
// All methods are safe for concurrent use and valid on a nil receiver.
type Controller struct {
	limit int64

	memSem  *semaphore.Weighted // nil when no memory cap is set
	memUsed atomic.Int64
	memPeak atomic.Int64

	workers *semaphore.Weighted
	io      *rate.Limiter
}

// NewController creates a Controller enforcing cfg.
func NewController(cfg Config) *Controller {
	workers := cfg.MaxBackgroundWorkers
	if workers <= 0 {
		workers = 1
	}

	c := &Controller{
		limit:   cfg.MemoryLimitBytes,
		workers: semaphore.NewWeighted(workers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes, blocking until the budget has room or ctx
// is done. Use it for cooperative callers that would rather wait than fail.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.charge(bytes)

	return nil
}

// TryAcquireMemory reserves bytes without blocking, reporting whether the
// reservation fit. Allocators use this form: a request either fits the
// budget now or fails, and retry policy stays with the caller.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.charge(bytes)

	return true
}

// ReleaseMemory returns a reservation to the budget. Callers release
// exactly what they acquired; the controller does not track per-caller
// balances.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

func (c *Controller) charge(bytes int64) {
	used := c.memUsed.Add(bytes)
	for {
		peak := c.memPeak.Load()
		if used <= peak || c.memPeak.CompareAndSwap(peak, used) {
			return
		}
	}
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured cap, 0 when unlimited.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.limit
}

// Stats is a point-in-time view of the controller's memory budget.
type Stats struct {
	UsedBytes  int64 `json:"used_bytes"`
	PeakBytes  int64 `json:"peak_bytes"`
	LimitBytes int64 `json:"limit_bytes"`
}

// Stats returns current usage, the high-water mark and the limit.
func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		UsedBytes:  c.memUsed.Load(),
		PeakBytes:  c.memPeak.Load(),
		LimitBytes: c.limit,
	}
}

// AcquireBackground claims a background worker slot, blocking while all
// slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// TryAcquireBackground claims a worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.workers.TryAcquire(1)
}

// ReleaseBackground returns a worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// AcquireIO waits until the IO budget covers bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.io == nil {
		return nil
	}
	return c.io.WaitN(ctx, bytes)
}

// TryAcquireIO claims bytes from the IO budget without blocking.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.io == nil {
		return true
	}
	return c.io.AllowN(time.Now(), bytes)
}

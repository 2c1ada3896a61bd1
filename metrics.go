package memgo

import (
	"sync/atomic"
)

// MetricsCollector receives the outcome of every facade operation, the
// integration point for external monitoring. A Prometheus adapter is a
// handful of lines:
//
//	type promCollector struct {
//	    allocs prometheus.Counter
//	    bytes  prometheus.Histogram
//	}
//
//	func (p *promCollector) RecordAlloc(bytes int, err error) {
//	    p.allocs.Inc()
//	    p.bytes.Observe(float64(bytes))
//	}
//
// Implementations must be safe for concurrent use; collectors are called
// from whatever goroutine performed the operation.
type MetricsCollector interface {
	// RecordAlloc is called after each allocation attempt.
	// bytes is the requested block size, err is nil if successful.
	RecordAlloc(bytes int, err error)

	// RecordRealloc is called after each reallocation attempt.
	// oldBytes and newBytes are the sizes before and after the move,
	// err is nil if successful.
	RecordRealloc(oldBytes, newBytes int, err error)

	// RecordFree is called after each release.
	// bytes is the size of the released block.
	RecordFree(bytes int)

	// RecordOverflow is called when a size computation is rejected
	// before any allocation is attempted.
	RecordOverflow()
}

// NoopMetricsCollector discards every record. It is the default, so
// unmonitored allocators pay only an interface call per operation.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, error)        {}
func (NoopMetricsCollector) RecordRealloc(int, int, error) {}
func (NoopMetricsCollector) RecordFree(int)                {}
func (NoopMetricsCollector) RecordOverflow()               {}

// BasicMetricsCollector counts operations in-process with atomics. It
// covers debugging and tests; wire a real monitoring system through your
// own MetricsCollector for production dashboards.
type BasicMetricsCollector struct {
	AllocCount    atomic.Int64
	AllocErrors   atomic.Int64
	AllocBytes    atomic.Int64
	ReallocCount  atomic.Int64
	ReallocErrors atomic.Int64
	ReallocGrowth atomic.Int64
	FreeCount     atomic.Int64
	FreeBytes     atomic.Int64
	OverflowCount atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(bytes int, err error) {
	b.AllocCount.Add(1)
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	b.AllocBytes.Add(int64(bytes))
}

// RecordRealloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRealloc(oldBytes, newBytes int, err error) {
	b.ReallocCount.Add(1)
	if err != nil {
		b.ReallocErrors.Add(1)
		return
	}
	b.ReallocGrowth.Add(int64(newBytes - oldBytes))
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(bytes int) {
	b.FreeCount.Add(1)
	b.FreeBytes.Add(int64(bytes))
}

// RecordOverflow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOverflow() {
	b.OverflowCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:    b.AllocCount.Load(),
		AllocErrors:   b.AllocErrors.Load(),
		AllocAvgBytes: b.getAvgAllocBytes(),
		ReallocCount:  b.ReallocCount.Load(),
		ReallocErrors: b.ReallocErrors.Load(),
		ReallocGrowth: b.ReallocGrowth.Load(),
		FreeCount:     b.FreeCount.Load(),
		FreeBytes:     b.FreeBytes.Load(),
		OverflowCount: b.OverflowCount.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgAllocBytes() int64 {
	count := b.AllocCount.Load() - b.AllocErrors.Load()
	if count <= 0 {
		return 0
	}
	return b.AllocBytes.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocCount    int64
	AllocErrors   int64
	AllocAvgBytes int64
	ReallocCount  int64
	ReallocErrors int64
	ReallocGrowth int64
	FreeCount     int64
	FreeBytes     int64
	OverflowCount int64
}

package memgo

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/hupe1980/memgo/internal/track"
	"github.com/hupe1980/memgo/resource"
)

const (
	opAlloc       = "alloc"
	opAllocZeroed = "alloc_zeroed"
	opRealloc     = "realloc"
	opResize      = "resize"
)

// Allocator layers overflow-checked, ownership-explicit allocation on top of
// a RawAllocator backend. Every sizing computation goes through SizeFor
// before the backend is consulted, so a request whose byte size would
// overflow never reaches the backend at all.
//
// The zero configuration (NewAllocator with no options) uses the managed
// heap, no budget, no tracking, and silent logging. All methods are safe for
// concurrent use when the backend is; the facade itself keeps only atomic
// counters and an optional mutex-guarded live registry.
type Allocator struct {
	raw         RawAllocator
	logger      *Logger
	metrics     MetricsCollector
	controller  *resource.Controller
	tracker     *track.Tracker
	scrubOnFree bool
	stats       atomicStats
}

// NewAllocator creates an Allocator over the configured raw backend.
func NewAllocator(optFns ...Option) *Allocator {
	opts := applyOptions(optFns)

	a := &Allocator{
		raw:         opts.raw,
		logger:      opts.logger,
		metrics:     opts.metricsCollector,
		controller:  opts.controller,
		scrubOnFree: opts.scrubOnFree,
	}
	if opts.trackLive {
		a.tracker = track.New()
	}

	return a
}

// Default is the allocator used when none is supplied explicitly: the typed
// constructors accept a nil allocator and the zero Block is bound to it. It
// is heap-backed and unconfigured.
var Default = NewAllocator()

// Alloc allocates storage for count elements of elemSize bytes each.
//
// count == 0 yields (nil, nil): there is nothing to allocate, and this is
// distinguished from failure. Exactly one raw-backend call is made per
// invocation, or zero in the count == 0 and overflow cases.
func (a *Allocator) Alloc(elemSize, count int) ([]byte, error) {
	return a.allocate(opAlloc, elemSize, count, "")
}

// AllocZeroed is Alloc with zero-initialized storage. It uses the backend's
// zeroing allocation slot directly rather than allocate-then-clear, and the
// size computation is overflow-checked here regardless of whatever checking
// the backend performs internally.
func (a *Allocator) AllocZeroed(elemSize, count int) ([]byte, error) {
	return a.allocate(opAllocZeroed, elemSize, count, "")
}

// Realloc resizes existing to hold count elements of elemSize bytes,
// preserving the common prefix. A nil existing behaves like Alloc, and
// count == 0 frees existing and yields (nil, nil).
//
// On success the input handle is invalid and the returned block replaces it,
// possibly at a different address. On failure existing remains valid and
// owned by the caller; use Resize for free-on-failure semantics instead.
func (a *Allocator) Realloc(existing []byte, elemSize, count int) ([]byte, error) {
	return a.reallocate(opRealloc, existing, elemSize, count, "")
}

// Resize is Realloc, except that existing is released on failure. The input
// handle is invalid after the call no matter what happened, so callers never
// need a separate Free on any path.
func (a *Allocator) Resize(existing []byte, elemSize, count int) ([]byte, error) {
	nb, err := a.reallocate(opResize, existing, elemSize, count, "")
	if err != nil {
		a.release(existing)
		return nil, err
	}

	return nb, nil
}

// Free releases a block. Passing nil is a safe no-op. The result is always
// nil so a caller can assign it straight back to the handle variable and be
// left holding a definitively empty reference:
//
//	buf = a.Free(buf)
func (a *Allocator) Free(existing []byte) []byte {
	a.stats.freeCalls.Add(1)
	a.release(existing)

	return nil
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats {
	return a.stats.snapshot()
}

// LiveAlloc describes one live block recorded by the leak tracker.
type LiveAlloc struct {
	ID       uint32    // allocation order, starts at 1
	Type     string    // element type name, "" for untyped byte-level calls
	ElemSize int
	Count    int
	Size     int
	Since    time.Time
}

// LiveAllocations returns the blocks currently live in allocation order.
// It returns nil unless the allocator was built with WithLeakTracking(true).
func (a *Allocator) LiveAllocations() []LiveAlloc {
	if a.tracker == nil {
		return nil
	}

	entries := a.tracker.Live()
	live := make([]LiveAlloc, len(entries))
	for i, e := range entries {
		live[i] = LiveAlloc{
			ID:       e.ID,
			Type:     e.Type,
			ElemSize: e.ElemSize,
			Count:    e.Count,
			Size:     e.Size,
			Since:    e.Since,
		}
	}

	return live
}

// String returns a human-readable usage summary.
func (a *Allocator) String() string {
	s := a.stats.snapshot()
	return fmt.Sprintf("Allocator{live: %d blocks / %.2f MB, peak: %.2f MB, total: %.2f MB, allocs: %d, reallocs: %d, resizes: %d, frees: %d, overflows: %d, failures: %d}",
		s.LiveBlocks,
		float64(s.BytesLive)/(1024*1024),
		float64(s.BytesPeak)/(1024*1024),
		float64(s.BytesTotal)/(1024*1024),
		s.AllocCalls, s.ReallocCalls, s.ResizeCalls, s.FreeCalls,
		s.Overflows, s.Failures)
}

// allocate is the shared array-allocation primitive behind Alloc,
// AllocZeroed and the typed constructors. typ is the element type name for
// the live registry; byte-level entry points pass "".
func (a *Allocator) allocate(op string, elemSize, count int, typ string) ([]byte, error) {
	a.stats.allocCalls.Add(1)

	if count == 0 {
		return nil, nil
	}

	size, err := SizeFor(elemSize, count)
	if err != nil {
		a.stats.overflows.Add(1)
		a.metrics.RecordOverflow()
		a.logger.LogOverflow(op, elemSize, count)

		return nil, opError(op, elemSize, count, err)
	}
	if size == 0 {
		return nil, nil
	}

	if err := a.reserve(size); err != nil {
		a.stats.failures.Add(1)
		a.metrics.RecordAlloc(size, err)
		a.logger.LogAlloc(op, elemSize, count, size, err)

		return nil, opError(op, elemSize, count, err)
	}

	var b []byte
	if op == opAllocZeroed {
		b, err = a.raw.AllocateZeroed(count, elemSize)
	} else {
		b, err = a.raw.Allocate(size)
	}
	if err != nil {
		a.unreserve(size)
		a.stats.failures.Add(1)
		a.metrics.RecordAlloc(size, err)
		a.logger.LogAlloc(op, elemSize, count, size, err)

		return nil, opError(op, elemSize, count, err)
	}

	a.stats.liveBlocks.Add(1)
	a.stats.addLive(int64(size))
	if a.tracker != nil {
		a.tracker.Register(blockBase(b), typ, elemSize, count, size)
	}
	a.metrics.RecordAlloc(size, nil)
	a.logger.LogAlloc(op, elemSize, count, size, nil)

	return b, nil
}

// reallocate is the shared resizing primitive behind Realloc and Resize.
// The overflow check runs before any raw call, so on the overflow path the
// existing block is guaranteed untouched.
func (a *Allocator) reallocate(op string, existing []byte, elemSize, count int, typ string) ([]byte, error) {
	if op == opResize {
		a.stats.resizeCalls.Add(1)
	} else {
		a.stats.reallocCalls.Add(1)
	}

	// Shrinking to zero elements is equivalent to freeing.
	if count == 0 {
		a.release(existing)
		return nil, nil
	}

	size, err := SizeFor(elemSize, count)
	if err != nil {
		a.stats.overflows.Add(1)
		a.metrics.RecordOverflow()
		a.logger.LogOverflow(op, elemSize, count)

		return nil, opError(op, elemSize, count, err)
	}
	if size == 0 {
		a.release(existing)
		return nil, nil
	}

	oldSize := len(existing)
	delta := size - oldSize
	if delta > 0 {
		if err := a.reserve(delta); err != nil {
			a.stats.failures.Add(1)
			a.metrics.RecordRealloc(oldSize, size, err)
			a.logger.LogRealloc(op, oldSize, size, err)

			return nil, opError(op, elemSize, count, err)
		}
	}

	nb, err := a.raw.Reallocate(existing, size)
	if err != nil {
		if delta > 0 {
			a.unreserve(delta)
		}
		a.stats.failures.Add(1)
		a.metrics.RecordRealloc(oldSize, size, err)
		a.logger.LogRealloc(op, oldSize, size, err)

		return nil, opError(op, elemSize, count, err)
	}

	if delta < 0 {
		a.unreserve(-delta)
	}
	a.stats.addLive(int64(delta))
	if oldSize == 0 {
		a.stats.liveBlocks.Add(1)
	}
	if a.tracker != nil {
		if oldSize == 0 {
			a.tracker.Register(blockBase(nb), typ, elemSize, count, size)
		} else {
			a.tracker.Move(blockBase(existing), blockBase(nb), count, size)
		}
	}
	a.metrics.RecordRealloc(oldSize, size, nil)
	a.logger.LogRealloc(op, oldSize, size, nil)

	return nb, nil
}

// release frees a block without touching the explicit-free counter; the
// realloc-to-zero and resize-failure paths share it with Free.
func (a *Allocator) release(b []byte) {
	size := len(b)
	if size == 0 {
		return
	}

	if a.tracker != nil && !a.tracker.Unregister(blockBase(b)) {
		a.logger.Warn("free of unknown block", "size", size)
	}
	if a.scrubOnFree {
		clear(b)
	}

	a.raw.Deallocate(b)
	a.unreserve(size)
	a.stats.liveBlocks.Add(-1)
	a.stats.addLive(int64(-size))
	a.metrics.RecordFree(size)
	a.logger.LogFree(size)
}

// reserve charges size bytes against the resource budget, if one is
// attached. Controller methods are nil-receiver safe, so the unbudgeted
// case costs a single nil check.
func (a *Allocator) reserve(size int) error {
	if !a.controller.TryAcquireMemory(int64(size)) {
		return fmt.Errorf("reserve %d bytes: %w", size, resource.ErrMemoryLimitExceeded)
	}

	return nil
}

func (a *Allocator) unreserve(size int) {
	a.controller.ReleaseMemory(int64(size))
}

// blockBase returns the address of a block's first byte, used as the key
// into the live registry. Callers guarantee len(b) > 0.
func blockBase(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))) //nolint:gosec // address is used as a registry key only
}

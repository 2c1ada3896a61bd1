package testutil

import (
	"errors"

	"github.com/hupe1980/memgo"
)

// ErrInjected is returned by RecordingAllocator when fault injection is on.
var ErrInjected = errors.New("testutil: injected failure")

// RecordingAllocator wraps a raw allocator, counting calls and optionally
// failing them. Tests use it to assert how often the backend was reached and
// what callers observe when it fails.
//
// Not safe for concurrent use.
type RecordingAllocator struct {
	// Inner handles the real allocations. Defaults to memgo.NewHeapAllocator().
	Inner memgo.RawAllocator

	// FailAllocs makes Allocate and AllocateZeroed return ErrInjected.
	FailAllocs bool
	// FailReallocs makes Reallocate return ErrInjected.
	FailReallocs bool

	AllocCalls       int
	AllocZeroedCalls int
	ReallocCalls     int
	DeallocCalls     int
}

func (r *RecordingAllocator) inner() memgo.RawAllocator {
	if r.Inner == nil {
		r.Inner = memgo.NewHeapAllocator()
	}
	return r.Inner
}

// Allocate implements memgo.RawAllocator.
func (r *RecordingAllocator) Allocate(size int) ([]byte, error) {
	r.AllocCalls++
	if r.FailAllocs {
		return nil, ErrInjected
	}
	return r.inner().Allocate(size)
}

// AllocateZeroed implements memgo.RawAllocator.
func (r *RecordingAllocator) AllocateZeroed(count, elemSize int) ([]byte, error) {
	r.AllocZeroedCalls++
	if r.FailAllocs {
		return nil, ErrInjected
	}
	return r.inner().AllocateZeroed(count, elemSize)
}

// Reallocate implements memgo.RawAllocator.
func (r *RecordingAllocator) Reallocate(existing []byte, size int) ([]byte, error) {
	r.ReallocCalls++
	if r.FailReallocs {
		return nil, ErrInjected
	}
	return r.inner().Reallocate(existing, size)
}

// Deallocate implements memgo.RawAllocator.
func (r *RecordingAllocator) Deallocate(existing []byte) {
	r.DeallocCalls++
	r.inner().Deallocate(existing)
}

// RawCalls returns the total number of raw interface invocations.
func (r *RecordingAllocator) RawCalls() int {
	return r.AllocCalls + r.AllocZeroedCalls + r.ReallocCalls + r.DeallocCalls
}

// Reset zeroes the counters and clears fault injection.
func (r *RecordingAllocator) Reset() {
	r.FailAllocs = false
	r.FailReallocs = false
	r.AllocCalls = 0
	r.AllocZeroedCalls = 0
	r.ReallocCalls = 0
	r.DeallocCalls = 0
}

package memgo

import (
	"unsafe"
)

// HeapAlignment is the byte alignment guaranteed by the heap backend
// (64 bytes, one cache line).
const HeapAlignment = 64

// RawAllocator is the storage interface an Allocator is layered over. Each
// slot is independently substitutable; embedding systems provide their own
// implementation to route storage through a custom allocator.
//
// Contract for implementations:
//   - Allocate returns a slice of exactly size bytes, or an error. The
//     returned storage must be aligned to at least 8 bytes so it can carry
//     any Go element type.
//   - AllocateZeroed returns count*elemSize zero-filled bytes. The caller
//     has already validated that the product does not overflow.
//   - Reallocate resizes existing to size bytes, preserving the common
//     prefix. A nil existing behaves like Allocate. On failure the existing
//     block must remain valid and untouched. The returned block may or may
//     not share the original address.
//   - Deallocate releases a block. A nil block is a no-op.
type RawAllocator interface {
	Allocate(size int) ([]byte, error)
	AllocateZeroed(count, elemSize int) ([]byte, error)
	Reallocate(existing []byte, size int) ([]byte, error)
	Deallocate(existing []byte)
}

// NewHeapAllocator returns a RawAllocator backed by the Go heap.
//
// Storage is cache-line aligned (HeapAlignment) via over-allocation.
// Deallocate is a no-op: storage is reclaimed by the garbage collector once
// unreferenced. Allocate never reports failure because Go heap exhaustion
// aborts the process; failure paths are exercised with fallible backends
// such as sysmem.
func NewHeapAllocator() RawAllocator { return heapAllocator{} }

type heapAllocator struct{}

func (heapAllocator) Allocate(size int) ([]byte, error) {
	return heapAlloc(size), nil
}

func (heapAllocator) AllocateZeroed(count, elemSize int) ([]byte, error) {
	// make returns zero-filled storage, so the zeroed path is the plain one.
	return heapAlloc(count * elemSize), nil
}

func (heapAllocator) Reallocate(existing []byte, size int) ([]byte, error) {
	if existing == nil {
		return heapAlloc(size), nil
	}
	if size <= cap(existing) {
		return existing[:size], nil
	}

	grown := heapAlloc(size)
	copy(grown, existing)

	return grown, nil
}

func (heapAllocator) Deallocate([]byte) {}

// heapAlloc allocates size bytes with HeapAlignment alignment. It
// over-allocates and returns the slice starting at the first aligned byte;
// the underlying array is kept alive by the returned slice.
func heapAlloc(size int) []byte {
	if size <= 0 {
		return nil
	}

	buf := make([]byte, size+HeapAlignment)

	ptr := unsafe.Pointer(&buf[0]) //nolint:gosec // unsafe is required for memory alignment
	addr := uintptr(ptr)
	offset := (HeapAlignment - (addr & (HeapAlignment - 1))) & (HeapAlignment - 1)

	return buf[offset : offset+uintptr(size)]
}

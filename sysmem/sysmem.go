// Package sysmem provides a page-granular raw allocator backed by anonymous
// memory mappings (mmap on Unix, VirtualAlloc on Windows).
//
// Unlike the managed heap it reports failure instead of aborting when the
// kernel refuses a mapping, and freed blocks are returned to the OS
// immediately. That makes it the backend of choice for large transient
// buffers and for exercising allocation-failure paths. Blocks are
// page-aligned, which comfortably exceeds the 8-byte minimum the facade
// requires.
package sysmem

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"
)

type mapping struct {
	full  []byte
	unmap func([]byte) error
}

// Allocator hands out blocks carved from dedicated anonymous mappings, one
// mapping per block. It implements the memgo RawAllocator contract.
//
// All methods are safe for concurrent use.
type Allocator struct {
	pageSize int
	advice   AccessPattern

	mu       sync.Mutex
	mappings map[uintptr]mapping

	mapped       atomic.Int64
	unknownFrees atomic.Int64
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithAccessPattern advises the kernel how fresh mappings will be accessed.
// The hint is best-effort and ignored on platforms without madvise.
func WithAccessPattern(pattern AccessPattern) Option {
	return func(a *Allocator) {
		a.advice = pattern
	}
}

// New creates an Allocator using the system page size.
func New(optFns ...Option) *Allocator {
	a := &Allocator{
		pageSize: os.Getpagesize(),
		advice:   AccessDefault,
		mappings: make(map[uintptr]mapping),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(a)
		}
	}

	return a
}

// Allocate maps size bytes of fresh anonymous memory, rounded up to whole
// pages. Fresh mappings are zero-filled by the kernel. size <= 0 yields
// (nil, nil).
func (a *Allocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	full, err := a.mapPages(size)
	if err != nil {
		return nil, err
	}

	return full[:size], nil
}

// AllocateZeroed returns count*elemSize zero-filled bytes. The caller has
// already validated that the product does not overflow; fresh mappings are
// zero-filled, so this is Allocate under another contract.
func (a *Allocator) AllocateZeroed(count, elemSize int) ([]byte, error) {
	return a.Allocate(count * elemSize)
}

// Reallocate resizes existing to size bytes. Shrinks and grows within the
// page slack of the original mapping are served in place without a syscall;
// larger requests map a fresh region, copy the prefix and unmap the old
// block. On failure existing remains valid and mapped.
func (a *Allocator) Reallocate(existing []byte, size int) ([]byte, error) {
	if len(existing) == 0 {
		return a.Allocate(size)
	}
	if size <= 0 {
		a.Deallocate(existing)
		return nil, nil
	}

	a.mu.Lock()
	m, ok := a.mappings[base(existing)]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sysmem: realloc %d bytes: %w", size, ErrUnknownBlock)
	}

	if size <= len(m.full) {
		return m.full[:size], nil
	}

	grown, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}
	copy(grown, existing)
	a.Deallocate(existing)

	return grown, nil
}

// Deallocate unmaps a block, returning its pages to the OS. A nil block is
// a no-op. Blocks that were not handed out by this allocator are counted in
// UnknownFrees and otherwise ignored.
func (a *Allocator) Deallocate(existing []byte) {
	if len(existing) == 0 {
		return
	}

	a.mu.Lock()
	m, ok := a.mappings[base(existing)]
	if ok {
		delete(a.mappings, base(existing))
	}
	a.mu.Unlock()

	if !ok {
		a.unknownFrees.Add(1)
		return
	}

	a.mapped.Add(-int64(len(m.full)))
	_ = m.unmap(m.full)
}

// Close unmaps every outstanding mapping. Blocks handed out earlier become
// invalid; Close is for teardown paths where reclaiming the address space
// matters more than handle hygiene.
func (a *Allocator) Close() error {
	a.mu.Lock()
	mappings := a.mappings
	a.mappings = make(map[uintptr]mapping)
	a.mu.Unlock()

	var err error
	for _, m := range mappings {
		a.mapped.Add(-int64(len(m.full)))
		if e := m.unmap(m.full); e != nil && err == nil {
			err = fmt.Errorf("sysmem: close: %w", e)
		}
	}

	return err
}

// MappedBytes returns the page-rounded bytes currently mapped.
func (a *Allocator) MappedBytes() int64 {
	return a.mapped.Load()
}

// UnknownFrees returns how many Deallocate calls referenced blocks this
// allocator never handed out.
func (a *Allocator) UnknownFrees() int64 {
	return a.unknownFrees.Load()
}

// PageSize returns the page size mappings are rounded to.
func (a *Allocator) PageSize() int {
	return a.pageSize
}

func (a *Allocator) mapPages(size int) ([]byte, error) {
	rounded, err := a.roundUp(size)
	if err != nil {
		return nil, err
	}

	full, unmap, err := osMapAnon(rounded)
	if err != nil {
		return nil, fmt.Errorf("sysmem: map %d bytes: %w", rounded, err)
	}
	if a.advice != AccessDefault {
		if err := osAdvise(full, a.advice); err != nil {
			_ = unmap(full)
			return nil, fmt.Errorf("sysmem: advise: %w", err)
		}
	}

	a.mu.Lock()
	a.mappings[base(full)] = mapping{full: full, unmap: unmap}
	a.mu.Unlock()
	a.mapped.Add(int64(rounded))

	return full, nil
}

func (a *Allocator) roundUp(size int) (int, error) {
	if size > math.MaxInt-a.pageSize {
		return 0, fmt.Errorf("sysmem: round %d bytes: %w", size, ErrInvalidSize)
	}
	return (size + a.pageSize - 1) &^ (a.pageSize - 1), nil
}

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))) //nolint:gosec // address is used as a registry key only
}

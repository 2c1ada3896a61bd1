package arena

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/memgo"
)

var (
	// ErrClosed is returned when allocating from an arena after Free.
	ErrClosed = errors.New("arena: closed")
	// ErrChunkOverflow is returned when a single allocation is larger than
	// the arena's chunk size.
	ErrChunkOverflow = errors.New("arena: allocation exceeds chunk size")
)

const (
	// DefaultChunkSize is used when New is called with a size <= 0.
	DefaultChunkSize = 1 << 20
	// DefaultAlignment suits every primitive Go type on 64-bit platforms.
	DefaultAlignment = 8
)

// Stats tracks arena usage.
//
// Note on semantics:
//   - BytesHeld: chunk capacity currently held from the backing allocator
//   - BytesLive: bytes handed out to callers, before alignment
//   - BytesPadding: alignment padding added on top of BytesLive
//   - ChunksTotal, AllocCalls: cumulative, survive Reset
type Stats struct {
	AllocCalls   uint64 `json:"alloc_calls"`
	ChunksLive   uint64 `json:"chunks_live"`
	ChunksTotal  uint64 `json:"chunks_total"`
	BytesHeld    uint64 `json:"bytes_held"`
	BytesLive    uint64 `json:"bytes_live"`
	BytesPadding uint64 `json:"bytes_padding"`
}

type atomicStats struct {
	allocCalls   atomic.Uint64
	chunksLive   atomic.Uint64
	chunksTotal  atomic.Uint64
	bytesHeld    atomic.Uint64
	bytesLive    atomic.Uint64
	bytesPadding atomic.Uint64
}

func (s *atomicStats) snapshot() Stats {
	return Stats{
		AllocCalls:   s.allocCalls.Load(),
		ChunksLive:   s.chunksLive.Load(),
		ChunksTotal:  s.chunksTotal.Load(),
		BytesHeld:    s.bytesHeld.Load(),
		BytesLive:    s.bytesLive.Load(),
		BytesPadding: s.bytesPadding.Load(),
	}
}

type chunk struct {
	data   []byte
	offset atomic.Int64 // accessed concurrently without locks
}

// Arena is a chunked bump allocator. The zero value is not usable; use New.
type Arena struct {
	chunkSize int
	alignment int
	heap      *memgo.Allocator

	mu      sync.Mutex
	chunks  []*chunk
	current atomic.Pointer[chunk]

	stats atomicStats
}

// Option configures an Arena at construction time.
type Option func(*Arena)

// WithAllocator sets the backing allocator that chunks are requested from.
// Defaults to memgo.Default. Budget limits and statistics of that allocator
// apply to the arena's chunks.
func WithAllocator(heap *memgo.Allocator) Option {
	return func(a *Arena) {
		if heap != nil {
			a.heap = heap
		}
	}
}

// WithAlignment sets the alignment applied to every allocation. Must be a
// power of two between 1 and memgo.HeapAlignment. Defaults to
// DefaultAlignment, which satisfies every Go type on 64-bit platforms.
func WithAlignment(align int) Option {
	return func(a *Arena) {
		if align > 0 {
			a.alignment = align
		}
	}
}

// New creates an Arena with the given chunk size and eagerly allocates the
// first chunk. A chunkSize <= 0 selects DefaultChunkSize; other sizes are
// rounded up to the next power of two.
func New(chunkSize int, optFns ...Option) (*Arena, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	// Round up to the next power of two. For a chunkSize that already is
	// one, bits.Len(chunkSize-1) yields the same exponent back.
	chunkSize = 1 << bits.Len(uint(chunkSize-1)) //nolint:gosec // chunkSize > 0

	a := &Arena{
		chunkSize: chunkSize,
		alignment: DefaultAlignment,
		heap:      memgo.Default,
	}

	for _, fn := range optFns {
		fn(a)
	}

	if a.alignment&(a.alignment-1) != 0 {
		return nil, fmt.Errorf("arena: alignment %d is not a power of two", a.alignment)
	}
	// Offsets are aligned relative to the chunk base, so the base must be
	// at least as aligned as the strictest request.
	if a.alignment > memgo.HeapAlignment {
		return nil, fmt.Errorf("arena: alignment %d exceeds %d", a.alignment, memgo.HeapAlignment)
	}

	a.mu.Lock()
	err := a.growLocked()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return a, nil
}

// growLocked requests a fresh chunk from the backing allocator and makes it
// current. Caller must hold a.mu.
func (a *Arena) growLocked() error {
	data, err := a.heap.AllocZeroed(1, a.chunkSize)
	if err != nil {
		return fmt.Errorf("arena: allocate chunk: %w", err)
	}

	c := &chunk{data: data}
	a.chunks = append(a.chunks, c)

	a.stats.chunksTotal.Add(1)
	a.stats.chunksLive.Add(1)
	a.stats.bytesHeld.Add(uint64(a.chunkSize))

	// Make visible to the allocation fast path.
	a.current.Store(c)

	return nil
}

// AllocBytes allocates a byte slice of the given size. Sizes <= 0 return
// (nil, nil). Fresh chunks are zeroed; after Reset, reused memory retains
// old contents.
func (a *Arena) AllocBytes(size int) ([]byte, error) {
	return a.alloc(size, a.alignment)
}

// Alloc allocates a single T from the arena. Memory from a fresh chunk is
// zeroed; after Reset it may retain old contents.
func Alloc[T any](a *Arena) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return new(T), nil
	}

	data, err := a.alloc(size, typeAlignment[T](a))
	if err != nil {
		return nil, err
	}

	return (*T)(unsafe.Pointer(unsafe.SliceData(data))), nil //nolint:gosec // unsafe is required for arena-backed values
}

// AllocSlice allocates a []T of the given length from the arena. A count
// <= 0 returns (nil, nil).
func AllocSlice[T any](a *Arena, count int) ([]T, error) {
	if count <= 0 {
		return nil, nil
	}

	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return make([]T, count), nil
	}

	size, err := memgo.SizeFor(elemSize, count)
	if err != nil {
		return nil, err
	}

	data, err := a.alloc(size, typeAlignment[T](a))
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), count), nil //nolint:gosec // unsafe is required for arena-backed slices
}

func typeAlignment[T any](a *Arena) int {
	var zero T
	if align := int(unsafe.Alignof(zero)); align > a.alignment {
		return align
	}
	return a.alignment
}

func (a *Arena) alloc(size, align int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	mask := align - 1
	alignedSize := (size + mask) &^ mask
	if alignedSize > a.chunkSize || alignedSize < size {
		return nil, fmt.Errorf("%w: %d bytes, chunk size %d", ErrChunkOverflow, size, a.chunkSize)
	}

	for {
		cur := a.current.Load()
		if cur == nil {
			return nil, ErrClosed
		}

		if data, ok := a.bump(cur, size, alignedSize); ok {
			return data, nil
		}

		// Full chunk. Recheck before taking the lock: another goroutine
		// may have grown the arena already.
		if a.current.Load() != cur {
			continue
		}

		a.mu.Lock()
		if a.current.Load() != cur {
			a.mu.Unlock()
			continue
		}
		err := a.growLocked()
		a.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

// bump claims alignedSize bytes at the end of c. It fails when the chunk
// is full or the offset moved under us; the caller retries.
func (a *Arena) bump(c *chunk, size, alignedSize int) ([]byte, bool) {
	base := c.offset.Load()
	end := base + int64(alignedSize)

	if end > int64(len(c.data)) {
		return nil, false
	}
	if !c.offset.CompareAndSwap(base, end) {
		return nil, false
	}

	a.stats.bytesLive.Add(uint64(size))
	a.stats.bytesPadding.Add(uint64(alignedSize - size))
	a.stats.allocCalls.Add(1)

	return c.data[base:end:end], true
}

// Reset drops every allocation and returns all chunks except the first to
// the backing allocator. The first chunk is kept and reused.
//
// Reset must not run concurrently with allocations. Slices handed out
// before the call become invalid, and reused memory is not re-zeroed.
// Reset on a freed arena is a no-op.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.chunks) == 0 {
		return
	}

	first := a.chunks[0]
	first.offset.Store(0)

	for _, c := range a.chunks[1:] {
		a.heap.Free(c.data)
	}
	a.chunks = a.chunks[:1]
	a.current.Store(first)

	a.stats.chunksLive.Store(1)
	a.stats.bytesHeld.Store(uint64(a.chunkSize))
	a.stats.bytesLive.Store(0)
	a.stats.bytesPadding.Store(0)
}

// Free returns every chunk to the backing allocator and closes the arena;
// later allocations fail with ErrClosed.
//
// Free must not run concurrently with allocations, and slices handed out
// by the arena become invalid. The usual pattern is defer a.Free() right
// after New.
func (a *Arena) Free() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, c := range a.chunks {
		a.heap.Free(c.data)
	}
	a.chunks = nil
	a.current.Store(nil)

	a.stats.chunksLive.Store(0)
	a.stats.bytesHeld.Store(0)
	a.stats.bytesLive.Store(0)
	a.stats.bytesPadding.Store(0)
}

// Stats returns a point-in-time copy of the arena counters.
func (a *Arena) Stats() Stats {
	return a.stats.snapshot()
}

// Usage reports live bytes as a percentage of held chunk capacity.
func (a *Arena) Usage() float64 {
	st := a.Stats()
	if st.BytesHeld == 0 {
		return 0
	}
	return float64(st.BytesLive) / float64(st.BytesHeld) * 100
}

func (a *Arena) String() string {
	st := a.Stats()
	return fmt.Sprintf("Arena{chunks: %d, held: %.2f MB, live: %.2f MB, padding: %.2f KB, usage: %.1f%%, allocs: %d}",
		st.ChunksLive,
		float64(st.BytesHeld)/(1024*1024),
		float64(st.BytesLive)/(1024*1024),
		float64(st.BytesPadding)/1024,
		a.Usage(),
		st.AllocCalls)
}

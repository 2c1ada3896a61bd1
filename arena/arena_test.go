package arena

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memgo"
)

func TestArena_New(t *testing.T) {
	t.Run("default chunk size", func(t *testing.T) {
		a, err := New(0)
		require.NoError(t, err)
		defer a.Free()

		assert.Equal(t, DefaultChunkSize, a.chunkSize)
		assert.Equal(t, DefaultAlignment, a.alignment)
		assert.NotNil(t, a.current.Load())
	})

	t.Run("custom chunk size", func(t *testing.T) {
		a, err := New(4096)
		require.NoError(t, err)
		defer a.Free()

		assert.Equal(t, 4096, a.chunkSize)
	})

	t.Run("rounds up to power of two", func(t *testing.T) {
		a, err := New(5000)
		require.NoError(t, err)
		defer a.Free()

		assert.Equal(t, 8192, a.chunkSize)
	})

	t.Run("invalid alignment", func(t *testing.T) {
		_, err := New(1024, WithAlignment(3))
		assert.Error(t, err)

		_, err = New(1024, WithAlignment(memgo.HeapAlignment*2))
		assert.Error(t, err)
	})
}

func TestArena_AllocBytes(t *testing.T) {
	t.Run("returns zeroed memory", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		got, err := a.AllocBytes(100)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, 100), got, "fresh chunks come back zeroed")
	})

	t.Run("zero size", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		got, err := a.AllocBytes(0)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("alignment", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		for _, size := range []int{1, 3, 5, 7, 9, 15, 17} {
			got, err := a.AllocBytes(size)
			require.NoError(t, err)

			addr := uintptr(unsafe.Pointer(unsafe.SliceData(got)))
			assert.Zerof(t, addr%DefaultAlignment, "size %d not aligned", size)
		}
	})

	t.Run("grows into more chunks", func(t *testing.T) {
		a, err := New(128)
		require.NoError(t, err)
		defer a.Free()

		for range 10 {
			_, err := a.AllocBytes(64)
			require.NoError(t, err)
		}

		assert.Greater(t, a.Stats().ChunksTotal, uint64(1))
	})

	t.Run("larger than chunk", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		_, err = a.AllocBytes(2048)
		assert.ErrorIs(t, err, ErrChunkOverflow)
	})

	t.Run("after free", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		a.Free()

		_, err = a.AllocBytes(16)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestAlloc(t *testing.T) {
	type point struct {
		X, Y float64
	}

	t.Run("struct", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		p, err := Alloc[point](a)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, point{}, *p)

		p.X, p.Y = 3, 4
		assert.Equal(t, point{X: 3, Y: 4}, *p)
	})

	t.Run("zero-sized type", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		p, err := Alloc[struct{}](a)
		require.NoError(t, err)
		assert.NotNil(t, p)
	})
}

func TestAllocSlice(t *testing.T) {
	t.Run("read write", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		got, err := AllocSlice[uint32](a, 10)
		require.NoError(t, err)
		require.Len(t, got, 10)

		for i := range got {
			got[i] = uint32(i)
		}
		for i, v := range got {
			assert.Equal(t, uint32(i), v)
		}
	})

	t.Run("zero count", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		got, err := AllocSlice[uint32](a, 0)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("count overflow", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		_, err = AllocSlice[int64](a, math.MaxInt)
		assert.ErrorIs(t, err, memgo.ErrSizeOverflow)
	})

	t.Run("allocations do not overlap", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		var slices [][]uint32
		for i := range 10 {
			s, err := AllocSlice[uint32](a, 5)
			require.NoError(t, err)
			s[0] = uint32(i)
			slices = append(slices, s)
		}
		for i, s := range slices {
			assert.Equal(t, uint32(i), s[0])
		}
	})
}

func TestArena_Stats(t *testing.T) {
	t.Run("fresh arena", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		st := a.Stats()
		assert.Equal(t, uint64(1), st.ChunksTotal)
		assert.Equal(t, uint64(1), st.ChunksLive)
		assert.Equal(t, uint64(1024), st.BytesHeld)
		assert.Zero(t, st.BytesLive)
	})

	t.Run("after allocations", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		_, _ = a.AllocBytes(100)
		_, _ = a.AllocBytes(200)
		_, _ = AllocSlice[uint32](a, 10)

		st := a.Stats()
		assert.Equal(t, uint64(340), st.BytesLive)
		assert.Equal(t, uint64(3), st.AllocCalls)
	})
}

func TestArena_BackingAllocator(t *testing.T) {
	heap := memgo.NewAllocator()

	a, err := New(4096, WithAllocator(heap))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), heap.Stats().LiveBlocks)

	// Force a second chunk.
	for range 3 {
		_, err := a.AllocBytes(2048)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), heap.Stats().LiveBlocks)

	a.Reset()
	assert.Equal(t, uint64(1), heap.Stats().LiveBlocks, "reset keeps the first chunk")

	a.Free()
	assert.Zero(t, heap.Stats().LiveBlocks)
}

func TestArena_Reset(t *testing.T) {
	t.Run("clears live counters", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		_, _ = a.AllocBytes(100)
		_, _ = a.AllocBytes(200)
		before := a.Stats().AllocCalls

		a.Reset()

		st := a.Stats()
		assert.Zero(t, st.BytesLive)
		assert.Equal(t, uint64(1), st.ChunksLive)
		assert.Equal(t, before, st.AllocCalls, "cumulative counters survive reset")
	})

	t.Run("releases extra chunks", func(t *testing.T) {
		a, err := New(256)
		require.NoError(t, err)
		defer a.Free()

		for range 10 {
			_, err := a.AllocBytes(128)
			require.NoError(t, err)
		}
		require.Greater(t, a.Stats().ChunksLive, uint64(1))

		a.Reset()
		assert.Equal(t, uint64(1), a.Stats().ChunksLive)
	})

	t.Run("usable afterwards", func(t *testing.T) {
		a, err := New(1024)
		require.NoError(t, err)
		defer a.Free()

		_, _ = a.AllocBytes(512)
		a.Reset()

		got, err := a.AllocBytes(512)
		require.NoError(t, err)
		assert.Len(t, got, 512)
	})
}

func TestArena_Usage(t *testing.T) {
	a, err := New(1024)
	require.NoError(t, err)
	defer a.Free()

	assert.Zero(t, a.Usage())

	_, _ = a.AllocBytes(512)
	assert.InDelta(t, 50.0, a.Usage(), 0.1)
}

func TestArena_Concurrent(t *testing.T) {
	a, err := New(DefaultChunkSize)
	require.NoError(t, err)
	defer a.Free()

	const goroutines = 100
	const perGoroutine = 100

	var failed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for j := range perGoroutine {
				s, err := AllocSlice[uint32](a, 16)
				if err != nil || len(s) != 16 {
					failed.Add(1)
					continue
				}
				s[0] = uint32(j)
				runtime.KeepAlive(s)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.Equal(t, uint64(goroutines*perGoroutine), a.Stats().AllocCalls)
}

func BenchmarkArena_AllocBytes(b *testing.B) {
	for _, size := range []int{16, 64, 256, 1024} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			a, err := New(DefaultChunkSize)
			if err != nil {
				b.Fatal(err)
			}
			defer a.Free()

			b.ReportAllocs()
			b.SetBytes(int64(size))
			n := 0
			for b.Loop() {
				_, _ = a.AllocBytes(size)
				if n++; n == 1024 {
					a.Reset()
					n = 0
				}
			}
		})
	}
}

func BenchmarkArena_vs_Make(b *testing.B) {
	b.Run("arena", func(b *testing.B) {
		a, err := New(DefaultChunkSize)
		if err != nil {
			b.Fatal(err)
		}
		defer a.Free()

		b.ReportAllocs()
		n := 0
		for b.Loop() {
			_, _ = AllocSlice[uint32](a, 16)
			if n++; n == 4096 {
				a.Reset()
				n = 0
			}
		}
	})

	b.Run("make", func(b *testing.B) {
		b.ReportAllocs()
		var sink []uint32
		for b.Loop() {
			sink = make([]uint32, 16)
		}
		_ = sink
	})
}

func BenchmarkArena_ConcurrentAllocs(b *testing.B) {
	a, err := New(DefaultChunkSize)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Free()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = AllocSlice[uint32](a, 16)
		}
	})
}

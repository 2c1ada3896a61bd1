package memgo

import (
	"sync/atomic"
)

// Stats tracks allocator usage.
//
// Note on semantics:
//   - BytesLive: bytes currently held by live blocks
//   - BytesPeak: high-water mark of BytesLive
//   - BytesTotal: cumulative bytes handed out (grow deltas included)
//   - FreeCalls: explicit Free invocations (implicit frees from realloc-to-zero
//     and resize failure paths move the byte counters but not this one)
type Stats struct {
	AllocCalls   uint64 `json:"alloc_calls"`
	ReallocCalls uint64 `json:"realloc_calls"`
	ResizeCalls  uint64 `json:"resize_calls"`
	FreeCalls    uint64 `json:"free_calls"`
	LiveBlocks   uint64 `json:"live_blocks"`
	BytesLive    uint64 `json:"bytes_live"`
	BytesPeak    uint64 `json:"bytes_peak"`
	BytesTotal   uint64 `json:"bytes_total"`
	Overflows    uint64 `json:"overflows"`
	Failures     uint64 `json:"failures"`
}

type atomicStats struct {
	allocCalls   atomic.Uint64
	reallocCalls atomic.Uint64
	resizeCalls  atomic.Uint64
	freeCalls    atomic.Uint64
	liveBlocks   atomic.Int64
	bytesLive    atomic.Int64
	bytesPeak    atomic.Int64
	bytesTotal   atomic.Uint64
	overflows    atomic.Uint64
	failures     atomic.Uint64
}

// addLive adjusts the live byte count and maintains the peak and cumulative
// counters for positive deltas.
func (s *atomicStats) addLive(delta int64) {
	if delta == 0 {
		return
	}

	live := s.bytesLive.Add(delta)
	if delta < 0 {
		return
	}

	s.bytesTotal.Add(uint64(delta))
	for {
		peak := s.bytesPeak.Load()
		if live <= peak || s.bytesPeak.CompareAndSwap(peak, live) {
			return
		}
	}
}

func (s *atomicStats) snapshot() Stats {
	return Stats{
		AllocCalls:   s.allocCalls.Load(),
		ReallocCalls: s.reallocCalls.Load(),
		ResizeCalls:  s.resizeCalls.Load(),
		FreeCalls:    s.freeCalls.Load(),
		LiveBlocks:   clampUint64(s.liveBlocks.Load()),
		BytesLive:    clampUint64(s.bytesLive.Load()),
		BytesPeak:    clampUint64(s.bytesPeak.Load()),
		BytesTotal:   s.bytesTotal.Load(),
		Overflows:    s.overflows.Load(),
		Failures:     s.failures.Load(),
	}
}

func clampUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

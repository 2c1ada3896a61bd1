package testutil

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
)

// RNG is a seeded, mutex-guarded random source for reproducible
// allocation patterns. Two RNGs with the same seed produce identical
// sequences, and Reset rewinds one to its start.
type RNG struct {
	mu   sync.Mutex
	src  *rand.PCG
	rand *rand.Rand
	seed int64
}

// NewRNG returns an RNG seeded with seed.
func NewRNG(seed int64) *RNG {
	src := rand.NewPCG(uint64(seed), uint64(seed))
	return &RNG{src: src, rand: rand.New(src), seed: seed}
}

// Reset rewinds the sequence to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.Seed(uint64(r.seed), uint64(r.seed))
}

// Seed reports the seed this RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// IntN returns a pseudo-random int in [0, n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Fill overwrites p with pseudo-random bytes under a single lock.
func (r *RNG) Fill(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, r.rand.Uint64())
		p = p[8:]
	}
	if len(p) > 0 {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], r.rand.Uint64())
		copy(p, tail[:])
	}
}

// Sizes returns count element counts uniformly distributed in
// [1, maxCount].
func (r *RNG) Sizes(count, maxCount int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sizes := make([]int, count)
	for i := range sizes {
		sizes[i] = 1 + r.rand.IntN(maxCount)
	}
	return sizes
}

// ZipfSizes returns count element counts in [1, maxCount] following a
// Zipfian distribution: P(k) ∝ 1/k^s. Allocation workloads tend to be
// power law shaped, many small blocks and few large ones. s=1.0 is
// classic Zipf; s=1.5 has a heavier tail.
func (r *RNG) ZipfSizes(count, maxCount int, s float64) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxCount = max(maxCount, 1)

	// Cumulative mass for ranks 1..maxCount, shared by every sample.
	cum := make([]float64, maxCount)
	var total float64
	for k := range cum {
		total += math.Pow(float64(k+1), -s)
		cum[k] = total
	}

	sizes := make([]int, count)
	for i := range sizes {
		u := r.rand.Float64() * total
		rank, _ := slices.BinarySearch(cum, u)
		sizes[i] = min(rank+1, maxCount)
	}
	return sizes
}

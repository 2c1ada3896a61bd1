// Package arena provides a chunked bump allocator on top of a memgo
// allocator.
//
// The arena carves small allocations out of large chunks requested from the
// backing allocator, so per-allocation cost drops to a single atomic add.
// Memory is reclaimed in bulk: individual allocations cannot be freed, only
// Reset or Free the whole arena.
//
// # Features
//
//   - Lock-free allocation fast path (CAS bump pointer)
//   - Chunks sourced from a memgo.Allocator, so budgets and stats apply
//   - Generic Alloc[T] and AllocSlice[T] helpers
//
// # Concurrency Model
//
// Concurrent allocations are safe. Reset and Free are NOT safe to run
// concurrently with allocations; callers must quiesce allocators first. The
// typical pattern is one arena per build phase, freed when the phase ends.
package arena

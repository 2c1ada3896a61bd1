// Package memgo provides a typed, overflow-checked allocation facade for Go.
//
// Memgo layers ownership-explicit block handles over a pluggable raw
// allocator, with production-ready features including:
//
//   - Type-safe generic handles: New[T](), NewSlice[T](), Block[T]
//   - Overflow-checked size computation before any backend call
//   - Explicit failure-ownership contracts: Realloc keeps the old block on
//     failure, Resize frees it
//   - Pluggable backends: managed heap (default) and page-granular sysmem
//   - Optional memory budgets via resource.Controller
//   - Optional live-allocation tracking with Roaring Bitmap-backed registry
//   - Heap snapshots with LZ4/ZSTD compression for offline leak analysis
//   - Bump arenas for transient allocation-heavy phases
//
// # Quick Start
//
// Allocate, use and release a typed array:
//
//	blk, err := memgo.NewSliceZeroed[int32](nil, 42) // nil selects memgo.Default
//	if err != nil {
//	    panic(err)
//	}
//	for i := range blk.Slice() {
//	    blk.Slice()[i] = int32(i)
//	}
//	blk = blk.Free() // blk is now empty, reuse is harmless
//
// Grow a block, keeping its contents:
//
//	blk, _ = memgo.NewSlice[int32](nil, 1)
//	blk.Slice()[0] = 1729
//	blk, err = blk.Realloc(2) // on failure blk survives unchanged
//	blk.Slice()[1] = 1701
//
// # Failure Ownership
//
// Realloc and Resize differ only in who owns the old block after a failure:
//
//	nb, err := blk.Realloc(n) // err != nil: nb == blk, still owned, free it yourself
//	nb, err := blk.Resize(n)  // err != nil: old block already freed, nb is empty
//
// Both report ErrSizeOverflow before the backend is ever consulted when
// elemSize * count is not representable, and ErrAllocationFailed when the
// backend refuses the request. Neither is retried internally.
//
// # Budgeted Allocation
//
// Attach a resource controller to cap total live bytes:
//
//	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	a := memgo.NewAllocator(memgo.WithResourceController(ctrl))
//	if _, err := memgo.NewSlice[byte](a, 128<<20); err != nil {
//	    // errors.Is(err, resource.ErrMemoryLimitExceeded)
//	}
//
// # Leak Tracking
//
// Track live blocks and inspect survivors:
//
//	a := memgo.NewAllocator(memgo.WithLeakTracking(true))
//	// ... workload ...
//	for _, la := range a.LiveAllocations() {
//	    fmt.Printf("leaked %s x%d (%d bytes)\n", la.Type, la.Count, la.Size)
//	}
package memgo

// Package testutil provides testing utilities for memgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a deterministic RNG for reproducible allocation patterns and
// a recording raw allocator with fault injection.
//
// # Reproducible Allocation Patterns
//
//	rng := testutil.NewRNG(seed)
//	counts := rng.Sizes(1000, 4096)         // uniform element counts
//	counts = rng.ZipfSizes(1000, 4096, 1.5) // power-law element counts
//
// # Backend Call Recording
//
//	rec := &testutil.RecordingAllocator{}
//	a := memgo.NewAllocator(memgo.WithRawAllocator(rec))
//	// ... exercise a ...
//	fmt.Println(rec.AllocCalls, rec.DeallocCalls)
//
// # Fault Injection
//
//	rec.FailAllocs = true // subsequent allocations return ErrInjected
package testutil

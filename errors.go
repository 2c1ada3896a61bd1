package memgo

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeOverflow is returned when element_size * element_count exceeds
	// the representable size range. It is detected before the raw allocator
	// is consulted and counts as an out-of-memory-class failure.
	ErrSizeOverflow = errors.New("size overflow")

	// ErrAllocationFailed is returned when the raw allocator refused a
	// request, typically due to memory exhaustion or a configured limit.
	ErrAllocationFailed = errors.New("allocation failed")
)

// AllocError describes a failed allocation operation.
//
// The underlying cause can be accessed via errors.Unwrap and always matches
// either ErrSizeOverflow or ErrAllocationFailed through errors.Is.
type AllocError struct {
	Op       string // "alloc", "alloc_zeroed", "realloc" or "resize"
	ElemSize int
	Count    int
	cause    error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("%s %d x %d bytes: %v", e.Op, e.Count, e.ElemSize, e.cause)
}

func (e *AllocError) Unwrap() error { return e.cause }

// opError normalizes cause into the facade's failure taxonomy. Causes that
// are not already classified count as allocator failures, so callers can
// always test errors.Is(err, ErrSizeOverflow) or ErrAllocationFailed.
func opError(op string, elemSize, count int, cause error) error {
	switch {
	case cause == nil:
		cause = ErrAllocationFailed
	case errors.Is(cause, ErrSizeOverflow), errors.Is(cause, ErrAllocationFailed):
	default:
		cause = fmt.Errorf("%w: %w", ErrAllocationFailed, cause)
	}

	return &AllocError{Op: op, ElemSize: elemSize, Count: count, cause: cause}
}

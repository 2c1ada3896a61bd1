package memgo

import (
	"fmt"
	"math"
	"math/bits"
)

// SizeFor computes the byte size of count elements of elemSize bytes,
// reporting overflow instead of silently wrapping.
//
// Detection is exact for all inputs: the product is computed in 128 bits
// via bits.Mul64 and rejected when it exceeds math.MaxInt. Negative
// arguments are rejected through the same condition, so callers only ever
// deal with the size-overflow failure class.
func SizeFor(elemSize, count int) (int, error) {
	if elemSize < 0 || count < 0 {
		return 0, fmt.Errorf("%w: %d elements of %d bytes", ErrSizeOverflow, count, elemSize)
	}

	hi, lo := bits.Mul64(uint64(elemSize), uint64(count))
	if hi != 0 || lo > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d elements of %d bytes", ErrSizeOverflow, count, elemSize)
	}

	return int(lo), nil
}

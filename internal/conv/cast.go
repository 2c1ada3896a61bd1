package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange reports a value with no representation in the target type.
var ErrOutOfRange = errors.New("conv: value out of range")

// IntToUint32 rejects negative inputs and, on 64-bit platforms, inputs
// above math.MaxUint32.
func IntToUint32(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit in uint32", ErrOutOfRange, n)
	}
	return uint32(n), nil
}

// Uint32ToInt fails only on 32-bit platforms, where int cannot hold
// values above math.MaxInt32.
func Uint32ToInt(n uint32) (int, error) {
	if uint64(n) > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d does not fit in int", ErrOutOfRange, n)
	}
	return int(n), nil
}

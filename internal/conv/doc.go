// Package conv converts between int and fixed-width unsigned integers
// with explicit bounds checks.
//
// The checks guard points where platform-sized values cross a
// serialization boundary, such as snapshot headers that store lengths as
// uint32. A rejected conversion reports ErrOutOfRange instead of
// silently truncating. Conversions that are safe by construction, such
// as loop indices, should use plain casts.
package conv

package memgo

import (
	"reflect"
	"unsafe"
)

// Block is an owning handle to a typed allocation. The element type is part
// of the handle, so a block cannot silently change type across a Realloc or
// Resize: the compiler rejects the call site instead of a runtime check.
//
// Element types must not contain pointers (no strings, slices, maps or
// pointer fields). Storage comes from untyped backends that the garbage
// collector does not scan, so a pointer stored there keeps nothing alive.
//
// Blocks follow single-owner semantics. Every operation that consumes a
// block (Free, Realloc, Resize) invalidates the receiver whether or not it
// succeeds, with one documented exception: Realloc leaves the receiver
// valid when it fails, so the caller can recover the original contents.
//
// The zero Block is an empty block bound to the Default allocator.
type Block[T any] struct {
	data []T
	raw  []byte
	a    *Allocator
}

// New allocates a single object of type T. The block is sized exactly
// unsafe.Sizeof(T); no overflow is possible for a single object, but
// allocation can still fail.
//
// A nil allocator selects Default.
func New[T any](a *Allocator) (Block[T], error) {
	return makeBlock[T](a, opAlloc, 1)
}

// NewZeroed is New with zero-initialized storage guaranteed by contract.
// Backends over the managed heap zero storage either way; fallible backends
// may not.
func NewZeroed[T any](a *Allocator) (Block[T], error) {
	return makeBlock[T](a, opAllocZeroed, 1)
}

// NewSlice allocates an array of count elements of type T.
//
// count == 0 yields an empty block and no error: there is nothing to
// allocate, and this is distinguished from failure.
func NewSlice[T any](a *Allocator, count int) (Block[T], error) {
	return makeBlock[T](a, opAlloc, count)
}

// NewSliceZeroed is NewSlice with zero-initialized storage guaranteed by
// contract. It uses the backend's zeroing slot directly rather than
// allocate-then-clear.
func NewSliceZeroed[T any](a *Allocator, count int) (Block[T], error) {
	return makeBlock[T](a, opAllocZeroed, count)
}

func makeBlock[T any](a *Allocator, op string, count int) (Block[T], error) {
	if a == nil {
		a = Default
	}

	elemSize := sizeOf[T]()
	typ := ""
	if a.tracker != nil {
		typ = typeName[T]()
	}

	raw, err := a.allocate(op, elemSize, count, typ)
	if err != nil {
		return Block[T]{a: a}, err
	}
	if elemSize == 0 && count > 0 {
		// Zero-sized elements occupy no storage; the raw backend returned
		// no block, but every element still needs an address.
		return Block[T]{data: make([]T, count), a: a}, nil
	}
	if raw == nil {
		return Block[T]{a: a}, nil
	}

	return Block[T]{data: viewAs[T](raw, count), raw: raw, a: a}, nil
}

// Realloc resizes the block to count elements, preserving the surviving
// prefix. count == 0 frees the block and yields an empty one.
//
// On success the receiver is invalid and the returned block replaces it.
// On failure the returned block IS the receiver, still valid and owned by
// the caller; freeing it remains the caller's job. Use Resize when the
// block should not outlive a failed resize.
func (b Block[T]) Realloc(count int) (Block[T], error) {
	a := b.allocator()

	nb, err := a.reallocate(opRealloc, b.raw, sizeOf[T](), count, b.freshType(a))
	if err != nil {
		return b, err
	}

	return remade(b, a, nb, count), nil
}

// Resize is Realloc, except that the block is released on failure. The
// receiver is invalid after the call on every path, so callers never need
// a separate Free.
func (b Block[T]) Resize(count int) (Block[T], error) {
	a := b.allocator()

	nb, err := a.reallocate(opResize, b.raw, sizeOf[T](), count, b.freshType(a))
	if err != nil {
		a.release(b.raw)
		return Block[T]{a: a}, err
	}

	return remade(b, a, nb, count), nil
}

// Free releases the block's storage and returns the empty replacement
// handle, so a caller assigns it straight back and is left holding a
// definitively empty block:
//
//	blk = blk.Free()
//
// Freeing an empty block is a safe no-op.
func (b Block[T]) Free() Block[T] {
	a := b.allocator()
	a.stats.freeCalls.Add(1)
	a.release(b.raw)

	return Block[T]{a: a}
}

// Slice returns the block's elements. The slice aliases the block's storage
// and must not be used after Free, Realloc or Resize.
func (b Block[T]) Slice() []T {
	return b.data
}

// Ptr returns a pointer to the first element, or nil for an empty block.
func (b Block[T]) Ptr() *T {
	if len(b.data) == 0 {
		return nil
	}
	return &b.data[0]
}

// Len returns the element count.
func (b Block[T]) Len() int {
	return len(b.data)
}

// IsEmpty reports whether the handle holds no block.
func (b Block[T]) IsEmpty() bool {
	return b.data == nil
}

// Allocator returns the allocator the block is bound to.
func (b Block[T]) Allocator() *Allocator {
	return b.allocator()
}

func (b Block[T]) allocator() *Allocator {
	if b.a == nil {
		return Default
	}
	return b.a
}

// freshType returns the element type name for the live registry when a
// reallocation would register a fresh block; moves keep the original entry.
func (b Block[T]) freshType(a *Allocator) string {
	if a.tracker == nil || b.raw != nil {
		return ""
	}
	return typeName[T]()
}

// remade rebuilds the typed view after a successful reallocation.
func remade[T any](b Block[T], a *Allocator, raw []byte, count int) Block[T] {
	if sizeOf[T]() == 0 && count > 0 {
		if count <= len(b.data) {
			return Block[T]{data: b.data[:count], a: a}
		}
		return Block[T]{data: make([]T, count), a: a}
	}
	if raw == nil {
		return Block[T]{a: a}
	}

	return Block[T]{data: viewAs[T](raw, count), raw: raw, a: a}
}

// viewAs reinterprets a byte block as count elements of T. Backends
// guarantee at least 8-byte alignment, which covers every Go element type.
func viewAs[T any](b []byte, count int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), count) //nolint:gosec // unsafe is required to type raw storage
}

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

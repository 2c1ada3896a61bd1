package sysmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysmem_AllocateFreeCycle(t *testing.T) {
	a := New()

	b, err := a.Allocate(100)
	require.NoError(t, err)
	require.Len(t, b, 100)

	// Fresh mappings are zero-filled and page-aligned.
	assert.Zero(t, base(b)%uintptr(a.PageSize()))
	for i := range b {
		require.Zero(t, b[i])
	}

	// Whole extent is writable and readable back.
	for i := range b {
		b[i] = byte(i)
	}
	assert.Equal(t, byte(99), b[99])

	assert.Equal(t, int64(a.PageSize()), a.MappedBytes())

	a.Deallocate(b)
	assert.Equal(t, int64(0), a.MappedBytes())
}

func TestSysmem_AllocateZeroSize(t *testing.T) {
	a := New()

	b, err := a.Allocate(0)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = a.Allocate(-1)
	require.NoError(t, err)
	assert.Nil(t, b)

	assert.Equal(t, int64(0), a.MappedBytes())
}

func TestSysmem_AllocateZeroed(t *testing.T) {
	a := New()

	b, err := a.AllocateZeroed(16, 8)
	require.NoError(t, err)
	require.Len(t, b, 128)
	for i := range b {
		require.Zero(t, b[i])
	}

	a.Deallocate(b)
}

func TestSysmem_ReallocateInPlace(t *testing.T) {
	a := New()

	b, err := a.Allocate(100)
	require.NoError(t, err)
	copy(b, []byte("sysmem"))

	// Growth within the page slack keeps the address and the mapping.
	nb, err := a.Reallocate(b, 200)
	require.NoError(t, err)
	require.Len(t, nb, 200)
	assert.Equal(t, base(b), base(nb))
	assert.Equal(t, []byte("sysmem"), nb[:6])
	assert.Equal(t, int64(a.PageSize()), a.MappedBytes())

	// Shrink stays in place too.
	sb, err := a.Reallocate(nb, 10)
	require.NoError(t, err)
	require.Len(t, sb, 10)
	assert.Equal(t, base(b), base(sb))

	a.Deallocate(sb)
	assert.Equal(t, int64(0), a.MappedBytes())
}

func TestSysmem_ReallocateAcrossPages(t *testing.T) {
	a := New()
	page := a.PageSize()

	b, err := a.Allocate(page)
	require.NoError(t, err)
	copy(b, []byte("prefix"))

	nb, err := a.Reallocate(b, 3*page)
	require.NoError(t, err)
	require.Len(t, nb, 3*page)
	assert.Equal(t, []byte("prefix"), nb[:6])

	// The old mapping is gone, only the grown one is accounted.
	assert.Equal(t, int64(3*page), a.MappedBytes())

	a.Deallocate(nb)
	assert.Equal(t, int64(0), a.MappedBytes())
}

func TestSysmem_ReallocateNilIsAllocate(t *testing.T) {
	a := New()

	b, err := a.Reallocate(nil, 64)
	require.NoError(t, err)
	require.Len(t, b, 64)

	a.Deallocate(b)
}

func TestSysmem_ReallocateToZeroFrees(t *testing.T) {
	a := New()

	b, err := a.Allocate(64)
	require.NoError(t, err)

	nb, err := a.Reallocate(b, 0)
	require.NoError(t, err)
	assert.Nil(t, nb)
	assert.Equal(t, int64(0), a.MappedBytes())
}

func TestSysmem_ReallocateUnknownBlock(t *testing.T) {
	a := New()

	foreign := make([]byte, 32)
	_, err := a.Reallocate(foreign, 64)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestSysmem_DeallocateUnknownBlock(t *testing.T) {
	a := New()

	a.Deallocate(make([]byte, 32))
	assert.Equal(t, int64(1), a.UnknownFrees())

	// nil is a plain no-op, not an unknown free.
	a.Deallocate(nil)
	assert.Equal(t, int64(1), a.UnknownFrees())
}

func TestSysmem_Close(t *testing.T) {
	a := New()

	for i := 0; i < 4; i++ {
		_, err := a.Allocate(100)
		require.NoError(t, err)
	}
	require.Equal(t, int64(4*a.PageSize()), a.MappedBytes())

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), a.MappedBytes())

	// The allocator stays usable after Close.
	b, err := a.Allocate(10)
	require.NoError(t, err)
	a.Deallocate(b)
}

func TestSysmem_AccessPattern(t *testing.T) {
	a := New(WithAccessPattern(AccessSequential))

	b, err := a.Allocate(100)
	require.NoError(t, err)
	require.Len(t, b, 100)

	a.Deallocate(b)
}

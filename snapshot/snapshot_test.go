package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memgo"
	"github.com/hupe1980/memgo/codec"
	"github.com/hupe1980/memgo/resource"
)

func testSnapshot(groups int) *Snapshot {
	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Stats: memgo.Stats{
			AllocCalls: 12,
			FreeCalls:  9,
			LiveBlocks: 3,
			BytesLive:  4096,
			BytesPeak:  8192,
			BytesTotal: 65536,
		},
	}
	for i := 0; i < groups; i++ {
		snap.Live = append(snap.Live, LiveGroup{
			Type:     fmt.Sprintf("pkg%d.SomeRepeatedTypeName", i%7),
			Blocks:   uint64(i + 1),
			Elements: uint64(i * 100),
			Bytes:    uint64(i * 400),
		})
	}
	return snap
}

func TestCapture(t *testing.T) {
	a := memgo.NewAllocator(memgo.WithLeakTracking(true))

	ints, err := memgo.NewSlice[int32](a, 10)
	require.NoError(t, err)
	moreInts, err := memgo.NewSlice[int32](a, 20)
	require.NoError(t, err)
	floats, err := memgo.NewSliceZeroed[float64](a, 5)
	require.NoError(t, err)
	raw, err := a.Alloc(1, 128)
	require.NoError(t, err)

	snap := Capture(a)

	require.Len(t, snap.Live, 3)

	// Groups appear in first-seen order.
	assert.Equal(t, "int32", snap.Live[0].Type)
	assert.Equal(t, uint64(2), snap.Live[0].Blocks)
	assert.Equal(t, uint64(30), snap.Live[0].Elements)
	assert.Equal(t, uint64(120), snap.Live[0].Bytes)

	assert.Equal(t, "float64", snap.Live[1].Type)
	assert.Equal(t, uint64(1), snap.Live[1].Blocks)
	assert.Equal(t, uint64(40), snap.Live[1].Bytes)

	// Untyped byte-level blocks group under "raw".
	assert.Equal(t, "raw", snap.Live[2].Type)
	assert.Equal(t, uint64(128), snap.Live[2].Bytes)

	assert.Equal(t, uint64(4), snap.Stats.LiveBlocks)

	ints.Free()
	moreInts.Free()
	floats.Free()
	a.Free(raw)
}

func TestCaptureUntracked(t *testing.T) {
	a := memgo.NewAllocator()

	blk, err := memgo.NewSlice[int64](a, 8)
	require.NoError(t, err)
	defer blk.Free()

	snap := Capture(a)
	assert.Empty(t, snap.Live)
	assert.Equal(t, uint64(1), snap.Stats.AllocCalls)
}

func TestWriteReadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "defaults"},
		{name: "stdlib json", opts: []Option{WithCodec(codec.JSON{})}},
		{name: "lz4", opts: []Option{WithCompression(CompressionLZ4)}},
		{name: "zstd", opts: []Option{WithCompression(CompressionZSTD)}},
		{name: "zstd+json", opts: []Option{WithCompression(CompressionZSTD), WithCodec(codec.JSON{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testSnapshot(100)

			var buf bytes.Buffer
			require.NoError(t, Write(context.Background(), &buf, in, tt.opts...))

			out, err := Read(&buf)
			require.NoError(t, err)

			assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
			assert.Equal(t, in.Stats, out.Stats)
			assert.Equal(t, in.Live, out.Live)
		})
	}
}

func TestWriteCompressionActuallyShrinks(t *testing.T) {
	in := testSnapshot(500)

	var plain, compressed bytes.Buffer
	require.NoError(t, Write(context.Background(), &plain, in))
	require.NoError(t, Write(context.Background(), &compressed, in, WithCompression(CompressionZSTD)))

	assert.Less(t, compressed.Len(), plain.Len())
}

func TestWriteTinyPayload(t *testing.T) {
	// Tiny payloads may be stored uncompressed; either way the file
	// must round-trip.
	in := testSnapshot(0)

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, in, WithCompression(CompressionLZ4)))

	out, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Stats, out.Stats)
}

func TestReadRejectsGarbage(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := Read(bytes.NewReader([]byte("NOTASNAPxxxxxxxxxxxx")))
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("bad version", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(context.Background(), &buf, testSnapshot(1)))

		data := buf.Bytes()
		data[len(Magic)] = 99

		_, err := Read(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("unknown codec", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(context.Background(), &buf, testSnapshot(1)))

		data := buf.Bytes()
		// Codec name starts after magic+version+compression+len byte.
		data[len(Magic)+3] = 'x'

		_, err := Read(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrUnknownCodec)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(context.Background(), &buf, testSnapshot(1)))

		data := buf.Bytes()
		data[len(data)-1] ^= 0xFF

		_, err := Read(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("truncated", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(context.Background(), &buf, testSnapshot(1)))

		_, err := Read(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Read(bytes.NewReader(nil))
		assert.Error(t, err)
	})
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heap.snap")

	in := testSnapshot(10)
	require.NoError(t, Save(context.Background(), path, in, WithCompression(CompressionLZ4)))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in.Live, out.Live)

	// Saving again replaces the file atomically.
	in2 := testSnapshot(20)
	require.NoError(t, Save(context.Background(), path, in2))

	out2, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, out2.Live, 20)
}

func TestSaveWithController(t *testing.T) {
	ctrl := resource.NewController(resource.Config{
		MaxBackgroundWorkers: 1,
		IOLimitBytesPerSec:   1 << 30,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "heap.snap")

	require.NoError(t, Save(context.Background(), path, testSnapshot(5), WithResourceController(ctrl)))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, out.Live, 5)
}

// Package snapshot captures allocator state for offline analysis: the
// counter set plus, when leak tracking is on, the live blocks aggregated by
// element type. Snapshots serialize to a self-describing binary format with
// optional LZ4/ZSTD payload compression.
package snapshot

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/memgo"
	"github.com/hupe1980/memgo/codec"
	"github.com/hupe1980/memgo/internal/conv"
	"github.com/hupe1980/memgo/resource"
)

const (
	// Magic identifies memgo snapshot files (ASCII: "MGOSNAP1").
	Magic = "MGOSNAP1"
	// Version is the current snapshot format version.
	Version = 1
)

var (
	// ErrInvalidFormat is returned when the header magic does not match.
	ErrInvalidFormat = errors.New("snapshot: invalid format")
	// ErrInvalidVersion is returned for format versions this build cannot read.
	ErrInvalidVersion = errors.New("snapshot: unsupported version")
	// ErrUnknownCodec is returned when the header names a codec this build lacks.
	ErrUnknownCodec = errors.New("snapshot: unknown codec")
	// ErrChecksum is returned when the payload checksum does not match.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
)

// Castagnoli polynomial, hardware accelerated on amd64 and arm64.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// LiveGroup aggregates the live blocks of one element type.
type LiveGroup struct {
	Type     string `json:"type"`
	Blocks   uint64 `json:"blocks"`
	Elements uint64 `json:"elements"`
	Bytes    uint64 `json:"bytes"`
}

// Snapshot is a point-in-time capture of an allocator's state.
type Snapshot struct {
	CreatedAt time.Time   `json:"created_at"`
	Stats     memgo.Stats `json:"stats"`
	Live      []LiveGroup `json:"live,omitempty"`
}

// Capture takes a point-in-time snapshot of a. Live groups are included
// when the allocator tracks its blocks, aggregated by element type in
// first-seen order; untyped byte-level blocks group under "raw".
func Capture(a *memgo.Allocator) *Snapshot {
	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Stats:     a.Stats(),
	}

	byType := make(map[string]int)
	for _, la := range a.LiveAllocations() {
		typ := la.Type
		if typ == "" {
			typ = "raw"
		}

		i, ok := byType[typ]
		if !ok {
			i = len(snap.Live)
			byType[typ] = i
			snap.Live = append(snap.Live, LiveGroup{Type: typ})
		}
		snap.Live[i].Blocks++
		snap.Live[i].Elements += uint64(la.Count)
		snap.Live[i].Bytes += uint64(la.Size)
	}

	return snap
}

type options struct {
	codec       codec.Codec
	compression CompressionType
	controller  *resource.Controller
}

// Option configures snapshot encoding.
type Option func(*options)

// WithCodec configures the codec used to encode the snapshot payload.
// The codec name is recorded in the header, so readers pick it up
// automatically. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects payload compression. The default is
// CompressionNone; LZ4 or ZSTD pay off once tracked live sets grow large.
func WithCompression(ct CompressionType) Option {
	return func(o *options) {
		o.compression = ct
	}
}

// WithResourceController routes snapshot IO through the controller's IO
// budget and holds a background-worker slot for the duration of Save.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:       codec.Default,
		compression: CompressionNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Write encodes snap to w.
//
// Layout: magic, version byte, compression byte, codec-name length + name,
// then uint32 LE uncompressed and stored payload sizes, a uint32 LE CRC-32C
// of the stored payload, then the payload. A stored size of 0 means the
// payload is uncompressed. The header is self-describing, so Read needs no
// options.
func Write(ctx context.Context, w io.Writer, snap *Snapshot, optFns ...Option) error {
	opts := applyOptions(optFns)

	payload, err := opts.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	usize, err := conv.IntToUint32(len(payload))
	if err != nil {
		return fmt.Errorf("snapshot: payload too large: %w", err)
	}

	stored, csize, err := compressPayload(payload, opts.compression)
	if err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	compression := opts.compression
	if csize == 0 {
		compression = CompressionNone
	}

	name := opts.codec.Name()
	if len(name) == 0 || len(name) > 255 {
		return fmt.Errorf("%w: codec name %q", ErrInvalidFormat, name)
	}

	header := make([]byte, 0, len(Magic)+3+len(name)+12)
	header = append(header, Magic...)
	header = append(header, Version, byte(compression), byte(len(name)))
	header = append(header, name...)

	var trailer [12]byte
	binary.LittleEndian.PutUint32(trailer[0:], usize)
	binary.LittleEndian.PutUint32(trailer[4:], csize)
	binary.LittleEndian.PutUint32(trailer[8:], crc32.Checksum(stored, crcTable))
	header = append(header, trailer[:]...)

	out := w
	if opts.controller != nil {
		out = resource.NewRateLimitedWriter(ctx, w, opts.controller)
	}

	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	if _, err := out.Write(stored); err != nil {
		return fmt.Errorf("snapshot: write payload: %w", err)
	}

	return nil
}

// Read decodes a snapshot from r, selecting codec and compression from the
// header.
func Read(r io.Reader) (*Snapshot, error) {
	head := make([]byte, len(Magic)+3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	if string(head[:len(Magic)]) != Magic {
		return nil, ErrInvalidFormat
	}
	if head[len(Magic)] != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, head[len(Magic)])
	}

	compression := CompressionType(head[len(Magic)+1])
	nameLen := int(head[len(Magic)+2])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("snapshot: read codec name: %w", err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, string(name))
	}

	var sizes [12]byte
	if _, err := io.ReadFull(r, sizes[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read sizes: %w", err)
	}
	usize, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(sizes[0:]))
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	csize, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(sizes[4:]))
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	wantCRC := binary.LittleEndian.Uint32(sizes[8:])

	storedLen := csize
	if csize == 0 {
		storedLen = usize
	}
	stored := make([]byte, storedLen)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("snapshot: read payload: %w", err)
	}
	if got := crc32.Checksum(stored, crcTable); got != wantCRC {
		return nil, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, wantCRC)
	}

	payload := stored
	if csize != 0 {
		payload, err = decompressPayload(stored, usize, compression)
		if err != nil {
			return nil, err
		}
	}

	var snap Snapshot
	if err := c.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}

	return &snap, nil
}

// Save writes snap to path atomically: the bytes land in a temp file in the
// same directory first and replace path only after a successful sync.
func Save(ctx context.Context, path string, snap *Snapshot, optFns ...Option) error {
	opts := applyOptions(optFns)
	if opts.controller != nil {
		if err := opts.controller.AcquireBackground(ctx); err != nil {
			return fmt.Errorf("snapshot: acquire worker: %w", err)
		}
		defer opts.controller.ReleaseBackground()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 64*1024)
	if err := Write(ctx, buf, snap, optFns...); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp: %w", err)
	}

	// Atomically replace target.
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from touching the final file.
	tmpName = ""

	return nil
}

// Load reads a snapshot from path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	return Read(f)
}

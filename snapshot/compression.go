package snapshot

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/memgo/internal/conv"
)

// CompressionType selects the payload compression algorithm. The value is
// recorded in the snapshot header, so the numbering is part of the wire
// format.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0 // payload stored as-is
	CompressionLZ4  CompressionType = 1 // fast, modest ratio
	CompressionZSTD CompressionType = 2 // better ratio, slower
)

var zstdEncoders = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	},
}

var zstdDecoders = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// compressPayload compresses data for storage. A zero csize means the
// payload goes out uncompressed: compression was off, the input was empty,
// or compressing saved less than 10%.
func compressPayload(data []byte, ct CompressionType) ([]byte, uint32, error) {
	if ct == CompressionNone || len(data) == 0 {
		return data, 0, nil
	}

	compressed, err := compress(data, ct)
	if err != nil {
		return nil, 0, err
	}
	// Near-incompressible payloads are stored as-is; a csize of 0 in the
	// header tells the reader to skip decompression.
	if len(compressed) == 0 || len(compressed)*10 > len(data)*9 {
		return data, 0, nil
	}

	csize, err := conv.IntToUint32(len(compressed))
	if err != nil {
		return nil, 0, err
	}
	return compressed, csize, nil
}

func compress(data []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionLZ4:
		// CompressBlock reports 0 bytes written for incompressible input.
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil

	case CompressionZSTD:
		enc := zstdEncoders.Get().(*zstd.Encoder)
		defer zstdEncoders.Put(enc)
		return enc.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("snapshot: unknown compression type %d", ct)
}

// decompressPayload reverses compressPayload for a payload that was stored
// compressed. usize comes from the header and bounds the result exactly.
func decompressPayload(data []byte, usize int, ct CompressionType) ([]byte, error) {
	out := make([]byte, usize)

	var n int
	switch ct {
	case CompressionLZ4:
		var err error
		n, err = lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}

	case CompressionZSTD:
		dec := zstdDecoders.Get().(*zstd.Decoder)
		decoded, err := dec.DecodeAll(data, out[:0])
		zstdDecoders.Put(dec)
		if err != nil {
			return nil, err
		}
		n, out = len(decoded), decoded

	default:
		return nil, fmt.Errorf("snapshot: unknown compression type %d", ct)
	}

	if n != usize {
		return nil, fmt.Errorf("snapshot: decompressed %d bytes, header says %d", n, usize)
	}
	return out, nil
}

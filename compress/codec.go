// Package compress provides the envelope compression codecs used by the
// byte-slice entry points. A compressed payload is the encoded token stream
// wrapped in a 2-byte envelope header; the token stream itself is never
// compressed in place, so streaming writers and readers are unaffected.
package compress

import (
	"fmt"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
)

// Compressor compresses a complete encoded payload.
type Compressor interface {
	// Compress compresses the input data and returns the compressed result.
	// The input slice is not modified. The no-op codec returns the input
	// slice itself; the other codecs return a newly allocated slice.
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a payload produced by the matching Compressor.
type Decompressor interface {
	// Decompress decompresses the input data and returns the original
	// result. Corrupted or incompatible data returns an error.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec returns the codec for a compression type.
func CreateCodec(typ format.CompressionType) (Codec, error) {
	switch typ {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("compression type 0x%02X: %w", uint8(typ), errs.ErrBadEnvelope)
	}
}

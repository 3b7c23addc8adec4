package compress

// ZstdCompressor provides Zstandard compression for encoded payloads. Best
// ratio of the supported codecs; pick it when the payload is archived or
// shipped over constrained links and decompression is infrequent.
//
// The implementation is selected at build time: the cgo build uses
// valyala/gozstd, the pure-Go build uses klauspost/compress/zstd.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}

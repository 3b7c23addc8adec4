package bind

import (
	"github.com/arloliu/keypack/format"
)

// Options controls the binder's encoding policy. The zero value is not
// useful; start from DefaultOptions.
type Options struct {
	// KeyInterning routes struct field names and map keys through the key
	// table (SET_KEY/USE_KEY). When false, keys are emitted as inline
	// strings and the table is never touched.
	KeyInterning bool

	// StructTemplates makes the binder define one struct template per
	// descriptor per stream and emit records as USE_STRUCT blocks instead of
	// maps. Decoding accepts both forms regardless of this setting.
	StructTemplates bool

	// TimeFormat selects the wire form of time.Time values.
	TimeFormat format.TimeFormat

	// MaxDepth bounds nesting depth on the encode side, failing fast on
	// cyclic values. Decode-side depth is bounded by the reader's Limits.
	MaxDepth int
}

// DefaultOptions returns the default binder policy: key interning on,
// struct templates off, portable Unix-millisecond moments.
func DefaultOptions() Options {
	return Options{
		KeyInterning:    true,
		StructTemplates: false,
		TimeFormat:      format.TimeUnixMilli,
		MaxDepth:        100,
	}
}

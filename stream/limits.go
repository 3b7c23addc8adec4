package stream

// Limits bounds what the Reader will accept before allocating. Every check
// fires before the corresponding buffer or table entry is allocated, so a
// hostile stream cannot force a large allocation by lying about a length.
type Limits struct {
	// MaxStringLength bounds a single string payload in bytes.
	MaxStringLength int

	// MaxBinaryLength bounds a single binary payload in bytes.
	MaxBinaryLength int

	// MaxKeyTableSize bounds the number of interned keys the reader will
	// track.
	MaxKeyTableSize int

	// MaxStructTableSize bounds the number of struct templates the reader
	// will track.
	MaxStructTableSize int

	// MaxDepth bounds nesting depth. The depth counter is maintained by the
	// object binder (and by Skip within a single call); the low-level reader
	// does not track depth across calls.
	MaxDepth int
}

// DefaultLimits returns the default reader limits.
func DefaultLimits() Limits {
	return Limits{
		MaxStringLength:    10 * 1024 * 1024,  // 10 MiB
		MaxBinaryLength:    100 * 1024 * 1024, // 100 MiB
		MaxKeyTableSize:    10000,
		MaxStructTableSize: 1000,
		MaxDepth:           100,
	}
}

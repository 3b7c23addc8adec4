// Package errs defines the sentinel errors raised by the keypack codec.
// Call sites wrap these with fmt.Errorf("...: %w", errs.ErrX) to add context;
// callers test with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Stream-level decode failures. All of these are fatal to the stream.
var (
	// ErrTruncated indicates end-of-stream inside a token.
	ErrTruncated = errors.New("unexpected end of stream inside token")

	// ErrMalformedToken indicates an unknown or reserved marker, or an
	// impossible varint.
	ErrMalformedToken = errors.New("malformed token")

	// ErrTypeMismatch indicates a typed read called for a marker of another
	// family.
	ErrTypeMismatch = errors.New("wire type mismatch")

	// ErrUnknownKeyID indicates a USE_KEY referencing an id with no prior
	// SET_KEY.
	ErrUnknownKeyID = errors.New("unknown key id")

	// ErrUnknownStructID indicates a USE_STRUCT referencing an id with no
	// prior DEFINE_STRUCT.
	ErrUnknownStructID = errors.New("unknown struct template id")

	// ErrLimitExceeded indicates a reader limit would be breached. Raised
	// before any allocation takes place.
	ErrLimitExceeded = errors.New("reader limit exceeded")

	// ErrInvalidNesting indicates an END with no open BEGIN frame, a
	// counted-collection element count mismatch, or an unbounded collection
	// decoded into a counted container.
	ErrInvalidNesting = errors.New("invalid nesting")
)

// Binder failures.
var (
	// ErrUnsupportedTarget indicates the binder was asked to bind a Go type
	// the format cannot carry.
	ErrUnsupportedTarget = errors.New("unsupported target type")

	// ErrDepthExceeded indicates the nesting depth limit was hit, on either
	// the encode or decode side. It wraps ErrLimitExceeded.
	ErrDepthExceeded = fmt.Errorf("nesting depth exceeded: %w", ErrLimitExceeded)

	// ErrNotPointer indicates a decode target that is not a non-nil pointer.
	ErrNotPointer = errors.New("decode target must be a non-nil pointer")
)

// Writer-side failures.
var (
	// ErrStringTooLong indicates a string or binary payload above the 2^32-1
	// byte wire limit.
	ErrStringTooLong = errors.New("payload exceeds maximum wire length")

	// ErrTooManyFields indicates a struct template with more than 255 fields.
	ErrTooManyFields = errors.New("struct template exceeds 255 fields")

	// ErrVarintRange indicates a value outside the 28-bit command varint
	// domain.
	ErrVarintRange = errors.New("value exceeds varint range")

	// ErrNegativeCount indicates a negative collection header count.
	ErrNegativeCount = errors.New("negative collection count")

	// ErrDuplicateField indicates a descriptor with two fields sharing a
	// wire name.
	ErrDuplicateField = errors.New("duplicate field name in descriptor")
)

// Envelope failures.
var (
	// ErrBadEnvelope indicates a compression envelope with an unknown magic
	// byte or codec id.
	ErrBadEnvelope = errors.New("invalid compression envelope")
)

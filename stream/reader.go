package stream

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/arloliu/keypack/encoding"
	"github.com/arloliu/keypack/endian"
	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/internal/options"
)

// Reader consumes keypack tokens from an io.Reader. It maintains the
// decoder-side key and struct-template tables, enforces Limits before any
// allocation, and supports structural skip over arbitrary subtrees.
//
// A missing marker at a token boundary surfaces as io.EOF; running out of
// bytes inside a token surfaces as errs.ErrTruncated.
type Reader struct {
	src       *bufio.Reader
	raw       io.Reader
	engine    endian.EndianEngine
	limits    Limits
	keys      map[uint32]string
	structs   map[uint32][]string
	frames    int // open unbounded BEGIN frames observed via ReadArrayHeader/ReadMapHeader
	leaveOpen bool
	scratch   [8]byte
}

// ReaderOption configures a Reader.
type ReaderOption = options.Option[*Reader]

// WithLimits replaces the default reader limits.
func WithLimits(limits Limits) ReaderOption {
	return options.NoError(func(r *Reader) {
		r.limits = limits
	})
}

// WithReaderLeaveOpen keeps the underlying source open when the Reader is
// closed.
func WithReaderLeaveOpen(leaveOpen bool) ReaderOption {
	return options.NoError(func(r *Reader) {
		r.leaveOpen = leaveOpen
	})
}

// NewReader creates a Reader over src with default limits.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		raw:     src,
		engine:  endian.GetBigEndianEngine(),
		limits:  DefaultLimits(),
		keys:    make(map[uint32]string),
		structs: make(map[uint32][]string),
	}
	if br, ok := src.(*bufio.Reader); ok {
		r.src = br
	} else {
		r.src = bufio.NewReader(src)
	}
	_ = options.Apply(r, opts...)

	return r
}

// Limits returns the reader's active limits.
func (r *Reader) Limits() Limits {
	return r.limits
}

// PeekKind classifies the next token without consuming it. At a clean end of
// input it returns KindEOF; a reserved marker classifies as KindInvalid and
// fails on the subsequent read.
func (r *Reader) PeekKind() (format.Kind, error) {
	b, err := r.src.Peek(1)
	if err != nil {
		if err == io.EOF {
			return format.KindEOF, nil
		}

		return format.KindInvalid, fmt.Errorf("peek: %w", err)
	}

	return format.KindOf(b[0]), nil
}

// ReadKind consumes the next marker byte and returns its classification.
// Typed reads expect the marker unconsumed; ReadKind exists for consumers
// that dispatch on the raw marker stream (tests, tooling).
func (r *Reader) ReadKind() (format.Kind, error) {
	marker, err := r.readMarker()
	if err != nil {
		return format.KindInvalid, err
	}

	return format.KindOf(marker), nil
}

// readMarker consumes the next marker byte. Reserved markers fail here so no
// typed read ever sees one.
func (r *Reader) readMarker() (byte, error) {
	marker, err := r.src.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}

		return 0, fmt.Errorf("read marker: %w", err)
	}
	if marker >= format.ReservedLow {
		return 0, fmt.Errorf("reserved marker 0x%02X: %w", marker, errs.ErrMalformedToken)
	}

	return marker, nil
}

// readFull reads exactly n payload bytes into dst, mapping early EOF to
// ErrTruncated.
func (r *Reader) readFull(dst []byte) error {
	if _, err := io.ReadFull(r.src, dst); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errs.ErrTruncated
		}

		return fmt.Errorf("read payload: %w", err)
	}

	return nil
}

// readLength reads an N-byte big-endian unsigned length prefix, N in {1,2,4}.
func (r *Reader) readLength(n int) (int, error) {
	buf := r.scratch[:n]
	if err := r.readFull(buf); err != nil {
		return 0, err
	}
	switch n {
	case 1:
		return int(buf[0]), nil
	case 2:
		return int(r.engine.Uint16(buf)), nil
	default:
		return int(r.engine.Uint32(buf)), nil
	}
}

// readVarint reads a command varint.
func (r *Reader) readVarint() (uint32, error) {
	lead, err := r.src.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, errs.ErrTruncated
		}

		return 0, fmt.Errorf("read varint: %w", err)
	}
	size, err := encoding.VarintSize(lead)
	if err != nil {
		return 0, err
	}

	buf := r.scratch[:size]
	buf[0] = lead
	if size > 1 {
		if err := r.readFull(buf[1:]); err != nil {
			return 0, err
		}
	}

	return encoding.DecodeVarint(buf)
}

// ReadNil consumes a nil token.
func (r *Reader) ReadNil() error {
	marker, err := r.readMarker()
	if err != nil {
		return err
	}
	if marker != format.Nil {
		return fmt.Errorf("marker 0x%02X is not nil: %w", marker, errs.ErrTypeMismatch)
	}

	return nil
}

// ReadBool consumes a boolean token.
func (r *Reader) ReadBool() (bool, error) {
	marker, err := r.readMarker()
	if err != nil {
		return false, err
	}
	switch marker {
	case format.True:
		return true, nil
	case format.False:
		return false, nil
	default:
		return false, fmt.Errorf("marker 0x%02X is not bool: %w", marker, errs.ErrTypeMismatch)
	}
}

// ReadInt consumes any integer token and returns it as int64. An unsigned
// value above math.MaxInt64 fails with ErrTypeMismatch.
func (r *Reader) ReadInt() (int64, error) {
	marker, err := r.readMarker()
	if err != nil {
		return 0, err
	}

	switch {
	case marker <= format.PosFixintMax:
		return int64(marker), nil
	case marker >= format.NegFixintLow && marker <= format.NegFixintMax:
		return int64(marker&0x0F) - 16, nil
	}

	switch marker {
	case format.Int8:
		if err := r.readFull(r.scratch[:1]); err != nil {
			return 0, err
		}

		return int64(int8(r.scratch[0])), nil
	case format.Int16:
		if err := r.readFull(r.scratch[:2]); err != nil {
			return 0, err
		}

		return int64(int16(r.engine.Uint16(r.scratch[:2]))), nil
	case format.Int32:
		if err := r.readFull(r.scratch[:4]); err != nil {
			return 0, err
		}

		return int64(int32(r.engine.Uint32(r.scratch[:4]))), nil
	case format.Int64:
		if err := r.readFull(r.scratch[:8]); err != nil {
			return 0, err
		}

		return int64(r.engine.Uint64(r.scratch[:8])), nil
	case format.Uint8, format.Uint16, format.Uint32, format.Uint64:
		u, err := r.readUintPayload(marker)
		if err != nil {
			return 0, err
		}
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("uint value %d overflows int64: %w", u, errs.ErrTypeMismatch)
		}

		return int64(u), nil
	default:
		return 0, fmt.Errorf("marker 0x%02X is not integer: %w", marker, errs.ErrTypeMismatch)
	}
}

func (r *Reader) readUintPayload(marker byte) (uint64, error) {
	switch marker {
	case format.Uint8:
		if err := r.readFull(r.scratch[:1]); err != nil {
			return 0, err
		}

		return uint64(r.scratch[0]), nil
	case format.Uint16:
		if err := r.readFull(r.scratch[:2]); err != nil {
			return 0, err
		}

		return uint64(r.engine.Uint16(r.scratch[:2])), nil
	case format.Uint32:
		if err := r.readFull(r.scratch[:4]); err != nil {
			return 0, err
		}

		return uint64(r.engine.Uint32(r.scratch[:4])), nil
	default:
		if err := r.readFull(r.scratch[:8]); err != nil {
			return 0, err
		}

		return r.engine.Uint64(r.scratch[:8]), nil
	}
}

// ReadUint consumes any integer token and returns it as uint64. Negative
// values fail with ErrTypeMismatch.
func (r *Reader) ReadUint() (uint64, error) {
	marker, err := r.readMarker()
	if err != nil {
		return 0, err
	}

	switch {
	case marker <= format.PosFixintMax:
		return uint64(marker), nil
	case marker >= format.NegFixintLow && marker <= format.NegFixintMax:
		return 0, fmt.Errorf("negative fixint: %w", errs.ErrTypeMismatch)
	}

	switch marker {
	case format.Uint8, format.Uint16, format.Uint32, format.Uint64:
		return r.readUintPayload(marker)
	case format.Int8, format.Int16, format.Int32, format.Int64:
		// Signed markers are accepted when the value is non-negative; the
		// two families share one logical integer domain.
		r.src.UnreadByte()
		v, err := r.ReadInt()
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("negative value %d: %w", v, errs.ErrTypeMismatch)
		}

		return uint64(v), nil
	default:
		return 0, fmt.Errorf("marker 0x%02X is not integer: %w", marker, errs.ErrTypeMismatch)
	}
}

// ReadFloat32 consumes a float token as float32. A float64 token is
// narrowed.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadFloat64()
	if err != nil {
		return 0, err
	}

	return float32(v), nil
}

// ReadFloat64 consumes a float token as float64. A float32 token is widened.
func (r *Reader) ReadFloat64() (float64, error) {
	marker, err := r.readMarker()
	if err != nil {
		return 0, err
	}
	switch marker {
	case format.Float32:
		if err := r.readFull(r.scratch[:4]); err != nil {
			return 0, err
		}

		return float64(math.Float32frombits(r.engine.Uint32(r.scratch[:4]))), nil
	case format.Float64:
		if err := r.readFull(r.scratch[:8]); err != nil {
			return 0, err
		}

		return math.Float64frombits(r.engine.Uint64(r.scratch[:8])), nil
	default:
		return 0, fmt.Errorf("marker 0x%02X is not float: %w", marker, errs.ErrTypeMismatch)
	}
}

// stringLength decodes the byte length of a string token from its marker.
func (r *Reader) stringLength(marker byte) (int, error) {
	switch {
	case marker >= format.FixstrLow && marker <= format.FixstrHigh:
		return int(marker & format.FixstrMask), nil
	}
	switch marker {
	case format.Str8:
		return r.readLength(1)
	case format.Str16:
		return r.readLength(2)
	case format.Str32:
		return r.readLength(4)
	default:
		return -1, fmt.Errorf("marker 0x%02X is not string: %w", marker, errs.ErrTypeMismatch)
	}
}

// ReadString consumes a string token. The length is validated against
// MaxStringLength before the payload buffer is allocated.
func (r *Reader) ReadString() (string, error) {
	marker, err := r.readMarker()
	if err != nil {
		return "", err
	}
	n, err := r.stringLength(marker)
	if err != nil {
		return "", err
	}
	if n > r.limits.MaxStringLength {
		return "", fmt.Errorf("string length %d exceeds %d: %w", n, r.limits.MaxStringLength, errs.ErrLimitExceeded)
	}
	if n == 0 {
		return "", nil
	}

	buf := make([]byte, n)
	if err := r.readFull(buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// ReadBinary consumes a binary token. The length is validated against
// MaxBinaryLength before the payload buffer is allocated.
func (r *Reader) ReadBinary() ([]byte, error) {
	marker, err := r.readMarker()
	if err != nil {
		return nil, err
	}

	var n int
	switch marker {
	case format.Bin8:
		n, err = r.readLength(1)
	case format.Bin16:
		n, err = r.readLength(2)
	case format.Bin32:
		n, err = r.readLength(4)
	default:
		return nil, fmt.Errorf("marker 0x%02X is not binary: %w", marker, errs.ErrTypeMismatch)
	}
	if err != nil {
		return nil, err
	}
	if n > r.limits.MaxBinaryLength {
		return nil, fmt.Errorf("binary length %d exceeds %d: %w", n, r.limits.MaxBinaryLength, errs.ErrLimitExceeded)
	}

	buf := make([]byte, n)
	if err := r.readFull(buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadArrayHeader consumes an array header. Counted arrays return their
// element count; an unbounded BEGIN_ARRAY returns -1, and the caller
// iterates with IsEnd/ReadEnd.
func (r *Reader) ReadArrayHeader() (int, error) {
	marker, err := r.readMarker()
	if err != nil {
		return 0, err
	}
	switch {
	case marker >= format.FixarrayLow && marker <= format.FixarrayHigh:
		return int(marker & format.FixarrayMask), nil
	}
	switch marker {
	case format.Array16:
		return r.readLength(2)
	case format.Array32:
		return r.readLength(4)
	case format.CmdBeginArray:
		r.frames++
		return -1, nil
	default:
		return 0, fmt.Errorf("marker 0x%02X is not array: %w", marker, errs.ErrTypeMismatch)
	}
}

// ReadMapHeader consumes a map header. Counted maps return their pair count;
// an unbounded BEGIN_MAP returns -1.
func (r *Reader) ReadMapHeader() (int, error) {
	marker, err := r.readMarker()
	if err != nil {
		return 0, err
	}
	switch {
	case marker >= format.FixmapLow && marker <= format.FixmapHigh:
		return int(marker & format.FixmapMask), nil
	}
	switch marker {
	case format.Map16:
		return r.readLength(2)
	case format.Map32:
		return r.readLength(4)
	case format.CmdBeginMap:
		r.frames++
		return -1, nil
	default:
		return 0, fmt.Errorf("marker 0x%02X is not map: %w", marker, errs.ErrTypeMismatch)
	}
}

// IsEnd reports whether the next token is END.
func (r *Reader) IsEnd() (bool, error) {
	kind, err := r.PeekKind()
	if err != nil {
		return false, err
	}

	return kind == format.KindEnd, nil
}

// ReadEnd consumes an END token closing the innermost unbounded collection
// opened through this Reader.
func (r *Reader) ReadEnd() error {
	marker, err := r.readMarker()
	if err != nil {
		return err
	}
	if marker != format.CmdEnd {
		return fmt.Errorf("marker 0x%02X is not end: %w", marker, errs.ErrTypeMismatch)
	}
	if r.frames == 0 {
		return fmt.Errorf("end with no open collection: %w", errs.ErrInvalidNesting)
	}
	r.frames--

	return nil
}

// ReadKey reads one map key. USE_KEY dereferences the key table, SET_KEY
// records a new entry and returns its string, and a plain string token is
// returned as-is (inline keys bypass the table).
func (r *Reader) ReadKey() (string, error) {
	b, err := r.src.Peek(1)
	if err != nil {
		if err == io.EOF {
			return "", io.EOF
		}

		return "", fmt.Errorf("peek key: %w", err)
	}

	switch b[0] {
	case format.CmdUseKey:
		_, _ = r.src.ReadByte()
		id, err := r.readVarint()
		if err != nil {
			return "", err
		}
		key, ok := r.keys[id]
		if !ok {
			return "", fmt.Errorf("key id %d: %w", id, errs.ErrUnknownKeyID)
		}

		return key, nil

	case format.CmdSetKey:
		_, _ = r.src.ReadByte()
		id, err := r.readVarint()
		if err != nil {
			return "", err
		}
		if _, exists := r.keys[id]; !exists && len(r.keys) >= r.limits.MaxKeyTableSize {
			return "", fmt.Errorf("key table size %d: %w", r.limits.MaxKeyTableSize, errs.ErrLimitExceeded)
		}
		key, err := r.ReadString()
		if err != nil {
			return "", err
		}
		r.keys[id] = key

		return key, nil

	default:
		return r.ReadString()
	}
}

// ReadStructHeader reads a struct-template token and returns the template's
// field names. defined is true for DEFINE_STRUCT, which registers the
// template and is NOT followed by values; it is false for USE_STRUCT, after
// which exactly len(names) values follow in declared order.
func (r *Reader) ReadStructHeader() (names []string, defined bool, err error) {
	marker, err := r.readMarker()
	if err != nil {
		return nil, false, err
	}

	switch marker {
	case format.CmdDefineStruct:
		id, err := r.readVarint()
		if err != nil {
			return nil, false, err
		}
		if _, exists := r.structs[id]; !exists && len(r.structs) >= r.limits.MaxStructTableSize {
			return nil, false, fmt.Errorf("struct table size %d: %w", r.limits.MaxStructTableSize, errs.ErrLimitExceeded)
		}
		if err := r.readFull(r.scratch[:1]); err != nil {
			return nil, false, err
		}
		count := int(r.scratch[0])
		names = make([]string, count)
		for i := range names {
			names[i], err = r.ReadKey()
			if err != nil {
				return nil, false, err
			}
		}
		r.structs[id] = names

		return names, true, nil

	case format.CmdUseStruct:
		id, err := r.readVarint()
		if err != nil {
			return nil, false, err
		}
		names, ok := r.structs[id]
		if !ok {
			return nil, false, fmt.Errorf("struct id %d: %w", id, errs.ErrUnknownStructID)
		}

		return names, false, nil

	default:
		return nil, false, fmt.Errorf("marker 0x%02X is not struct: %w", marker, errs.ErrTypeMismatch)
	}
}

// ReadCommand consumes one CLEAR command and applies it to the decoder-side
// tables.
func (r *Reader) ReadCommand() error {
	marker, err := r.readMarker()
	if err != nil {
		return err
	}
	switch marker {
	case format.CmdClearKeys:
		r.keys = make(map[uint32]string)
	case format.CmdClearStructs:
		r.structs = make(map[uint32][]string)
	case format.CmdClearAll:
		r.keys = make(map[uint32]string)
		r.structs = make(map[uint32][]string)
	default:
		return fmt.Errorf("marker 0x%02X is not a clear command: %w", marker, errs.ErrTypeMismatch)
	}

	return nil
}

// KeyTableLen returns the number of keys the reader has recorded.
func (r *Reader) KeyTableLen() int {
	return len(r.keys)
}

// StructTableLen returns the number of templates the reader has recorded.
func (r *Reader) StructTableLen() int {
	return len(r.structs)
}

// Close releases the Reader and, unless it was created with
// WithReaderLeaveOpen(true), closes the underlying source.
func (r *Reader) Close() error {
	if c, ok := r.raw.(io.Closer); ok && !r.leaveOpen {
		return c.Close()
	}

	return nil
}

// Package stream implements the low-level keypack token writer and reader.
//
// The Writer emits markers, length-prefixed payloads, big-endian numerics,
// and symbol-table commands; it owns the encoder-side key and struct-template
// tables. The Reader consumes the same alphabet, maintains the decoder-side
// tables in lock-step, enforces allocation limits, and supports structural
// skip and non-consuming type peeks.
//
// Neither type is safe for concurrent use; each instance is owned by a
// single producer or consumer for the lifetime of one stream.
package stream

import (
	"fmt"
	"io"
	"math"

	"github.com/arloliu/keypack/encoding"
	"github.com/arloliu/keypack/endian"
	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/internal/intern"
	"github.com/arloliu/keypack/internal/options"
	"github.com/arloliu/keypack/internal/pool"
)

const maxWireLength = math.MaxUint32

// Writer emits keypack tokens to an io.Writer. It does not validate
// structural nesting; matching collection headers to element counts is the
// caller's responsibility.
type Writer struct {
	sink      io.Writer
	buf       *pool.ByteBuffer
	engine    endian.EndianEngine
	keys      *intern.KeyTable
	structs   *intern.StructTable
	leaveOpen bool
}

// WriterOption configures a Writer.
type WriterOption = options.Option[*Writer]

// WithWriterLeaveOpen keeps the underlying sink open when the Writer is
// closed.
func WithWriterLeaveOpen(leaveOpen bool) WriterOption {
	return options.NoError(func(w *Writer) {
		w.leaveOpen = leaveOpen
	})
}

// NewWriter creates a Writer emitting to sink. Each write operation is
// flushed to the sink before the call returns; the Writer holds no bytes
// across calls.
func NewWriter(sink io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{
		sink:    sink,
		buf:     pool.GetStreamBuffer(),
		engine:  endian.GetBigEndianEngine(),
		keys:    intern.NewKeyTable(),
		structs: intern.NewStructTable(),
	}
	_ = options.Apply(w, opts...)

	return w
}

// emit writes the scratch buffer to the sink and resets it.
func (w *Writer) emit() error {
	if _, err := w.sink.Write(w.buf.B); err != nil {
		w.buf.Reset()
		return fmt.Errorf("write to sink: %w", err)
	}
	w.buf.Reset()

	return nil
}

// WriteNil emits a nil token.
func (w *Writer) WriteNil() error {
	w.buf.B = append(w.buf.B, format.Nil)
	return w.emit()
}

// WriteBool emits a boolean token.
func (w *Writer) WriteBool(v bool) error {
	marker := byte(format.False)
	if v {
		marker = format.True
	}
	w.buf.B = append(w.buf.B, marker)

	return w.emit()
}

// WriteInt emits v using the smallest signed marker whose domain contains it:
// positive fixint, negative fixint, int8, int16, int32, int64.
func (w *Writer) WriteInt(v int64) error {
	switch {
	case v >= 0 && v <= format.PosFixintMax:
		w.buf.B = append(w.buf.B, byte(v))
	case v >= -16 && v < 0:
		w.buf.B = append(w.buf.B, format.NegFixintLow|byte(v+16))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		w.buf.B = append(w.buf.B, format.Int8, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		w.buf.B = append(w.buf.B, format.Int16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(int16(v)))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		w.buf.B = append(w.buf.B, format.Int32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(int32(v)))
	default:
		w.buf.B = append(w.buf.B, format.Int64)
		w.buf.B = w.engine.AppendUint64(w.buf.B, uint64(v))
	}

	return w.emit()
}

// WriteUint emits v using the smallest unsigned marker whose domain contains
// it: positive fixint, uint8, uint16, uint32, uint64.
func (w *Writer) WriteUint(v uint64) error {
	switch {
	case v <= format.PosFixintMax:
		w.buf.B = append(w.buf.B, byte(v))
	case v <= math.MaxUint8:
		w.buf.B = append(w.buf.B, format.Uint8, byte(v))
	case v <= math.MaxUint16:
		w.buf.B = append(w.buf.B, format.Uint16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(v))
	case v <= math.MaxUint32:
		w.buf.B = append(w.buf.B, format.Uint32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(v))
	default:
		w.buf.B = append(w.buf.B, format.Uint64)
		w.buf.B = w.engine.AppendUint64(w.buf.B, v)
	}

	return w.emit()
}

// WriteFloat32 emits a float32 token.
func (w *Writer) WriteFloat32(v float32) error {
	w.buf.B = append(w.buf.B, format.Float32)
	w.buf.B = w.engine.AppendUint32(w.buf.B, math.Float32bits(v))

	return w.emit()
}

// WriteFloat64 emits a float64 token.
func (w *Writer) WriteFloat64(v float64) error {
	w.buf.B = append(w.buf.B, format.Float64)
	w.buf.B = w.engine.AppendUint64(w.buf.B, math.Float64bits(v))

	return w.emit()
}

// appendStringHeader appends the smallest string marker for a payload of n
// bytes.
func (w *Writer) appendStringHeader(n int) error {
	switch {
	case n <= format.FixstrMask:
		w.buf.B = append(w.buf.B, format.FixstrLow|byte(n))
	case n <= math.MaxUint8:
		w.buf.B = append(w.buf.B, format.Str8, byte(n))
	case n <= math.MaxUint16:
		w.buf.B = append(w.buf.B, format.Str16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(n))
	case uint64(n) <= maxWireLength:
		w.buf.B = append(w.buf.B, format.Str32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(n))
	default:
		return fmt.Errorf("string of %d bytes: %w", n, errs.ErrStringTooLong)
	}

	return nil
}

// WriteString emits a UTF-8 string token using the smallest length class.
func (w *Writer) WriteString(s string) error {
	if err := w.appendStringHeader(len(s)); err != nil {
		return err
	}
	w.buf.Grow(len(s))
	w.buf.B = append(w.buf.B, s...)

	return w.emit()
}

// WriteBinary emits an opaque binary token using the smallest length class.
func (w *Writer) WriteBinary(data []byte) error {
	n := len(data)
	switch {
	case n <= math.MaxUint8:
		w.buf.B = append(w.buf.B, format.Bin8, byte(n))
	case n <= math.MaxUint16:
		w.buf.B = append(w.buf.B, format.Bin16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(n))
	case uint64(n) <= maxWireLength:
		w.buf.B = append(w.buf.B, format.Bin32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(n))
	default:
		return fmt.Errorf("binary of %d bytes: %w", n, errs.ErrStringTooLong)
	}
	w.buf.Grow(n)
	w.buf.B = append(w.buf.B, data...)

	return w.emit()
}

// WriteArrayHeader emits a counted array header for n elements. The caller
// must follow with exactly n values.
func (w *Writer) WriteArrayHeader(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("array header %d: %w", n, errs.ErrNegativeCount)
	case n <= format.FixarrayMask:
		w.buf.B = append(w.buf.B, format.FixarrayLow|byte(n))
	case n <= math.MaxUint16:
		w.buf.B = append(w.buf.B, format.Array16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(n))
	default:
		w.buf.B = append(w.buf.B, format.Array32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(n))
	}

	return w.emit()
}

// WriteMapHeader emits a counted map header for n key/value pairs. The
// caller must follow with exactly n pairs.
func (w *Writer) WriteMapHeader(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("map header %d: %w", n, errs.ErrNegativeCount)
	case n <= format.FixmapMask:
		w.buf.B = append(w.buf.B, format.FixmapLow|byte(n))
	case n <= math.MaxUint16:
		w.buf.B = append(w.buf.B, format.Map16)
		w.buf.B = w.engine.AppendUint16(w.buf.B, uint16(n))
	default:
		w.buf.B = append(w.buf.B, format.Map32)
		w.buf.B = w.engine.AppendUint32(w.buf.B, uint32(n))
	}

	return w.emit()
}

// BeginArray opens an unbounded array. Close it with WriteEnd.
func (w *Writer) BeginArray() error {
	w.buf.B = append(w.buf.B, format.CmdBeginArray)
	return w.emit()
}

// BeginMap opens an unbounded map. Close it with WriteEnd.
func (w *Writer) BeginMap() error {
	w.buf.B = append(w.buf.B, format.CmdBeginMap)
	return w.emit()
}

// WriteEnd closes the innermost open unbounded collection.
func (w *Writer) WriteEnd() error {
	w.buf.B = append(w.buf.B, format.CmdEnd)
	return w.emit()
}

// WriteKey emits key through the intern table: the first occurrence emits
// SET_KEY with a fresh id, later occurrences emit USE_KEY.
func (w *Writer) WriteKey(key string) error {
	if id, ok := w.keys.Lookup(key); ok {
		return w.UseKey(id)
	}

	return w.SetKey(key)
}

// SetKey allocates a fresh id for key and emits SET_KEY unconditionally,
// overwriting any existing interning of the same string.
func (w *Writer) SetKey(key string) error {
	id := w.keys.Intern(key)

	var err error
	w.buf.B = append(w.buf.B, format.CmdSetKey)
	w.buf.B, err = encoding.AppendVarint(w.buf.B, id)
	if err != nil {
		w.buf.Reset()
		return err
	}
	if err := w.appendStringHeader(len(key)); err != nil {
		w.buf.Reset()
		return err
	}
	w.buf.Grow(len(key))
	w.buf.B = append(w.buf.B, key...)

	return w.emit()
}

// UseKey emits USE_KEY for a previously interned id.
func (w *Writer) UseKey(id uint32) error {
	var err error
	w.buf.B = append(w.buf.B, format.CmdUseKey)
	w.buf.B, err = encoding.AppendVarint(w.buf.B, id)
	if err != nil {
		w.buf.Reset()
		return err
	}

	return w.emit()
}

// DefineStruct registers a struct template for the given field names and
// emits DEFINE_STRUCT. Field names are themselves interned via the key
// table. Defining an identical field list again returns the existing id
// without emitting anything.
func (w *Writer) DefineStruct(names ...string) (uint32, error) {
	if len(names) > format.MaxStructFields {
		return 0, fmt.Errorf("%d fields: %w", len(names), errs.ErrTooManyFields)
	}
	if id, ok := w.structs.Lookup(names); ok {
		return id, nil
	}

	id := w.structs.Define(names)

	var err error
	w.buf.B = append(w.buf.B, format.CmdDefineStruct)
	w.buf.B, err = encoding.AppendVarint(w.buf.B, id)
	if err != nil {
		w.buf.Reset()
		return 0, err
	}
	w.buf.B = append(w.buf.B, byte(len(names)))
	if err := w.emit(); err != nil {
		return 0, err
	}

	for _, name := range names {
		if err := w.WriteKey(name); err != nil {
			return 0, err
		}
	}

	return id, nil
}

// UseStruct emits USE_STRUCT. The caller must follow with exactly the
// template's field count of values, in declared order.
func (w *Writer) UseStruct(id uint32) error {
	var err error
	w.buf.B = append(w.buf.B, format.CmdUseStruct)
	w.buf.B, err = encoding.AppendVarint(w.buf.B, id)
	if err != nil {
		w.buf.Reset()
		return err
	}

	return w.emit()
}

// ClearKeys empties the key table on both sides; subsequent key ids restart
// at zero.
func (w *Writer) ClearKeys() error {
	w.keys.Clear()
	w.buf.B = append(w.buf.B, format.CmdClearKeys)

	return w.emit()
}

// ClearStructs empties the struct-template table on both sides; subsequent
// template ids restart at zero.
func (w *Writer) ClearStructs() error {
	w.structs.Clear()
	w.buf.B = append(w.buf.B, format.CmdClearStructs)

	return w.emit()
}

// ClearAll empties both tables with a single command.
func (w *Writer) ClearAll() error {
	w.keys.Clear()
	w.structs.Clear()
	w.buf.B = append(w.buf.B, format.CmdClearAll)

	return w.emit()
}

// KeyCount returns the number of interned keys. Exposed for table-growth
// policies on long-lived streams.
func (w *Writer) KeyCount() int {
	return w.keys.Len()
}

// StructCount returns the number of defined struct templates.
func (w *Writer) StructCount() int {
	return w.structs.Len()
}

// Flush forwards to the sink's Flush if it has one. The Writer itself holds
// no buffered bytes between calls.
func (w *Writer) Flush() error {
	if f, ok := w.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}

	return nil
}

// Close flushes and, unless the Writer was created with
// WithWriterLeaveOpen(true), closes the underlying sink. The Writer must not
// be used afterwards.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	pool.PutStreamBuffer(w.buf)
	w.buf = nil

	if c, ok := w.sink.(io.Closer); ok && !w.leaveOpen {
		return c.Close()
	}

	return nil
}

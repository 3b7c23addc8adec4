package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
)

func newTestReader(data []byte, opts ...ReaderOption) *Reader {
	return NewReader(bytes.NewReader(data), opts...)
}

func TestReader_PeekKind(t *testing.T) {
	tests := []struct {
		marker byte
		kind   format.Kind
	}{
		{0x00, format.KindInt},
		{0x7F, format.KindInt},
		{0x80, format.KindMap},
		{0x90, format.KindArray},
		{0xA0, format.KindString},
		{0xC0, format.KindNil},
		{0xC1, format.KindBool},
		{0xC2, format.KindBool},
		{0xC3, format.KindBinary},
		{0xC6, format.KindFloat},
		{0xC7, format.KindFloat},
		{0xC8, format.KindInt},
		{0xCF, format.KindInt},
		{0xD0, format.KindString},
		{0xD3, format.KindArray},
		{0xD5, format.KindMap},
		{0xE0, format.KindInt},
		{0xEF, format.KindInt},
		{0xF0, format.KindKey},
		{0xF1, format.KindKey},
		{0xF2, format.KindStruct},
		{0xF3, format.KindStruct},
		{0xF4, format.KindCommand},
		{0xF6, format.KindCommand},
		{0xF7, format.KindArray},
		{0xF8, format.KindEnd},
		{0xF9, format.KindMap},
		{0xFA, format.KindInvalid},
		{0xFF, format.KindInvalid},
	}

	for _, tt := range tests {
		r := newTestReader([]byte{tt.marker})
		kind, err := r.PeekKind()
		require.NoError(t, err)
		require.Equal(t, tt.kind, kind, "marker 0x%02X", tt.marker)
	}
}

func TestReader_PeekKind_EOF(t *testing.T) {
	r := newTestReader(nil)
	kind, err := r.PeekKind()
	require.NoError(t, err)
	require.Equal(t, format.KindEOF, kind)
}

func TestReader_RoundTripPrimitives(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteNil())
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBool(false))
	require.NoError(t, w.WriteInt(-42))
	require.NoError(t, w.WriteInt(128))
	require.NoError(t, w.WriteUint(300))
	require.NoError(t, w.WriteFloat32(1.5))
	require.NoError(t, w.WriteFloat64(-2.75))
	require.NoError(t, w.WriteString("hello"))
	require.NoError(t, w.WriteBinary([]byte{1, 2, 3}))

	r := newTestReader(buf.Bytes())
	require.NoError(t, r.ReadNil())

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)
	b, err = r.ReadBool()
	require.NoError(t, err)
	require.False(t, b)

	i, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(-42), i)
	i, err = r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, int64(128), i)

	u, err := r.ReadUint()
	require.NoError(t, err)
	require.Equal(t, uint64(300), u)

	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)

	f64, err := r.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, -2.75, f64)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	bin, err := r.ReadBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, bin)

	kind, err := r.PeekKind()
	require.NoError(t, err)
	require.Equal(t, format.KindEOF, kind)
}

func TestReader_IntBoundaryRoundTrip(t *testing.T) {
	values := []int64{-32769, -32768, -129, -128, -17, -16, -1, 0, 1, 127, 128, 255, 256, 32767, 32768, 65535, 65536, 1<<31 - 1, 1 << 31, 1<<63 - 1, -(1 << 31), -(1 << 62)}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, v := range values {
		require.NoError(t, w.WriteInt(v))
	}

	r := newTestReader(buf.Bytes())
	for _, v := range values {
		got, err := r.ReadInt()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestReader_TypeMismatch(t *testing.T) {
	r := newTestReader([]byte{0xA1, 'x'}) // fixstr
	_, err := r.ReadInt()
	require.ErrorIs(t, err, errs.ErrTypeMismatch)

	r = newTestReader([]byte{0xC2}) // true
	_, err = r.ReadString()
	require.ErrorIs(t, err, errs.ErrTypeMismatch)

	r = newTestReader([]byte{0xEF}) // -1
	_, err = r.ReadUint()
	require.ErrorIs(t, err, errs.ErrTypeMismatch)
}

func TestReader_ReservedMarker(t *testing.T) {
	for marker := 0xFA; marker <= 0xFF; marker++ {
		r := newTestReader([]byte{byte(marker)})
		_, err := r.ReadInt()
		require.ErrorIs(t, err, errs.ErrMalformedToken, "marker 0x%02X", marker)
	}
}

func TestReader_Truncated(t *testing.T) {
	// str8 declaring 20 bytes with only 3 present.
	r := newTestReader([]byte{0xD0, 20, 'a', 'b', 'c'})
	_, err := r.ReadString()
	require.ErrorIs(t, err, errs.ErrTruncated)

	// int32 with 2 payload bytes.
	r = newTestReader([]byte{0xCE, 0x00, 0x01})
	_, err = r.ReadInt()
	require.ErrorIs(t, err, errs.ErrTruncated)
}

func TestReader_EOFAtTokenBoundary(t *testing.T) {
	r := newTestReader(nil)
	_, err := r.ReadInt()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_StringLimitBeforeAllocation(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStringLength = 10

	payload := append([]byte{0xD0, 20}, bytes.Repeat([]byte{'x'}, 20)...)
	r := newTestReader(payload, WithLimits(limits))
	_, err := r.ReadString()
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestReader_BinaryLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBinaryLength = 4

	payload := append([]byte{0xC3, 8}, make([]byte, 8)...)
	r := newTestReader(payload, WithLimits(limits))
	_, err := r.ReadBinary()
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestReader_ReadKeyProtocol(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteKey("alpha")) // SET_KEY
	require.NoError(t, w.WriteKey("alpha")) // USE_KEY
	require.NoError(t, w.WriteString("inline"))

	r := newTestReader(buf.Bytes())
	for _, want := range []string{"alpha", "alpha", "inline"} {
		got, err := r.ReadKey()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, 1, r.KeyTableLen())
}

func TestReader_UnknownKeyID(t *testing.T) {
	r := newTestReader([]byte{0xF1, 0x05}) // USE_KEY id=5, never set
	_, err := r.ReadKey()
	require.ErrorIs(t, err, errs.ErrUnknownKeyID)
}

func TestReader_KeyTableLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxKeyTableSize = 2

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteKey("a"))
	require.NoError(t, w.WriteKey("b"))
	require.NoError(t, w.WriteKey("c"))

	r := newTestReader(buf.Bytes(), WithLimits(limits))
	_, err := r.ReadKey()
	require.NoError(t, err)
	_, err = r.ReadKey()
	require.NoError(t, err)
	_, err = r.ReadKey()
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestReader_StructHeaderProtocol(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	id, err := w.DefineStruct("name", "age", "city")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.UseStruct(id))
		require.NoError(t, w.WriteString("someone"))
		require.NoError(t, w.WriteInt(int64(20+i)))
		require.NoError(t, w.WriteString("somewhere"))
	}

	r := newTestReader(buf.Bytes())

	names, defined, err := r.ReadStructHeader()
	require.NoError(t, err)
	require.True(t, defined)
	require.Equal(t, []string{"name", "age", "city"}, names)

	for i := 0; i < 3; i++ {
		names, defined, err = r.ReadStructHeader()
		require.NoError(t, err)
		require.False(t, defined)
		require.Len(t, names, 3)

		_, err = r.ReadString()
		require.NoError(t, err)
		age, err := r.ReadInt()
		require.NoError(t, err)
		require.Equal(t, int64(20+i), age)
		_, err = r.ReadString()
		require.NoError(t, err)
	}
}

func TestReader_UnknownStructID(t *testing.T) {
	r := newTestReader([]byte{0xF3, 0x02}) // USE_STRUCT id=2
	_, _, err := r.ReadStructHeader()
	require.ErrorIs(t, err, errs.ErrUnknownStructID)
}

func TestReader_StructTableLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStructTableSize = 1

	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.DefineStruct("a")
	require.NoError(t, err)
	_, err = w.DefineStruct("b")
	require.NoError(t, err)

	r := newTestReader(buf.Bytes(), WithLimits(limits))
	_, _, err = r.ReadStructHeader()
	require.NoError(t, err)
	_, _, err = r.ReadStructHeader()
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestReader_ClearCommands(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteKey("a"))
	require.NoError(t, w.ClearAll())
	require.NoError(t, w.WriteKey("b"))

	r := newTestReader(buf.Bytes())
	key, err := r.ReadKey()
	require.NoError(t, err)
	require.Equal(t, "a", key)

	require.NoError(t, r.ReadCommand())
	require.Equal(t, 0, r.KeyTableLen())

	// After the clear, id 0 names "b".
	key, err = r.ReadKey()
	require.NoError(t, err)
	require.Equal(t, "b", key)
}

func TestReader_EmptyUnboundedArray(t *testing.T) {
	r := newTestReader([]byte{0xF7, 0xF8})

	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	require.Equal(t, -1, n)

	end, err := r.IsEnd()
	require.NoError(t, err)
	require.True(t, end)
	require.NoError(t, r.ReadEnd())
}

func TestReader_UnboundedStreamLoop(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.BeginArray())
	for i := 0; i < 5; i++ {
		require.NoError(t, w.BeginMap())
		require.NoError(t, w.WriteKey("event_id"))
		require.NoError(t, w.WriteInt(1))
		require.NoError(t, w.WriteEnd())
	}
	require.NoError(t, w.WriteEnd())

	r := newTestReader(buf.Bytes())
	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	require.Equal(t, -1, n)

	count := 0
	for {
		end, err := r.IsEnd()
		require.NoError(t, err)
		if end {
			require.NoError(t, r.ReadEnd())
			break
		}

		m, err := r.ReadMapHeader()
		require.NoError(t, err)
		require.Equal(t, -1, m)

		key, err := r.ReadKey()
		require.NoError(t, err)
		require.Equal(t, "event_id", key)
		v, err := r.ReadInt()
		require.NoError(t, err)
		require.Equal(t, int64(1), v)
		require.NoError(t, r.ReadEnd())

		count++
	}
	require.Equal(t, 5, count)
}

func TestReader_EndWithoutBegin(t *testing.T) {
	r := newTestReader([]byte{0xF8})
	require.ErrorIs(t, r.ReadEnd(), errs.ErrInvalidNesting)
}

func TestReader_LongStringRoundTrip(t *testing.T) {
	long := strings.Repeat("paragraph ", 7000) // ~70000 bytes, str32 class

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteString(long))
	require.Equal(t, byte(0xD2), buf.Bytes()[0])

	r := newTestReader(buf.Bytes())
	got, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, long, got)
}

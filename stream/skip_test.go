package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/keypack/errs"
)

// sentinel appends a recognizable trailing value so tests can prove Skip
// advanced by exactly one subtree.
const sentinel = int64(777777)

func buildAndSkip(t *testing.T, build func(w *Writer)) {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	build(w)
	require.NoError(t, w.WriteInt(sentinel))

	r := newTestReader(buf.Bytes())
	require.NoError(t, r.Skip())

	got, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, sentinel, got, "skip did not land on the following token")
}

func TestSkip_Primitives(t *testing.T) {
	builders := []func(w *Writer){
		func(w *Writer) { _ = w.WriteNil() },
		func(w *Writer) { _ = w.WriteBool(true) },
		func(w *Writer) { _ = w.WriteInt(5) },
		func(w *Writer) { _ = w.WriteInt(-5000) },
		func(w *Writer) { _ = w.WriteUint(1 << 40) },
		func(w *Writer) { _ = w.WriteFloat32(3.5) },
		func(w *Writer) { _ = w.WriteFloat64(-0.25) },
		func(w *Writer) { _ = w.WriteString("short") },
		func(w *Writer) { _ = w.WriteString(string(make([]byte, 300))) },
		func(w *Writer) { _ = w.WriteBinary(make([]byte, 70000)) },
	}

	for _, build := range builders {
		buildAndSkip(t, build)
	}
}

func TestSkip_NestedCollections(t *testing.T) {
	buildAndSkip(t, func(w *Writer) {
		_ = w.WriteArrayHeader(2)
		_ = w.WriteMapHeader(1)
		_ = w.WriteString("k")
		_ = w.WriteArrayHeader(3)
		_ = w.WriteInt(1)
		_ = w.WriteInt(2)
		_ = w.WriteInt(3)
		_ = w.WriteString("tail")
	})
}

func TestSkip_UnboundedCollections(t *testing.T) {
	buildAndSkip(t, func(w *Writer) {
		_ = w.BeginArray()
		_ = w.WriteInt(1)
		_ = w.BeginMap()
		_ = w.WriteString("inner")
		_ = w.WriteBool(false)
		_ = w.WriteEnd()
		_ = w.WriteString("x")
		_ = w.WriteEnd()
	})
}

func TestSkip_Commands(t *testing.T) {
	// SET_KEY consumes id + string payload.
	buildAndSkip(t, func(w *Writer) {
		_ = w.WriteKey("interned")
	})

	// CLEAR has no payload.
	buildAndSkip(t, func(w *Writer) {
		_ = w.ClearAll()
	})

	// DEFINE_STRUCT consumes id, count and the key tokens.
	buildAndSkip(t, func(w *Writer) {
		_, _ = w.DefineStruct("one", "two", "three")
	})
}

func TestSkip_UseKeyConsumesOnlyVarint(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteKey("k")) // SET_KEY
	require.NoError(t, w.WriteKey("k")) // USE_KEY
	require.NoError(t, w.WriteInt(sentinel))

	r := newTestReader(buf.Bytes())
	require.NoError(t, r.Skip()) // over SET_KEY
	require.NoError(t, r.Skip()) // over USE_KEY

	got, err := r.ReadInt()
	require.NoError(t, err)
	require.Equal(t, sentinel, got)
}

func TestSkip_DoesNotMutateTables(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteKey("k"))
	_, err := w.DefineStruct("a", "b")
	require.NoError(t, err)

	r := newTestReader(buf.Bytes())
	require.NoError(t, r.Skip())
	require.NoError(t, r.Skip())
	require.Equal(t, 0, r.KeyTableLen())
	require.Equal(t, 0, r.StructTableLen())
}

func TestSkip_EndInValuePosition(t *testing.T) {
	r := newTestReader([]byte{0xF8})
	require.ErrorIs(t, r.Skip(), errs.ErrInvalidNesting)
}

func TestSkip_DepthLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDepth = 4

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.WriteArrayHeader(1))
	}
	require.NoError(t, w.WriteInt(1))

	r := newTestReader(buf.Bytes(), WithLimits(limits))
	require.ErrorIs(t, r.Skip(), errs.ErrLimitExceeded)
}

func TestSkip_Truncated(t *testing.T) {
	r := newTestReader([]byte{0xD0, 50, 'a'}) // str8 length 50, 1 byte present
	require.ErrorIs(t, r.Skip(), errs.ErrTruncated)
}

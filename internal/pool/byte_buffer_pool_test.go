package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_WriteAndReset(t *testing.T) {
	bb := NewByteBuffer(16)
	bb.MustWrite([]byte("hello"))
	require.Equal(t, 5, bb.Len())
	require.Equal(t, []byte("hello"), bb.Bytes())

	bb.Reset()
	require.Equal(t, 0, bb.Len())
	require.GreaterOrEqual(t, bb.Cap(), 16)
}

func TestByteBuffer_GrowPreservesContent(t *testing.T) {
	bb := NewByteBuffer(4)
	bb.MustWrite([]byte("abcd"))

	bb.Grow(100000)
	require.Equal(t, []byte("abcd"), bb.Bytes())
	require.GreaterOrEqual(t, bb.Cap()-bb.Len(), 100000)
}

func TestStreamBufferPool(t *testing.T) {
	bb := GetStreamBuffer()
	require.Equal(t, 0, bb.Len())
	bb.MustWrite([]byte("data"))
	PutStreamBuffer(bb)

	again := GetStreamBuffer()
	require.Equal(t, 0, again.Len())
}

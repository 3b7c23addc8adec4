package pool

import (
	"sync"
)

const (
	// StreamBufferDefaultSize is the default capacity of a ByteBuffer taken
	// from the pool; sized for typical record batches.
	StreamBufferDefaultSize = 1024 * 16 // 16KiB

	// StreamBufferMaxThreshold is the largest buffer the pool retains.
	// Buffers that grew beyond it are dropped instead of pooled so a single
	// huge payload does not pin memory.
	StreamBufferMaxThreshold = 1024 * 128 // 128KiB
)

// ByteBuffer is an append-oriented byte buffer with an amortized growth
// strategy. The zero value is usable; pooled instances come pre-sized.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{
		B: make([]byte, 0, defaultSize),
	}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset resets the buffer to be empty, retaining the allocated memory.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// WriteByte appends a single byte.
func (bb *ByteBuffer) WriteByte(c byte) error {
	bb.B = append(bb.B, c)
	return nil
}

// Grow ensures the buffer can hold requiredBytes more bytes without
// reallocating. Small buffers grow by StreamBufferDefaultSize; larger
// buffers grow by 25% of capacity.
func (bb *ByteBuffer) Grow(requiredBytes int) {
	available := cap(bb.B) - len(bb.B)
	if available >= requiredBytes {
		return
	}

	growBy := StreamBufferDefaultSize
	if cap(bb.B) > 4*StreamBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}

	newBuf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

var streamBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(StreamBufferDefaultSize)
	},
}

// GetStreamBuffer returns a reset ByteBuffer from the pool.
func GetStreamBuffer() *ByteBuffer {
	bb := streamBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutStreamBuffer returns a ByteBuffer to the pool. Oversized buffers are
// dropped.
func PutStreamBuffer(bb *ByteBuffer) {
	if bb == nil || cap(bb.B) > StreamBufferMaxThreshold {
		return
	}
	streamBufferPool.Put(bb)
}

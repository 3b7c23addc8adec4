// Package encoding implements the low-level codecs shared by the keypack
// writer and reader. The only codec the wire defines outside the marker
// alphabet is the command varint.
package encoding

import (
	"fmt"

	"github.com/arloliu/keypack/errs"
)

// Command varints carry symbol-table ids. The length is encoded in the high
// bits of the first byte, big-endian:
//
//	value < 2^7   -> 1 byte : [0vvvvvvv]
//	value < 2^14  -> 2 bytes: [10vvvvvv] [vvvvvvvv]
//	value < 2^21  -> 3 bytes: [110vvvvv] [vvvvvvvv] [vvvvvvvv]
//	value < 2^28  -> 4 bytes: [1110vvvv] [vvvvvvvv] [vvvvvvvv] [vvvvvvvv]
//
// A leading byte >= 0xF0 is not a valid varint.
const (
	// MaxVarint is the largest value a command varint can carry.
	MaxVarint = 1<<28 - 1

	// MaxVarintLen is the largest encoded size of a command varint.
	MaxVarintLen = 4
)

// AppendVarint appends the varint encoding of v to buf and returns the
// extended slice. Values above MaxVarint return an error and leave buf
// unchanged.
func AppendVarint(buf []byte, v uint32) ([]byte, error) {
	switch {
	case v < 1<<7:
		return append(buf, byte(v)), nil
	case v < 1<<14:
		return append(buf, 0x80|byte(v>>8), byte(v)), nil
	case v < 1<<21:
		return append(buf, 0xC0|byte(v>>16), byte(v>>8), byte(v)), nil
	case v <= MaxVarint:
		return append(buf, 0xE0|byte(v>>24), byte(v>>16), byte(v>>8), byte(v)), nil
	default:
		return buf, fmt.Errorf("varint value %d: %w", v, errs.ErrVarintRange)
	}
}

// VarintLen reports the encoded size of v, without encoding it.
func VarintLen(v uint32) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	default:
		return 4
	}
}

// VarintSize decodes the total byte count of a varint from its leading byte.
// Leading bytes >= 0xF0 are rejected.
func VarintSize(lead byte) (int, error) {
	switch {
	case lead&0x80 == 0:
		return 1, nil
	case lead&0xC0 == 0x80:
		return 2, nil
	case lead&0xE0 == 0xC0:
		return 3, nil
	case lead&0xF0 == 0xE0:
		return 4, nil
	default:
		return 0, fmt.Errorf("varint lead byte 0x%02X: %w", lead, errs.ErrMalformedToken)
	}
}

// DecodeVarint decodes a complete varint from buf. The caller supplies
// exactly the bytes VarintSize reported for buf[0].
func DecodeVarint(buf []byte) (uint32, error) {
	size, err := VarintSize(buf[0])
	if err != nil {
		return 0, err
	}
	if len(buf) < size {
		return 0, errs.ErrTruncated
	}

	switch size {
	case 1:
		return uint32(buf[0]), nil
	case 2:
		return uint32(buf[0]&0x3F)<<8 | uint32(buf[1]), nil
	case 3:
		return uint32(buf[0]&0x1F)<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
	default:
		return uint32(buf[0]&0x0F)<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
	}
}

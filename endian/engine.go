// Package endian provides byte order utilities for the keypack wire.
//
// The wire format is big-endian throughout. This package combines the
// ByteOrder and AppendByteOrder interfaces from encoding/binary into a single
// EndianEngine interface so codec code can both parse in place and append
// without intermediate buffers.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface. binary.BigEndian and binary.LittleEndian both
// satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetBigEndianEngine returns the big-endian engine. This is the wire order
// for every multi-byte integer and float in the format.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// GetLittleEndianEngine returns the little-endian engine. Not used on the
// wire; exposed for hosts that need to renormalize foreign UUID layouts.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// CheckEndianness determines the host's native byte order from a fixed
// integer value.
func CheckEndianness() binary.ByteOrder {
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsNativeBigEndian reports whether the host byte order matches the wire
// order.
func IsNativeBigEndian() bool {
	return CheckEndianness() == binary.BigEndian
}

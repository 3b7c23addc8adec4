package endian

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetEngines(t *testing.T) {
	require.Equal(t, binary.BigEndian, GetBigEndianEngine())
	require.Equal(t, binary.LittleEndian, GetLittleEndianEngine())
}

func TestBigEndianEngine_WireOrder(t *testing.T) {
	engine := GetBigEndianEngine()

	buf := engine.AppendUint32(nil, 0x01020304)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
	require.Equal(t, uint32(0x01020304), engine.Uint32(buf))

	buf = engine.AppendUint16(nil, 0xABCD)
	require.Equal(t, []byte{0xAB, 0xCD}, buf)
}

func TestCheckEndianness(t *testing.T) {
	native := CheckEndianness()
	require.True(t, native == binary.BigEndian || native == binary.LittleEndian)
	require.Equal(t, native == binary.BigEndian, IsNativeBigEndian())
}

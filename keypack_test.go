package keypack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/keypack/errs"
	"github.com/arloliu/keypack/format"
	"github.com/arloliu/keypack/stream"
)

type user struct {
	Name   string `keypack:"name"`
	Age    int    `keypack:"age"`
	Active bool   `keypack:"active"`
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	in := user{Name: "alice", Age: 30, Active: true}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out user
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestMarshal_InterningGain(t *testing.T) {
	users := make([]user, 100)
	for i := range users {
		users[i] = user{Name: "user", Age: i, Active: true}
	}

	on, err := Marshal(users)
	require.NoError(t, err)
	off, err := Marshal(users, WithKeyInterning(false))
	require.NoError(t, err)

	require.Less(t, len(on), len(off))

	var decoded []user
	require.NoError(t, Unmarshal(on, &decoded))
	require.Equal(t, users, decoded)
}

func TestMarshal_DynamicDecode(t *testing.T) {
	data, err := Marshal(map[string]any{"n": 42, "s": "txt"})
	require.NoError(t, err)

	var out any
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, map[string]any{"n": int64(42), "s": "txt"}, out)
}

func TestMarshal_CompressionEnvelope(t *testing.T) {
	users := make([]user, 200)
	for i := range users {
		users[i] = user{Name: "repetitive-name", Age: 42, Active: true}
	}

	for _, typ := range []format.CompressionType{
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		raw, err := Marshal(users)
		require.NoError(t, err)
		wrapped, err := Marshal(users, WithCompression(typ))
		require.NoError(t, err)

		require.Equal(t, byte(0xFE), wrapped[0], typ.String())
		require.Equal(t, byte(typ), wrapped[1])
		require.Less(t, len(wrapped), len(raw), typ.String())

		var out []user
		require.NoError(t, Unmarshal(wrapped, &out), typ.String())
		require.Equal(t, users, out)
	}
}

func TestUnmarshal_BadEnvelope(t *testing.T) {
	err := Unmarshal([]byte{0xFE}, &user{})
	require.ErrorIs(t, err, errs.ErrBadEnvelope)

	err = Unmarshal([]byte{0xFE, 0x7F, 0x00}, &user{})
	require.ErrorIs(t, err, errs.ErrBadEnvelope)
}

func TestUnmarshal_LimitEnforced(t *testing.T) {
	data, err := Marshal("this string is well over ten bytes long")
	require.NoError(t, err)

	limits := stream.DefaultLimits()
	limits.MaxStringLength = 10

	var out string
	err = Unmarshal(data, &out, WithLimits(limits))
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestEncoderDecoder_Stream(t *testing.T) {
	var buf bytes.Buffer

	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(user{Name: "streamed", Age: i}))
	}
	require.NoError(t, enc.Close())

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		var out user
		require.NoError(t, dec.Decode(&out))
		require.Equal(t, user{Name: "streamed", Age: i}, out)
	}
	require.NoError(t, dec.Close())
}

func TestEncoder_StructTemplatesOption(t *testing.T) {
	var buf bytes.Buffer

	enc := NewEncoder(&buf, WithStructTemplates(true))
	for i := 0; i < 10; i++ {
		require.NoError(t, enc.Encode(user{Name: "t", Age: i}))
	}
	require.NoError(t, enc.Close())

	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte{format.CmdDefineStruct}))

	dec := NewDecoder(&buf)
	for i := 0; i < 10; i++ {
		var out user
		require.NoError(t, dec.Decode(&out))
		require.Equal(t, i, out.Age)
	}
}

func TestEncoder_LowLevelMix(t *testing.T) {
	var buf bytes.Buffer

	enc := NewEncoder(&buf)
	w := enc.Writer()
	require.NoError(t, w.BeginArray())
	require.NoError(t, enc.Encode(user{Name: "a"}))
	require.NoError(t, enc.Encode(user{Name: "b"}))
	require.NoError(t, w.WriteEnd())

	dec := NewDecoder(&buf)
	r := dec.Reader()
	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	require.Equal(t, -1, n)

	var seen []string
	for {
		end, err := r.IsEnd()
		require.NoError(t, err)
		if end {
			require.NoError(t, r.ReadEnd())
			break
		}
		var u user
		require.NoError(t, dec.Decode(&u))
		seen = append(seen, u.Name)
	}
	require.Equal(t, []string{"a", "b"}, seen)
}

func TestFormatVersionLabel(t *testing.T) {
	require.Equal(t, "1.2.0", format.Version)
}

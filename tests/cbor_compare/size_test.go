// Package cborcompare measures encoded payload sizes against CBOR, a
// comparable self-describing binary format, to keep the key-interning and
// struct-template gains honest.
package cborcompare

import (
	"fmt"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/keypack"
)

type metric struct {
	MetricName string  `keypack:"metric_name" cbor:"metric_name"`
	Value      float64 `keypack:"value" cbor:"value"`
	Unit       string  `keypack:"unit" cbor:"unit"`
	Host       string  `keypack:"host" cbor:"host"`
	Sequence   int64   `keypack:"sequence" cbor:"sequence"`
}

func sampleMetrics(n int) []metric {
	out := make([]metric, n)
	for i := range out {
		out[i] = metric{
			MetricName: fmt.Sprintf("cpu.core%d.usage", i%8),
			Value:      float64(i) * 0.75,
			Unit:       "percent",
			Host:       "edge-gw-01",
			Sequence:   int64(i),
		}
	}

	return out
}

func TestSize_InterningBeatsCBOROnRecordLists(t *testing.T) {
	metrics := sampleMetrics(200)

	interned, err := keypack.Marshal(metrics)
	require.NoError(t, err)

	templated, err := keypack.Marshal(metrics, keypack.WithStructTemplates(true))
	require.NoError(t, err)

	cborBytes, err := cbor.Marshal(metrics)
	require.NoError(t, err)

	t.Logf("keypack interned : %d bytes", len(interned))
	t.Logf("keypack templated: %d bytes", len(templated))
	t.Logf("cbor             : %d bytes", len(cborBytes))

	// CBOR re-emits every field name per record; interning carries each
	// name once per stream.
	require.Less(t, len(interned), len(cborBytes))
	require.LessOrEqual(t, len(templated), len(interned))

	var decoded []metric
	require.NoError(t, keypack.Unmarshal(interned, &decoded))
	require.Equal(t, metrics, decoded)
}

func TestSize_SingleRecordComparable(t *testing.T) {
	one := sampleMetrics(1)

	kp, err := keypack.Marshal(one)
	require.NoError(t, err)
	cb, err := cbor.Marshal(one)
	require.NoError(t, err)

	// A single record has no repetition to exploit; the streams should be
	// within a few command bytes of each other.
	diff := len(kp) - len(cb)
	if diff < 0 {
		diff = -diff
	}
	require.Less(t, diff, 32, "keypack %d bytes vs cbor %d bytes", len(kp), len(cb))
}

func BenchmarkEncode_Keypack(b *testing.B) {
	metrics := sampleMetrics(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := keypack.Marshal(metrics); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode_CBOR(b *testing.B) {
	metrics := sampleMetrics(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cbor.Marshal(metrics); err != nil {
			b.Fatal(err)
		}
	}
}

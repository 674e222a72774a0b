package inflate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitAccumulatorLSBFirst(t *testing.T) {
	var a bitAccumulator

	require.False(t, a.want(3))
	v, ok := a.consume(0b00000101)
	require.True(t, ok)
	require.EqualValues(t, 5, v)
	require.Equal(t, 5, a.buffered())
}

func TestBitAccumulatorSpansBytes(t *testing.T) {
	var a bitAccumulator

	// 4 bits from the first byte, then a 12 bit field straddling two more
	require.False(t, a.want(4))
	v, ok := a.consume(0xA5)
	require.True(t, ok)
	require.EqualValues(t, 0x5, v)

	require.True(t, a.want(12))
	_, ok = a.resume()
	require.False(t, ok, "only 4 bits were buffered")
	require.Equal(t, 0, a.buffered())

	v, ok = a.consume(0x3C)
	require.True(t, ok)
	// 0xA (high nibble of 0xA5) then all 8 bits of 0x3C
	require.EqualValues(t, 0x3CA, v)
	require.Equal(t, 0, a.buffered())
}

func TestBitAccumulatorFullWidth(t *testing.T) {
	var a bitAccumulator

	require.False(t, a.want(32))
	in := []byte{0x78, 0x56, 0x34, 0x12}
	var (
		v  uint32
		ok bool
	)
	for i, b := range in {
		v, ok = a.consume(b)
		require.Equal(t, i == len(in)-1, ok)
	}
	require.EqualValues(t, 0x12345678, v)
}

func TestBitAccumulatorWidthBounds(t *testing.T) {
	var a bitAccumulator

	require.Panics(t, func() { a.want(0) })
	require.Panics(t, func() { a.want(33) })
	require.NotPanics(t, func() { a.want(1) })
}

func TestBitAccumulatorSingleBits(t *testing.T) {
	var a bitAccumulator

	var got []uint32
	a.want(1)
	v, ok := a.consume(0b10110010)
	require.True(t, ok)
	got = append(got, v)
	for a.want(1) {
		v, ok = a.resume()
		require.True(t, ok)
		got = append(got, v)
	}
	require.Equal(t, []uint32{0, 1, 0, 0, 1, 1, 0, 1}, got)
}

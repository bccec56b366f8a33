package bitspec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWidthForMatchesLog2Formula(t *testing.T) {
	// range [0,100] res 1 -> 101 steps -> ceil(log2(101)) = 7
	require.Equal(t, uint32(7), widthFor(0, 100, 1))
	// range [-40,125] res 0.01 -> 16501 steps -> ceil(log2(16501)) = 15
	require.Equal(t, uint32(15), widthFor(-40, 125, 0.01))
	// single possible value -> at least 1 bit
	require.Equal(t, uint32(1), widthFor(5, 5, 1))
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	f := NewField(0, 0, 100, 1)
	line := make([]byte, 1)
	f.Encode(42, line)
	require.InDelta(t, float32(42), f.Decode(line), 0.001)
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	f := NewField(0, 0, 100, 1)
	line := make([]byte, 1)
	f.Encode(1000, line)
	require.InDelta(t, float32(100), f.Decode(line), 1)

	f.Encode(-50, line)
	require.InDelta(t, float32(0), f.Decode(line), 1)
}

func TestMultipleFieldsDoNotOverlap(t *testing.T) {
	fields, size := BuildFields(
		[][2]float32{{0, 100}, {-40, 125}, {0, 1}},
		[]float32{1, 0.01, 1},
	)
	require.Len(t, fields, 3)
	require.Greater(t, size, 0)

	line := make([]byte, size)
	fields[0].Encode(50, line)
	fields[1].Encode(21.5, line)
	fields[2].Encode(1, line)

	require.InDelta(t, float32(50), fields[0].Decode(line), 0.01)
	require.InDelta(t, float32(21.5), fields[1].Decode(line), 0.01)
	require.InDelta(t, float32(1), fields[2].Decode(line), 0.01)
}

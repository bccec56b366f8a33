package histogram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPercentileWithUniformSamples(t *testing.T) {
	h := New()
	for i := 0; i < 100; i++ {
		h.Record(time.Duration(i+1) * time.Millisecond)
	}
	p50 := h.Percentile(50)
	require.InDelta(t, 50, p50.Milliseconds(), 15)
}

func TestPercentileEmptyIsZero(t *testing.T) {
	h := New()
	require.Equal(t, time.Duration(0), h.Percentile(99))
}

func TestClampsOutOfRangeSamples(t *testing.T) {
	h := New()
	h.Record(0)
	h.Record(10 * time.Hour)
	require.Equal(t, uint64(2), h.Total())
}

func TestDensityCountsRecentOccurrencesPerMinute(t *testing.T) {
	h := New()
	for i := 0; i < 5; i++ {
		h.Record(10 * time.Millisecond)
	}

	density := h.Density([]time.Duration{time.Minute, 5 * time.Minute})
	require.Len(t, density, 2)
	require.InDelta(t, 5, density[0], 0.01) // 5 samples / 1 minute window
	require.InDelta(t, 1, density[1], 0.01) // 5 samples / 5 minute window
}

func TestDensityIgnoresRehydratedSamples(t *testing.T) {
	h := New()
	h.RecordMillis(250, 100)
	density := h.Density([]time.Duration{time.Minute})
	require.Equal(t, []float64{0}, density)
}

func TestSnapshotRoundTripsIntoFreshHistogram(t *testing.T) {
	h := New()
	h.Record(250 * time.Millisecond)
	h.Record(250 * time.Millisecond)
	h.Record(9 * time.Second)

	snap := h.Snapshot()
	require.NotEmpty(t, snap)

	rehydrated := New()
	for _, b := range snap {
		rehydrated.RecordMillis(b.MidpointMillis, b.Count)
	}
	require.Equal(t, h.Total(), rehydrated.Total())
}

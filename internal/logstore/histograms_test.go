package logstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
)

func TestHistogramStoreObserveTracksInterArrival(t *testing.T) {
	s := openTestStore(t)
	hs := NewHistogramStore(s)

	start := time.Now()
	hs.Observe(reading.KindBedTemperature, start)
	hs.Observe(reading.KindBedTemperature, start.Add(100*time.Millisecond))
	hs.Observe(reading.KindBedTemperature, start.Add(200*time.Millisecond))

	p50 := hs.Percentile(reading.KindBedTemperature, 50)
	require.InDelta(t, 100, p50.Milliseconds(), 20)
}

func TestHistogramStorePersistAndLoadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	hs := NewHistogramStore(s)

	start := time.Now()
	hs.Observe(reading.KindBedTemperature, start)
	hs.Observe(reading.KindBedTemperature, start.Add(time.Second))

	require.NoError(t, hs.PersistAll())

	reloaded := NewHistogramStore(s)
	require.NoError(t, reloaded.LoadAll())
	require.InDelta(t, 1000, reloaded.Percentile(reading.KindBedTemperature, 50).Milliseconds(), 50)
}

func TestHistogramStorePercentileOfUntrackedKindIsZero(t *testing.T) {
	s := openTestStore(t)
	hs := NewHistogramStore(s)
	require.Equal(t, time.Duration(0), hs.Percentile(reading.KindBedTemperature, 50))
}

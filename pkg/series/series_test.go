package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
)

func TestOpenOrCreateWritesHeaderOnFirstOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := openOrCreate(dir, reading.DeviceSht31)
	require.NoError(t, err)
	defer s.close()

	require.FileExists(t, dir+"/header.avro")
	require.Len(t, s.hdr.Kinds, 4) // Sht31 serves Bed's Temperature+Humidity and Desk's Temperature+Humidity
}

func TestReopenWithSameOntologySucceeds(t *testing.T) {
	dir := t.TempDir()
	s1, err := openOrCreate(dir, reading.DeviceMhz14)
	require.NoError(t, err)
	require.NoError(t, s1.close())

	s2, err := openOrCreate(dir, reading.DeviceMhz14)
	require.NoError(t, err)
	defer s2.close()
}

func TestAppendPushesOnceAllFieldsFresh(t *testing.T) {
	dir := t.TempDir()
	s, err := openOrCreate(dir, reading.DeviceMhz14)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindBedCO2, Value: 415}))
	require.EqualValues(t, 1, s.l0.count) // Mhz14 only produces one kind, so one Append already completes the line
}

func TestAppendDoesNotPushUntilAllFieldsSet(t *testing.T) {
	dir := t.TempDir()
	s, err := openOrCreate(dir, reading.DeviceSht31)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindBedTemperature, Value: 21}))
	require.EqualValues(t, 0, s.l0.count)

	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindBedHumidity, Value: 40}))
	require.EqualValues(t, 0, s.l0.count) // Desk's two fields still unset

	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindDeskTemperature, Value: 19}))
	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindDeskHumidity, Value: 35}))
	require.EqualValues(t, 1, s.l0.count)
}

func TestReadReturnsAppendedValues(t *testing.T) {
	dir := t.TempDir()
	s, err := openOrCreate(dir, reading.DeviceMhz14)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.Append(reading.Reading{Kind: reading.KindBedCO2, Value: 415}))

	start := time.Now().Add(-time.Minute)
	end := time.Now().Add(time.Minute)
	pts, err := s.Read([]reading.Kind{reading.KindBedCO2}, start, end, 0)
	require.NoError(t, err)
	require.Len(t, pts.Times, 1)
	require.InDelta(t, 415, pts.Values[reading.KindBedCO2][0], 1)
}

func TestStoreAppendAndReadAcrossDevices(t *testing.T) {
	store := Open(t.TempDir())
	defer store.Close()

	require.NoError(t, store.Append(reading.Reading{Kind: reading.KindBedCO2, Value: 500}))

	start := time.Now().Add(-time.Minute)
	end := time.Now().Add(time.Minute)
	pts, err := store.Read([]reading.Kind{reading.KindBedCO2}, start, end, 0)
	require.NoError(t, err)
	require.Len(t, pts.Times, 1)
}

func TestStoreReadRejectsMixedDevices(t *testing.T) {
	store := Open(t.TempDir())
	defer store.Close()

	_, err := store.Read([]reading.Kind{reading.KindBedCO2, reading.KindBedTemperature}, time.Now(), time.Now(), 0)
	require.Error(t, err)
}

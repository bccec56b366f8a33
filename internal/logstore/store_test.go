package logstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, Migrate("sqlite3", dsn))
	s, err := Connect("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadBackError(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	err := s.RecordError(reading.Error{Device: reading.DeviceMhz14, Cause: reading.CauseTimeout}, now)
	require.NoError(t, err)

	rows, err := s.RecentErrors(reading.DeviceMhz14, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, reading.CauseTimeout, rows[0].Cause)
}

func TestRecordErrorCoalescesIdenticalConsecutive(t *testing.T) {
	s := openTestStore(t)

	start := time.Now().Add(-time.Minute)
	end := time.Now()
	e := reading.Error{Device: reading.DeviceMhz14, Cause: reading.CauseTimeout, Message: "no response"}
	require.NoError(t, s.RecordError(e, start))
	require.NoError(t, s.RecordError(e, end))

	rows, err := s.RecentErrors(reading.DeviceMhz14, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.WithinDuration(t, start, rows[0].Start, time.Second)
	require.WithinDuration(t, end, rows[0].End, time.Second)
}

func TestRecordErrorStartsNewSpanOnChange(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordError(reading.Error{Device: reading.DeviceMhz14, Cause: reading.CauseTimeout}, time.Now()))
	require.NoError(t, s.RecordError(reading.Error{Device: reading.DeviceMhz14, Cause: reading.CauseSetup}, time.Now()))

	rows, err := s.RecentErrors(reading.DeviceMhz14, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRecentErrorsWithInvalidDeviceReturnsAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordError(reading.Error{Device: reading.DeviceMhz14, Cause: reading.CauseTimeout}, time.Now()))
	require.NoError(t, s.RecordError(reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseSetup}, time.Now()))

	var invalid reading.DeviceID = 255
	rows, err := s.RecentErrors(invalid, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRecordActivationTracksAcceptedAndRejected(t *testing.T) {
	s := openTestStore(t)

	aff := reading.Affector{Kind: reading.AffectorCleanSensor, Target: reading.DeviceMhz14}
	require.NoError(t, s.RecordActivation(aff, true, time.Now()))
	require.NoError(t, s.RecordActivation(aff, false, time.Now()))

	accepted, rejected, err := s.ActivationCount(reading.AffectorCleanSensor)
	require.NoError(t, err)
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, rejected)
}

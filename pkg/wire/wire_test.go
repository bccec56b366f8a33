package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
)

func TestCobsRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0},
		{1, 2, 3},
		{0, 0, 0},
		bytes.Repeat([]byte{1}, 500), // exercises the 0xFF block-length wrap
	}
	for _, c := range cases {
		enc := cobsEncode(c)
		require.NotContains(t, enc, byte(0))
		dec, err := cobsDecode(enc)
		require.NoError(t, err)
		require.Equal(t, c, dec)
	}
}

func TestCobsDecodeRejectsGarbage(t *testing.T) {
	_, err := cobsDecode([]byte{0})
	require.ErrorIs(t, err, ErrCorruptEncoding)
}

func TestMsgReadingsRoundTrip(t *testing.T) {
	m := Msg{
		Kind: KindReadings,
		Readings: []reading.Reading{
			{Kind: reading.KindBedTemperature, Value: 21.5},
			{Kind: reading.KindBedHumidity, Value: 40.2},
		},
	}
	frame, err := Encode(m)
	require.NoError(t, err)
	require.Equal(t, byte(0), frame[len(frame)-1])

	got, err := Decode(frame[:len(frame)-1])
	require.NoError(t, err)
	require.Equal(t, m.Kind, got.Kind)
	require.Len(t, got.Readings, 2)
	require.Equal(t, reading.KindBedTemperature, got.Readings[0].Kind)
	require.InDelta(t, 21.5, got.Readings[0].Value, 0.001)
}

func TestMsgErrorRoundTrip(t *testing.T) {
	m := Msg{Kind: KindError, Err: reading.Error{
		Device:  reading.DeviceMhz14,
		Cause:   reading.CauseSetup,
		Message: "warm-up",
	}}
	frame, _ := Encode(m)
	got, err := Decode(frame[:len(frame)-1])
	require.NoError(t, err)
	require.Equal(t, reading.DeviceMhz14, got.Err.Device)
	require.Equal(t, "warm-up", got.Err.Message)
}

func TestMsgAffectorOrderRoundTrip(t *testing.T) {
	m := Msg{Kind: KindAffectorOrder, Order: reading.Affector{
		Kind:   reading.AffectorCalibrateCO2,
		Target: reading.DeviceMhz14,
		Param:  420,
	}}
	frame, _ := Encode(m)
	got, err := Decode(frame[:len(frame)-1])
	require.NoError(t, err)
	require.Equal(t, reading.AffectorCalibrateCO2, got.Order.Kind)
	require.InDelta(t, float32(420), got.Order.Param, 0.01)
}

func TestEncodeRejectsTooManyReadings(t *testing.T) {
	readings := make([]reading.Reading, MaxReadingsPerBatch+1)
	_, err := Encode(Msg{Kind: KindReadings, Readings: readings})
	require.Error(t, err)
}

func TestScannerReadsSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMsg(&buf, Msg{Kind: KindError, Err: reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseTimeout}}))
	require.NoError(t, WriteMsg(&buf, Msg{Kind: KindError, Err: reading.Error{Device: reading.DeviceBme680, Cause: reading.CauseTimeout}}))

	s := NewScanner(&buf, 0)
	first, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, reading.DeviceSht31, first.Err.Device)

	second, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, reading.DeviceBme680, second.Err.Device)

	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

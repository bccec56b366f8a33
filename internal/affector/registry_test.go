package affector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

func calibrate() reading.Affector {
	return reading.Affector{Kind: reading.AffectorCalibrateCO2, Target: reading.DeviceMhz14, Param: 420}
}

func TestActivateReturnsOfflineWhenNoneRegistered(t *testing.T) {
	r := New()
	_, err := r.Activate(calibrate())
	require.ErrorIs(t, err, ErrOffline)
}

func TestActivateDeliversToRegisteredNode(t *testing.T) {
	r := New()
	sink := make(chan wire.Msg, 1)
	r.Register("node-a", []reading.Affector{calibrate()}, sink)

	name, err := r.Activate(calibrate())
	require.NoError(t, err)
	require.Equal(t, "node-a", name)

	got := <-sink
	require.Equal(t, wire.KindAffectorOrder, got.Kind)
	require.Equal(t, reading.DeviceMhz14, got.Order.Target)
}

func TestActivateSkipsFullSinkAndTriesNextCandidate(t *testing.T) {
	r := New()
	full := make(chan wire.Msg) // unbuffered, will never accept a non-blocking send
	r.Register("node-full", []reading.Affector{calibrate()}, full)

	ready := make(chan wire.Msg, 1)
	r.Register("node-ready", []reading.Affector{calibrate()}, ready)

	name, err := r.Activate(calibrate())
	require.NoError(t, err)
	require.Equal(t, "node-ready", name)
}

func TestRemoveStopsFutureActivation(t *testing.T) {
	r := New()
	sink := make(chan wire.Msg, 1)
	h := r.Register("node-a", []reading.Affector{calibrate()}, sink)
	r.Remove(h)

	_, err := r.Activate(calibrate())
	require.ErrorIs(t, err, ErrOffline)
}

func TestListIsFlatConcatenationAcrossNodes(t *testing.T) {
	r := New()
	r.Register("node-a", []reading.Affector{calibrate()}, make(chan wire.Msg, 1))
	r.Register("node-b", []reading.Affector{calibrate()}, make(chan wire.Msg, 1))

	// Two nodes legitimately offering the same kind+target both show up;
	// List never dedupes.
	require.Len(t, r.List(), 2)
}

func TestUpdateReplacesMatchingControlInPlace(t *testing.T) {
	r := New()
	other := reading.Affector{Kind: reading.AffectorCleanSensor, Target: reading.DeviceGpio}
	h := r.Register("node-a", []reading.Affector{other, calibrate()}, make(chan wire.Msg, 1))

	updated := calibrate()
	updated.Param = 9001
	r.Update(h, updated)

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, other, list[0])
	require.Equal(t, updated, list[1])
}

func TestUpdateAppendsNewControl(t *testing.T) {
	r := New()
	h := r.Register("node-a", []reading.Affector{calibrate()}, make(chan wire.Msg, 1))

	fresh := reading.Affector{Kind: reading.AffectorCleanSensor, Target: reading.DeviceGpio}
	r.Update(h, fresh)

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, fresh, list[1])
}

func TestActivateUpdatesStoredParam(t *testing.T) {
	r := New()
	sink := make(chan wire.Msg, 1)
	r.Register("node-a", []reading.Affector{calibrate()}, sink)

	used := calibrate()
	used.Param = 999
	_, err := r.Activate(used)
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 1)
	require.Equal(t, float32(999), list[0].Param)
}

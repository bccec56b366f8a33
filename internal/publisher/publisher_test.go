package publisher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
)

func TestEnqueueCoalescesSameKind(t *testing.T) {
	p := New(nil, 0)
	p.Enqueue(reading.Reading{Kind: reading.KindBedTemperature, Value: 20})
	p.Enqueue(reading.Reading{Kind: reading.KindBedTemperature, Value: 21})

	errs, batches := p.drain()
	require.Empty(t, errs)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.InDelta(t, float32(21), batches[0][0].Value, 0.01)
}

func TestDrainSplitsIntoMaxBatches(t *testing.T) {
	p := New(nil, 0)
	for _, k := range reading.AllKinds() {
		p.Enqueue(reading.Reading{Kind: k, Value: 1})
	}

	_, batches := p.drain()
	total := 0
	for _, b := range batches {
		require.LessOrEqual(t, len(b), 50)
		total += len(b)
	}
	require.Equal(t, len(reading.AllKinds()), total)
}

func TestEnqueueErrorCoalescesIdenticalConsecutive(t *testing.T) {
	p := New(nil, 0)
	e := reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseTimeout, Message: "no response"}
	p.EnqueueError(e)
	p.EnqueueError(e)
	p.EnqueueError(e)

	errs, _ := p.drain()
	require.Len(t, errs, 1)
}

func TestEnqueueErrorKeepsDistinctEntries(t *testing.T) {
	p := New(nil, 0)
	p.EnqueueError(reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseTimeout})
	p.EnqueueError(reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseSetup})
	p.EnqueueError(reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseTimeout})

	errs, _ := p.drain()
	require.Len(t, errs, 3)
}

func TestDrainEmptiesQueues(t *testing.T) {
	p := New(nil, 0)
	p.Enqueue(reading.Reading{Kind: reading.KindBedTemperature, Value: 1})
	p.EnqueueError(reading.Error{Device: reading.DeviceSht31, Cause: reading.CauseTimeout})

	p.drain()
	errs, batches := p.drain()
	require.Empty(t, errs)
	require.Empty(t, batches)
}

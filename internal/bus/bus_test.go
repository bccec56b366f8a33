package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	_, out1 := b.Subscribe()
	_, out2 := b.Subscribe()

	msg := wire.Msg{Kind: wire.KindReadings, Readings: []reading.Reading{{Kind: reading.KindBedTemperature, Value: 21}}}
	require.NoError(t, b.Publish(ctx, msg))

	select {
	case got := <-out1:
		require.Equal(t, msg.Kind, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive broadcast")
	}
	select {
	case got := <-out2:
		require.Equal(t, msg.Kind, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive broadcast")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	id, _ := b.Subscribe()
	b.Unsubscribe(id)
	require.Equal(t, 0, b.Stats().SubscriberCount)
}

func TestSlowSubscriberIsDroppedInsteadOfBlocking(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	id, out := b.Subscribe()

	msg := wire.Msg{Kind: wire.KindReadings}
	for i := 0; i < SubscriberCapacity+10; i++ {
		require.NoError(t, b.Publish(ctx, msg))
	}
	time.Sleep(50 * time.Millisecond)

	require.Greater(t, b.Stats().Drops, uint64(0))
	// The slow subscriber is unsubscribed outright, not just skipped.
	require.Equal(t, 0, b.Stats().SubscriberCount)

	// Draining past whatever was already buffered must still end in a
	// closed channel, proving Unsubscribe ran rather than just a full queue.
	closed := false
	for i := 0; i < SubscriberCapacity+1; i++ {
		if _, ok := <-out; !ok {
			closed = true
			break
		}
	}
	require.True(t, closed, "dropped subscriber's channel should be closed")
	b.Unsubscribe(id) // no-op, must not panic on a second close
}

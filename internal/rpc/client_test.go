package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

func TestClientReceivesFramesFromServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.WriteMsg(conn, wire.Msg{Kind: wire.KindReadings, Readings: []reading.Reading{
			{Kind: reading.KindBedTemperature, Value: 21.5},
		}})
		// keep connection open briefly so the client's read isn't racing close
		time.Sleep(100 * time.Millisecond)
	}()

	c := NewClient(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan wire.Msg, 1)
	go c.Run(ctx, func(m wire.Msg) error {
		received <- m
		return nil
	})

	select {
	case m := <-received:
		require.Equal(t, wire.KindReadings, m.Kind)
		require.InDelta(t, 21.5, m.Readings[0].Value, 0.01)
	case <-time.After(time.Second):
		t.Fatal("did not receive frame")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCount := make(chan struct{}, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			connCount <- struct{}{}
			conn.Close() // immediately drop, forcing the client to reconnect
		}
	}()

	c := NewClient(ln.Addr().String())
	c.bo.Min = 10 * time.Millisecond
	c.bo.Max = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go c.Run(ctx, func(wire.Msg) error { return nil })

	seen := 0
	timeout := time.After(900 * time.Millisecond)
	for seen < 2 {
		select {
		case <-connCount:
			seen++
		case <-timeout:
			t.Fatalf("expected at least 2 reconnect attempts, saw %d", seen)
			return
		}
	}
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	err := c.Send(wire.Msg{Kind: wire.KindReadings})
	require.Error(t, err)
}

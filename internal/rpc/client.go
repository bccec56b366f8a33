// Package rpc implements the reconnecting client side of the two-port
// protocol: a persistent TCP connection to either the data-server's
// subscribe port or its update port, which silently reconnects with bounded
// exponential backoff whenever the connection drops.
package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/wire"
)

// Default backoff bounds: an initial 5s delay, doubling up to a minute.
// Spelled out explicitly here because the transport is a plain TCP
// connection, not a library that manages reconnects internally.
const (
	DefaultMinBackoff = 5 * time.Second
	DefaultMaxBackoff = time.Minute
)

// Client is a reconnecting TCP client speaking the wire.Msg protocol.
type Client struct {
	addr string
	dial func(ctx context.Context, addr string) (net.Conn, error)
	bo   *backoff.Backoff

	mu   sync.Mutex
	conn net.Conn
}

// NewClient builds a Client for addr, using the default dialer and backoff
// bounds.
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		bo: &backoff.Backoff{
			Min:    DefaultMinBackoff,
			Max:    DefaultMaxBackoff,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Handler is called for every decoded message received while connected.
// Returning a non-nil error tears down the connection and triggers a
// reconnect.
type Handler func(wire.Msg) error

// Run connects, reads frames and invokes handler for each until ctx is
// cancelled, reconnecting with exponential backoff whenever the connection
// is lost. Run only returns (nil) when ctx is cancelled.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := c.dial(ctx, c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d := c.bo.Duration()
			log.Warnf("rpc: connect to %s failed: %v, retrying in %s", c.addr, err, d)
			if !sleep(ctx, d) {
				return nil
			}
			continue
		}

		log.Infof("rpc: connected to %s", c.addr)
		c.bo.Reset()
		c.setConn(conn)

		err = c.readLoop(ctx, conn, handler)
		c.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		d := c.bo.Duration()
		log.Warnf("rpc: connection to %s lost: %v, reconnecting in %s", c.addr, err, d)
		if !sleep(ctx, d) {
			return nil
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, handler Handler) error {
	scanner := wire.NewScanner(conn, 0)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		m, err := scanner.Next()
		if err != nil {
			return err
		}
		if err := handler(m); err != nil {
			return err
		}
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Send writes a message on the current connection, if any. Returns an error
// if not currently connected; callers running alongside Run should expect
// transient Send failures across a reconnect.
func (c *Client) Send(m wire.Msg) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("rpc: not connected to %s", c.addr)
	}
	return wire.WriteMsg(conn, m)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

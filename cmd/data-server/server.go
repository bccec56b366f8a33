package main

import (
	"context"
	"net"
	"time"

	"github.com/sensormesh/fabric/internal/adminhttp"
	"github.com/sensormesh/fabric/internal/affector"
	"github.com/sensormesh/fabric/internal/bus"
	"github.com/sensormesh/fabric/internal/opstelemetry"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

// Server holds every shared dependency the two listener loops (update and
// subscribe) need; main wires one up and starts both loops against it.
type Server struct {
	Bus       *bus.Bus
	Affectors *affector.Registry
	Metrics   *adminhttp.Metrics
	Telemetry *opstelemetry.Publisher
}

// serveUpdates accepts producer-node connections on the update port. Each
// connection gets its own goroutine; a decode failure or closed connection
// only ever terminates that one connection, never the server.
func (s *Server) serveUpdates(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Errorf("data-server: update accept: %v", err)
				return
			}
		}
		go s.handleUpdateConn(ctx, conn)
	}
}

func (s *Server) handleUpdateConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()
	log.Infof("data-server: node connected from %s", peer)

	// Orders queued for this node by Affector.Activate, drained by a
	// writer goroutine for the lifetime of the connection.
	orders := make(chan wire.Msg, 32)
	var handle affector.Handle
	registered := false

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case m, ok := <-orders:
				if !ok {
					return
				}
				if err := wire.WriteMsg(conn, m); err != nil {
					log.Warnf("data-server: writing order to %s: %v", peer, err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		if registered {
			s.Affectors.Remove(handle)
		}
		close(orders)
		<-writerDone
	}()

	scanner := wire.NewScanner(conn, 0)
	for {
		m, err := scanner.Next()
		if err != nil {
			log.Infof("data-server: node %s disconnected: %v", peer, err)
			return
		}

		switch m.Kind {
		case wire.KindReadings:
			s.Metrics.ReadingsReceived.Add(float64(len(m.Readings)))
			if err := s.Bus.Publish(ctx, m); err != nil {
				return
			}
		case wire.KindError:
			s.Metrics.ErrorsReceived.Inc()
			if err := s.Bus.Publish(ctx, m); err != nil {
				return
			}
		case wire.KindAffectorRegister:
			if registered {
				for _, a := range m.Affected {
					s.Affectors.Update(handle, a)
				}
			} else {
				handle = s.Affectors.Register(peer, m.Affected, orders)
				registered = true
			}
		default:
			log.Warnf("data-server: node %s sent unexpected message kind %d on update port", peer, m.Kind)
		}
	}
}

// serveSubscribers accepts subscriber connections (chiefly data-store) on
// the subscribe port. Each subscriber gets the bus broadcast pushed to it,
// and may in turn send KindAffectorOrder frames upstream as Actuate
// requests, answered in-band with KindAffectorControlled.
func (s *Server) serveSubscribers(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Errorf("data-server: subscribe accept: %v", err)
				return
			}
		}
		go s.handleSubscriberConn(ctx, conn)
	}
}

func (s *Server) handleSubscriberConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()
	log.Infof("data-server: subscriber connected from %s", peer)

	id, out := s.Bus.Subscribe()
	defer s.Bus.Unsubscribe(id)

	readDone := make(chan struct{})
	writeMu := newWriteSerializer()
	go func() {
		defer close(readDone)
		scanner := wire.NewScanner(conn, 0)
		for {
			m, err := scanner.Next()
			if err != nil {
				return
			}
			if m.Kind != wire.KindAffectorOrder {
				log.Warnf("data-server: subscriber %s sent unexpected message kind %d", peer, m.Kind)
				continue
			}
			s.handleActuate(conn, writeMu, m.Order)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case m, ok := <-out:
			if !ok {
				return
			}
			if err := writeMu.write(conn, m); err != nil {
				log.Infof("data-server: subscriber %s disconnected: %v", peer, err)
				return
			}
		}
	}
}

// handleActuate answers one Actuate request received in-band on a
// subscriber connection: a KindAffectorControlled with a non-empty
// ControlledBy on success, or an empty one signaling Offline. This is the
// only server->subscriber traffic that doesn't originate from the bus
// broadcast, so it shares writeMu with the broadcast writer to keep the two
// from interleaving partial frames on the same connection.
func (s *Server) handleActuate(conn net.Conn, writeMu *writeSerializer, order reading.Affector) {
	controlledBy, err := s.Affectors.Activate(order)
	if err != nil {
		s.Metrics.ActivationsFailed.Inc()
	} else {
		s.Metrics.ActivationsOK.Inc()
	}
	reply := wire.Msg{Kind: wire.KindAffectorControlled, ControlledBy: controlledBy, Handled: order}
	if writeErr := writeMu.write(conn, reply); writeErr != nil {
		log.Warnf("data-server: writing actuate reply: %v", writeErr)
	}
}

// writeSerializer guards a connection's writer against interleaving the
// broadcast loop's writes with an in-band Actuate reply.
type writeSerializer struct {
	mu chan struct{}
}

func newWriteSerializer() *writeSerializer {
	return &writeSerializer{mu: make(chan struct{}, 1)}
}

func (w *writeSerializer) write(conn net.Conn, m wire.Msg) error {
	w.mu <- struct{}{}
	defer func() { <-w.mu }()
	return wire.WriteMsg(conn, m)
}

// publishTelemetry periodically snapshots the bus and affector registry
// onto the optional ops telemetry sink. A nil Telemetry makes Publish a
// no-op, so this loop runs unconditionally.
func (s *Server) publishTelemetry(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.Bus.Stats()
			snap := opstelemetry.Snapshot{
				Timestamp:       time.Now(),
				SubscriberCount: stats.SubscriberCount,
				SubscriberDrops: stats.Drops,
				AffectorCount:   s.Affectors.Count(),
				QueueDepth:      stats.QueueDepth,
			}
			if err := s.Telemetry.Publish(snap); err != nil {
				log.Warnf("data-server: publishing telemetry: %v", err)
			}
		}
	}
}

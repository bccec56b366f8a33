// Package bus implements the single-writer fan-out broadcast at the heart
// of the data-server: every reading batch and error report accepted from a
// node is pushed to every current subscriber,
// non-blocking. A subscriber that falls behind is dropped outright rather
// than stalling delivery to everyone else.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/wire"
)

// IncomingCapacity bounds the single MPSC queue every node connection feeds
// into. Once full, node handlers block on send -- backpressure belongs to
// the node, not to the subscribers.
const IncomingCapacity = 2000

// SubscriberCapacity bounds each subscriber's outbound queue. A subscriber
// whose queue is full is unsubscribed rather than ever blocking the
// broadcast loop.
const SubscriberCapacity = 256

// Bus owns the set of current subscribers and the single goroutine that
// drains incoming messages and fans them out.
type Bus struct {
	incoming chan wire.Msg

	mu      sync.Mutex
	subs    map[uint64]*subscriber
	nextID  uint64
	drops   atomic.Uint64
	pushed  atomic.Uint64
}

type subscriber struct {
	id  uint64
	out chan wire.Msg
}

// New creates a Bus. Call Run in its own goroutine to start the broadcast
// loop; Run exits when ctx is cancelled.
func New() *Bus {
	return &Bus{
		incoming: make(chan wire.Msg, IncomingCapacity),
		subs:     make(map[uint64]*subscriber),
	}
}

// Publish enqueues a message from a node connection for broadcast. It
// blocks if the incoming queue is full -- callers are expected to be node
// connection handlers, and a full incoming queue means the server itself is
// falling behind, which should propagate back as TCP backpressure.
func (b *Bus) Publish(ctx context.Context, m wire.Msg) error {
	select {
	case b.incoming <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the incoming queue and fans each message out to every current
// subscriber until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.incoming:
			b.broadcast(m)
		}
	}
}

func (b *Bus) broadcast(m wire.Msg) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.out <- m:
			b.pushed.Add(1)
		default:
			b.drops.Add(1)
			log.Warnf("bus: subscriber %d can't keep up, dropping it", s.id)
			b.Unsubscribe(s.id)
		}
	}
}

// Subscribe registers a new subscriber and returns its outbound channel and
// an id used to Unsubscribe later. The caller owns draining out and writing
// each message to the subscriber's connection.
func (b *Bus) Subscribe() (id uint64, out <-chan wire.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{id: b.nextID, out: make(chan wire.Msg, SubscriberCapacity)}
	b.subs[s.id] = s
	return s.id, s.out
}

// Unsubscribe removes a subscriber and closes its outbound channel, which
// unblocks the caller's drain loop (out yields ok=false). Safe to call more
// than once.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.out)
}

// Stats is a point-in-time snapshot used by internal/adminhttp and
// internal/opstelemetry.
type Stats struct {
	SubscriberCount int
	Pushed          uint64
	Drops           uint64
	QueueDepth      int
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return Stats{
		SubscriberCount: n,
		Pushed:          b.pushed.Load(),
		Drops:           b.drops.Load(),
		QueueDepth:      len(b.incoming),
	}
}

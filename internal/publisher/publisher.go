// Package publisher is the node side of the update port: it batches reading
// samples and buffers error reports, flushing both to the server on a
// timer over a reconnecting rpc.Client. Error reports are always flushed
// ahead of routine readings, since they invalidate readings downstream.
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/sensormesh/fabric/internal/rpc"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

// MaxQueuedReadings bounds the number of distinct Kinds in the routine-reading
// queue. A new sample always replaces a queued one of the same Kind -- only
// the latest sample of any given reading matters to a subscriber that hasn't
// caught up yet -- and once the queue is full, a sample of a new Kind evicts
// the oldest queued Kind.
const MaxQueuedReadings = 4096

// MaxQueuedErrors bounds the error queue. Errors are rarer and more
// important than readings, so this is just a sanity backstop against a
// misbehaving driver.
const MaxQueuedErrors = 256

// Publisher batches outgoing messages for one node and flushes them to a
// Client on an interval.
type Publisher struct {
	client        *rpc.Client
	flushInterval time.Duration

	mu       sync.Mutex
	pending  map[reading.Kind]reading.Reading // latest value per kind, coalesced
	order    []reading.Kind                   // insertion order, for deterministic batches
	errors   []reading.Error
}

func New(client *rpc.Client, flushInterval time.Duration) *Publisher {
	return &Publisher{
		client:        client,
		flushInterval: flushInterval,
		pending:       make(map[reading.Kind]reading.Reading),
	}
}

// Enqueue records a fresh reading, coalescing with any not-yet-flushed
// value for the same Kind.
func (p *Publisher) Enqueue(r reading.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.pending[r.Kind]; !exists {
		if len(p.order) >= MaxQueuedReadings {
			// Drop the oldest distinct kind to make room; this only
			// triggers if the flush loop has stalled for a very long time.
			oldest := p.order[0]
			p.order = p.order[1:]
			delete(p.pending, oldest)
		}
		p.order = append(p.order, r.Kind)
	}
	p.pending[r.Kind] = r
}

// EnqueueError records a device trouble report, coalescing with the
// previous entry when it's identical -- a device stuck in the same trouble
// state shouldn't fill the queue with one entry per sample interval.
func (p *Publisher) EnqueueError(e reading.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.errors); n > 0 && p.errors[n-1] == e {
		return
	}
	if len(p.errors) >= MaxQueuedErrors {
		p.errors = p.errors[1:]
	}
	p.errors = append(p.errors, e)
}

// Run flushes pending messages to client every flushInterval until ctx is
// cancelled.
func (p *Publisher) Run(ctx context.Context) {
	t := time.NewTicker(p.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	errs, batches := p.drain()

	for _, e := range errs {
		if err := p.client.Send(wire.Msg{Kind: wire.KindError, Err: e}); err != nil {
			log.Warnf("publisher: flush error report: %v", err)
		}
	}
	for _, batch := range batches {
		if err := p.client.Send(wire.Msg{Kind: wire.KindReadings, Readings: batch}); err != nil {
			log.Warnf("publisher: flush reading batch: %v", err)
		}
	}
}

// drain empties the queues and slices the pending readings into batches no
// larger than wire.MaxReadingsPerBatch.
func (p *Publisher) drain() ([]reading.Error, [][]reading.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := p.errors
	p.errors = nil

	readings := make([]reading.Reading, 0, len(p.order))
	for _, k := range p.order {
		readings = append(readings, p.pending[k])
	}
	p.pending = make(map[reading.Kind]reading.Reading)
	p.order = nil

	var batches [][]reading.Reading
	for len(readings) > 0 {
		n := wire.MaxReadingsPerBatch
		if n > len(readings) {
			n = len(readings)
		}
		batches = append(batches, readings[:n])
		readings = readings[n:]
	}
	return errs, batches
}

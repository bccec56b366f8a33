// Package affector implements the server-side registry of actuators nodes
// expose: which node can run which Affector, and a non-blocking activation
// path that tries the next node offering the same affector if the first is
// too busy to accept the order.
package affector

import (
	"errors"
	"sync"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/wire"
)

// ErrOffline is returned when no registered node can currently accept an
// order for the requested affector, either because none is registered or
// because every candidate's queue is full.
var ErrOffline = errors.New("affector: no node online to serve this affector")

// Handle identifies one node's registration. Opaque to callers outside this
// package, the Go equivalent of the original registry's SlotMap key.
type Handle uint64

// registration is one node's standing offer to serve a set of affectors.
type registration struct {
	handle   Handle
	name     string
	controls []reading.Affector
	sink     chan<- wire.Msg
}

func (r *registration) serves(a reading.Affector) bool {
	for _, c := range r.controls {
		if c.IsSameAs(a) {
			return true
		}
	}
	return false
}

// replace updates the stored copy of whichever control IsSameAs a, leaving
// its position in controls untouched. No-op if nothing matches.
func (r *registration) replace(a reading.Affector) {
	for i, c := range r.controls {
		if c.IsSameAs(a) {
			r.controls[i] = a
			return
		}
	}
}

// Registry is the mutex-guarded map of handle -> registration. A single
// Registry is shared by every node connection handler and the RPC server
// that receives actuation requests from clients.
type Registry struct {
	mu      sync.Mutex
	nextID  Handle
	entries map[Handle]*registration
}

func New() *Registry {
	return &Registry{entries: make(map[Handle]*registration)}
}

// Register records a new node offering to serve controls, delivering
// activation orders on sink (a non-blocking send is attempted; the caller
// owns draining sink and writing orders to the node's connection).
func (r *Registry) Register(name string, controls []reading.Affector, sink chan<- wire.Msg) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	h := r.nextID
	r.entries[h] = &registration{handle: h, name: name, controls: controls, sink: sink}
	return h
}

// Update records a single affector a registered node now offers: if an
// existing control IsSameAs a, it's replaced in place (preserving its
// position in the list); otherwise a is appended as a new offering.
func (r *Registry) Update(h Handle, a reading.Affector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[h]
	if !ok {
		return
	}
	for i, c := range reg.controls {
		if c.IsSameAs(a) {
			reg.controls[i] = a
			return
		}
	}
	reg.controls = append(reg.controls, a)
}

// Remove drops a node's registration, e.g. on disconnect.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

// Activate finds a node willing to serve a, and delivers the order
// non-blocking. If the first candidate's sink is full, the next candidate
// serving the same affector is tried, matching the original registry's
// try_send-or-scan-next behavior. On success, the accepting node's stored
// copy of the control is updated to a's Param, so a later List() or Activate
// sees the parameters this order just used. Returns the name of the node
// that accepted the order.
func (r *Registry) Activate(a reading.Affector) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.entries {
		if !reg.serves(a) {
			continue
		}
		select {
		case reg.sink <- wire.Msg{Kind: wire.KindAffectorOrder, Order: a}:
			reg.replace(a)
			return reg.name, nil
		default:
			continue
		}
	}
	return "", ErrOffline
}

// List returns the flat concatenation of every registered node's controls,
// in iteration order. Two nodes both currently offering the same kind+target
// show up as two separate entries; callers that care about picking one
// should use Activate.
func (r *Registry) List() []reading.Affector {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]reading.Affector, 0)
	for _, reg := range r.entries {
		out = append(out, reg.controls...)
	}
	return out
}

// Count returns the number of registered nodes (not affectors), used for
// admin/ops telemetry.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

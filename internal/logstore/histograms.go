package logstore

import (
	"sync"
	"time"

	"github.com/sensormesh/fabric/pkg/histogram"
	"github.com/sensormesh/fabric/pkg/reading"
)

// HistogramStore is the in-memory half of the log & histogram module, keyed
// per reading.Kind, with the SQL-backed persistence that lets it survive a
// restart. Observe feeds it from the live subscriber stream; PersistAll and
// LoadAll move bucket snapshots to and from the histogram_snapshot table.
type HistogramStore struct {
	db *Store

	mu       sync.Mutex
	hists    map[reading.Kind]*histogram.Histogram
	lastSeen map[reading.Kind]time.Time
}

func NewHistogramStore(db *Store) *HistogramStore {
	return &HistogramStore{
		db:       db,
		hists:    make(map[reading.Kind]*histogram.Histogram),
		lastSeen: make(map[reading.Kind]time.Time),
	}
}

func (hs *HistogramStore) histFor(k reading.Kind) *histogram.Histogram {
	h, ok := hs.hists[k]
	if !ok {
		h = histogram.New()
		hs.hists[k] = h
	}
	return h
}

// Observe records the inter-arrival time between this and the previous
// reading of k. The first observation of a kind only seeds lastSeen --
// there is no prior sample to measure an interval against.
func (hs *HistogramStore) Observe(k reading.Kind, at time.Time) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if prev, ok := hs.lastSeen[k]; ok {
		hs.histFor(k).Record(at.Sub(prev))
	}
	hs.lastSeen[k] = at
}

// Percentile reports the p-th percentile inter-arrival time for k.
func (hs *HistogramStore) Percentile(k reading.Kind, p float64) time.Duration {
	hs.mu.Lock()
	h, ok := hs.hists[k]
	hs.mu.Unlock()
	if !ok {
		return 0
	}
	return h.Percentile(p)
}

// Density reports k's per-minute sample rate over each lookback window.
func (hs *HistogramStore) Density(k reading.Kind, windows []time.Duration) []float64 {
	hs.mu.Lock()
	h, ok := hs.hists[k]
	hs.mu.Unlock()
	if !ok {
		return make([]float64, len(windows))
	}
	return h.Density(windows)
}

// TrackedKinds lists every kind with at least one recorded interval, for
// admin introspection and for PersistAll to iterate over.
func (hs *HistogramStore) TrackedKinds() []reading.Kind {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	kinds := make([]reading.Kind, 0, len(hs.hists))
	for k := range hs.hists {
		kinds = append(kinds, k)
	}
	return kinds
}

// PersistAll snapshots every tracked kind's histogram into
// histogram_snapshot, replacing whatever was stored for that kind before.
func (hs *HistogramStore) PersistAll() error {
	for _, k := range hs.TrackedKinds() {
		hs.mu.Lock()
		h := hs.hists[k]
		hs.mu.Unlock()
		if err := hs.db.replaceHistogramSnapshot(k, h.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll rehydrates every persisted snapshot back into its kind's
// Histogram. Call once at startup, before Observe sees live traffic.
func (hs *HistogramStore) LoadAll() error {
	snaps, err := hs.db.loadHistogramSnapshots()
	if err != nil {
		return err
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for k, buckets := range snaps {
		h := hs.histFor(k)
		for _, b := range buckets {
			h.RecordMillis(b.MidpointMillis, b.Count)
		}
	}
	return nil
}

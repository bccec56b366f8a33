// Package histogram implements an in-memory, log-bucketed histogram over
// millisecond durations, the in-memory half of the log & histogram store.
// Buckets keep 2 significant digits, which keeps memory bounded regardless
// of how many samples are recorded while still giving useful percentiles
// over a wide [1ms, 1h] range.
package histogram

import (
	"math"
	"sort"
	"sync"
	"time"
)

// MinMillis and MaxMillis bound the values this histogram tracks; samples
// outside the range are clamped rather than rejected, since a single
// outlier shouldn't be lost from the percentile picture.
const (
	MinMillis = 1
	MaxMillis = 3_600_000 // one hour
)

// maxOccurrenceAge bounds how far back Density can look; occurrences older
// than this are pruned on every Record so the slice can't grow unboundedly
// over a long-running process.
const maxOccurrenceAge = 24 * time.Hour

// Histogram accumulates counts in log-scale, 2-significant-digit buckets,
// and separately remembers each live Record's wall-clock time so Density
// can answer "how many per minute, over the last N" questions.
type Histogram struct {
	mu          sync.Mutex
	counts      map[int64]uint64
	total       uint64
	occurrences []time.Time // ascending, pruned to maxOccurrenceAge
}

func New() *Histogram {
	return &Histogram{counts: make(map[int64]uint64)}
}

// bucketKey maps a millisecond value to a bucket id encoding its exponent
// (hundreds place and up) and its 2-significant-digit mantissa (last two
// digits).
func bucketKey(ms float64) int64 {
	if ms < MinMillis {
		ms = MinMillis
	}
	if ms > MaxMillis {
		ms = MaxMillis
	}
	exp := math.Floor(math.Log10(ms))
	norm := ms / math.Pow(10, exp)
	digit := math.Round(norm * 10)
	if digit >= 100 {
		digit = 10
		exp++
	}
	return int64(exp)*100 + int64(digit)
}

func bucketMidpoint(key int64) float64 {
	exp := key / 100
	digit := key % 100
	return float64(digit) / 10 * math.Pow(10, float64(exp))
}

// Record adds one sample observed just now.
func (h *Histogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[bucketKey(float64(d.Milliseconds()))]++
	h.total++

	now := time.Now()
	h.occurrences = append(h.occurrences, now)
	h.pruneOccurrences(now)
}

// pruneOccurrences drops everything older than maxOccurrenceAge. Callers
// hold h.mu.
func (h *Histogram) pruneOccurrences(now time.Time) {
	cutoff := now.Add(-maxOccurrenceAge)
	i := sort.Search(len(h.occurrences), func(i int) bool { return !h.occurrences[i].Before(cutoff) })
	h.occurrences = h.occurrences[i:]
}

// RecordMillis adds one sample given directly in milliseconds, for callers
// rehydrating persisted bucket counts rather than timing a live event. It
// does not feed Density: a rehydrated count has no real occurrence time.
func (h *Histogram) RecordMillis(ms float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[bucketKey(ms)] += count
	h.total += count
}

// Density reports, for each requested lookback window, how many samples
// were recorded within it, normalized to a per-minute rate.
func (h *Histogram) Density(buckets []time.Duration) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.pruneOccurrences(now)

	out := make([]float64, len(buckets))
	for i, window := range buckets {
		cutoff := now.Add(-window)
		idx := sort.Search(len(h.occurrences), func(j int) bool { return !h.occurrences[j].Before(cutoff) })
		count := len(h.occurrences) - idx
		minutes := window.Minutes()
		if minutes <= 0 {
			continue
		}
		out[i] = float64(count) / minutes
	}
	return out
}

// Percentile returns the p-th percentile (0..100) duration, or 0 if no
// samples have been recorded.
func (h *Histogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.total == 0 {
		return 0
	}

	keys := make([]int64, 0, len(h.counts))
	for k := range h.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	target := uint64(math.Ceil(p / 100 * float64(h.total)))
	if target == 0 {
		target = 1
	}
	var cum uint64
	for _, k := range keys {
		cum += h.counts[k]
		if cum >= target {
			return time.Duration(bucketMidpoint(k)) * time.Millisecond
		}
	}
	return time.Duration(bucketMidpoint(keys[len(keys)-1])) * time.Millisecond
}

// Bucket is one (midpoint, count) pair, the unit logstore persists and
// reloads snapshots with.
type Bucket struct {
	MidpointMillis float64
	Count          uint64
}

// Snapshot returns every non-empty bucket, sorted by midpoint.
func (h *Histogram) Snapshot() []Bucket {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Bucket, 0, len(h.counts))
	for k, c := range h.counts {
		out = append(out, Bucket{MidpointMillis: bucketMidpoint(k), Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MidpointMillis < out[j].MidpointMillis })
	return out
}

// Total returns the number of samples recorded.
func (h *Histogram) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

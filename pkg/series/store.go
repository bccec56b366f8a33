// Package series implements the per-device ByteSeries time-series store:
// an append-only, bit-packed L0 line per device plus three precomputed
// down-sampled levels, grouped under a directory keyed by the device's base
// path (e.g. largebedroom/bed/sht31).
package series

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sensormesh/fabric/pkg/lrucache"
	"github.com/sensormesh/fabric/pkg/reading"
)

// Store owns every open Series under a root directory. All mutation (open,
// append) happens under a single store-wide mutex (each Series also keeps its
// own lock, which orders its reads against its appends), matching the original store's concurrency model: appends are rare
// enough and fast enough that a single mutex never becomes a bottleneck,
// and it rules out the lock-ordering bugs a per-series lock scheme invites.
type Store struct {
	mu     sync.Mutex
	root   string
	series map[reading.DeviceID]*Series

	readCache *lrucache.Cache
}

// Open returns a Store rooted at dir, creating it if necessary. Series are
// opened lazily on first Append/Read for a given device.
func Open(dir string) *Store {
	return &Store{
		root:      dir,
		series:    make(map[reading.DeviceID]*Series),
		readCache: lrucache.New(64 << 20), // 64MiB of cached read results
	}
}

func (st *Store) seriesFor(device reading.DeviceID) (*Series, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.series[device]; ok {
		return s, nil
	}

	// Every Kind a device produces shares the same base path, so any one
	// of them picks the right directory.
	kinds := reading.KindsForDevice(device)
	if len(kinds) == 0 {
		return nil, fmt.Errorf("series: device %v produces no readings", device)
	}
	dir := filepath.Join(st.root, kinds[0].BasePath())

	s, err := openOrCreate(dir, device)
	if err != nil {
		return nil, err
	}
	st.series[device] = s
	return s, nil
}

// Append appends one reading to its device's series, opening the series if
// this is the first reading seen for that device.
func (st *Store) Append(r reading.Reading) error {
	s, err := st.seriesFor(r.Kind.Device())
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.Append(r)
}

// Read fetches points for a set of same-device readings over [start, end],
// reshaped toward n points, with results cached briefly to absorb bursts of
// identical dashboard queries.
func (st *Store) Read(kinds []reading.Kind, start, end time.Time, n int) (Points, error) {
	if len(kinds) == 0 {
		return Points{}, fmt.Errorf("series: read requires at least one kind")
	}
	device := kinds[0].Device()
	for _, k := range kinds[1:] {
		if k.Device() != device {
			return Points{}, fmt.Errorf("series: read requires all kinds to share one device")
		}
	}

	cacheKey := fmt.Sprintf("%v|%d|%d|%d", kinds, start.UnixMilli(), end.UnixMilli(), n)
	cached := st.readCache.Get(cacheKey, func() (interface{}, time.Duration, int) {
		s, err := st.seriesFor(device)
		if err != nil {
			return readResult{err: err}, time.Second, 0
		}
		pts, err := s.Read(kinds, start, end, n)
		return readResult{pts: pts, err: err}, 5 * time.Second, estimateSize(pts)
	})

	res := cached.(readResult)
	return res.pts, res.err
}

type readResult struct {
	pts Points
	err error
}

func estimateSize(p Points) int {
	size := len(p.Times) * 8
	for _, vs := range p.Values {
		size += len(vs) * 8
	}
	return size
}

// Close closes every open series.
func (st *Store) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	var firstErr error
	for _, s := range st.series {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDeviceCount reports how many device series are currently open, used
// by internal/adminhttp.
func (st *Store) OpenDeviceCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.series)
}

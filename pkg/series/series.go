package series

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sensormesh/fabric/pkg/reading"
)

// freshWindow is how long a just-set field counts as "fresh" when deciding
// whether a device's line is complete enough to push to L0. A field that
// has never been set at all always counts as stale, never fresh.
const freshWindow = 500 * time.Millisecond

type fieldMeta struct {
	hasSet bool
	setAt  time.Time
}

type accumulator struct {
	sums    []float64
	n       int
	firstTS uint64
}

func newAccumulator(n int) *accumulator {
	return &accumulator{sums: make([]float64, n)}
}

func (a *accumulator) reset() {
	for i := range a.sums {
		a.sums[i] = 0
	}
	a.n = 0
}

// Series is one device's append-only time series: an in-progress line being
// assembled from individual Append calls, an L0 raw (bit-packed) file, and
// three precomputed down-sampled levels.
type Series struct {
	mu     sync.Mutex
	device reading.DeviceID
	hdr    header

	line  []byte
	metas []fieldMeta

	l0   *level
	l123 [3]*level
	accs [3]*accumulator
}

func (s *Series) levelFloats() int { return len(s.hdr.Kinds) }

// openOrCreate opens an existing series directory or creates a fresh one.
// If a header already exists on disk and it doesn't structurally match the
// header the live ontology expects for this device, that's a schema-drift
// error rather than silent data loss.
func openOrCreate(dir string, device reading.DeviceID) (*Series, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("series: create dir %s: %w", dir, err)
	}

	expected := newHeaderFor(device)
	headerPath := filepath.Join(dir, "header.avro")

	if data, err := os.ReadFile(headerPath); err == nil {
		existing, derr := decodeHeader(data)
		if derr != nil {
			return nil, fmt.Errorf("series: %s: %w", headerPath, derr)
		}
		if !existing.equal(expected) {
			return nil, fmt.Errorf("series: %s: header does not match the readings %s now produces", headerPath, device.Info().Name)
		}
	} else if os.IsNotExist(err) {
		encoded, eerr := encodeHeader(expected)
		if eerr != nil {
			return nil, eerr
		}
		if werr := os.WriteFile(headerPath, encoded, 0o644); werr != nil {
			return nil, fmt.Errorf("series: write header: %w", werr)
		}
	} else {
		return nil, fmt.Errorf("series: read header: %w", err)
	}

	l0, err := openLevel(filepath.Join(dir, "l0.dat"), expected.payloadBytes())
	if err != nil {
		return nil, err
	}

	s := &Series{
		device: device,
		hdr:    expected,
		line:   make([]byte, expected.payloadBytes()),
		metas:  make([]fieldMeta, len(expected.Kinds)),
	}
	floatPayload := len(expected.Kinds) * 4
	for i := range s.l123 {
		lvl, err := openLevel(filepath.Join(dir, fmt.Sprintf("l%d.dat", i+1)), floatPayload)
		if err != nil {
			l0.close()
			return nil, err
		}
		s.l123[i] = lvl
		s.accs[i] = newAccumulator(len(expected.Kinds))
	}
	s.l0 = l0
	return s, nil
}

func (s *Series) close() error {
	var firstErr error
	if err := s.l0.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, l := range s.l123 {
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Series) indexOf(k reading.Kind) (int, bool) {
	for i, hk := range s.hdr.Kinds {
		if hk == k {
			return i, true
		}
	}
	return 0, false
}

// Append encodes one reading into the in-progress line. Once every field
// in the line has been set within freshWindow of each other, the completed
// line is pushed to L0 and folded into the down-sample accumulators, and the
// line starts fresh. A field that was never set at all blocks the push
// indefinitely, the same as one that went stale.
func (s *Series) Append(r reading.Reading) error {
	idx, ok := s.indexOf(r.Kind)
	if !ok {
		return fmt.Errorf("series: %s does not produce %s", s.device.Info().Name, r.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hdr.Fields[idx].Encode(r.Value, s.line)
	now := time.Now()
	s.metas[idx] = fieldMeta{hasSet: true, setAt: now}

	allFresh := true
	for _, m := range s.metas {
		if !m.hasSet || now.Sub(m.setAt) > freshWindow {
			allFresh = false
			break
		}
	}
	if !allFresh {
		return nil
	}

	ts := uint64(now.UnixMilli()) / s.hdr.Scale
	if err := s.l0.append(ts, s.line); err != nil {
		return err
	}

	values := make([]float64, len(s.hdr.Fields))
	for i, f := range s.hdr.Fields {
		values[i] = float64(f.Decode(s.line))
	}
	if err := s.foldIntoAccumulators(ts, values); err != nil {
		return err
	}

	s.line = make([]byte, len(s.line))
	s.metas = make([]fieldMeta, len(s.metas))
	return nil
}

func (s *Series) foldIntoAccumulators(ts uint64, values []float64) error {
	for li, acc := range s.accs {
		if acc.n == 0 {
			acc.firstTS = ts
		}
		for i, v := range values {
			acc.sums[i] += v
		}
		acc.n++
		if acc.n < bucketSizes[li] {
			continue
		}
		avg := make([]float32, len(values))
		for i := range avg {
			avg[i] = float32(acc.sums[i] / float64(acc.n))
		}
		if err := s.l123[li].append(acc.firstTS, encodeFloats(avg)); err != nil {
			return err
		}
		acc.reset()
	}
	return nil
}

func encodeFloats(vs []float32) []byte {
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) []float32 {
	vs := make([]float32, len(buf)/4)
	for i := range vs {
		vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vs
}

package series

import (
	"fmt"
	"time"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/resampler"
)

// Points is the result of a Read: one timestamp column and one value column
// per requested reading.
type Points struct {
	Times  []time.Time
	Values map[reading.Kind][]float64
}

// Read returns samples for kinds within [start, end], reshaped toward n
// points. The coarsest precomputed level whose range already holds at least
// n points is used directly; otherwise L0 is read and, if it overshoots n,
// pkg/resampler.LargestTriangleThreeBucket reshapes it down.
func (s *Series) Read(kinds []reading.Kind, start, end time.Time, n int) (Points, error) {
	idxs := make([]int, len(kinds))
	for i, k := range kinds {
		idx, ok := s.indexOf(k)
		if !ok {
			return Points{}, fmt.Errorf("series: %s does not produce %s", s.device.Info().Name, k)
		}
		idxs[i] = idx
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scale := s.hdr.Scale
	startScaled := uint64(start.UnixMilli()) / scale
	endScaled := (uint64(end.UnixMilli()) + scale - 1) / scale

	// Try coarsest to finest so a wide query over a long range doesn't pay
	// for decoding every raw L0 line when a downsampled level already has
	// enough points.
	for li := len(s.l123) - 1; li >= 0; li-- {
		ts, payloads, err := s.l123[li].readRange(startScaled, endScaled)
		if err != nil {
			return Points{}, err
		}
		if len(ts) >= n && len(ts) > 0 {
			return assembleFloatLevel(ts, payloads, kinds, idxs, scale), nil
		}
	}

	ts, payloads, err := s.l0.readRange(startScaled, endScaled)
	if err != nil {
		return Points{}, err
	}
	pts := assembleBitpackedLevel(ts, payloads, s.hdr, kinds, idxs, scale)
	if n > 0 && len(pts.Times) > n {
		return downsampleTo(pts, n), nil
	}
	return pts, nil
}

func assembleFloatLevel(ts []uint64, payloads [][]byte, kinds []reading.Kind, idxs []int, scale uint64) Points {
	pts := Points{
		Times:  make([]time.Time, len(ts)),
		Values: make(map[reading.Kind][]float64, len(kinds)),
	}
	for _, k := range kinds {
		pts.Values[k] = make([]float64, len(ts))
	}
	for row, t := range ts {
		pts.Times[row] = time.UnixMilli(int64(t * scale))
		vals := decodeFloats(payloads[row])
		for ki, idx := range idxs {
			pts.Values[kinds[ki]][row] = float64(vals[idx])
		}
	}
	return pts
}

func assembleBitpackedLevel(ts []uint64, payloads [][]byte, hdr header, kinds []reading.Kind, idxs []int, scale uint64) Points {
	pts := Points{
		Times:  make([]time.Time, len(ts)),
		Values: make(map[reading.Kind][]float64, len(kinds)),
	}
	for _, k := range kinds {
		pts.Values[k] = make([]float64, len(ts))
	}
	for row, t := range ts {
		pts.Times[row] = time.UnixMilli(int64(t * scale))
		for ki, idx := range idxs {
			pts.Values[kinds[ki]][row] = float64(hdr.Fields[idx].Decode(payloads[row]))
		}
	}
	return pts
}

// downsampleTo reshapes pts toward n points per reading using the ported
// LTTB resampler, keeping the shared time axis from the first reading's
// shape (every reading in a Read shares the same row count and timestamps).
func downsampleTo(pts Points, n int) Points {
	if len(pts.Times) == 0 || n <= 0 {
		return pts
	}
	oldFreq := 1
	newFreq := len(pts.Times) / n
	if newFreq <= 1 {
		return pts
	}

	out := Points{Values: make(map[reading.Kind][]float64, len(pts.Values))}
	keepIdx := make([]int, 0, n)
	first := true
	for k, vs := range pts.Values {
		resampled, _, err := resampler.LargestTriangleThreeBucket(vs, oldFreq, newFreq*oldFreq)
		if err != nil {
			out.Values[k] = vs
			continue
		}
		out.Values[k] = resampled
		if first {
			// Recover which original rows LTTB kept isn't tracked by the
			// ported algorithm, so approximate the output time axis by
			// even subsampling -- good enough for a down-sampled chart.
			step := float64(len(pts.Times)-1) / float64(len(resampled)-1)
			for i := range resampled {
				keepIdx = append(keepIdx, int(float64(i)*step))
			}
			first = false
		}
	}
	out.Times = make([]time.Time, len(keepIdx))
	for i, idx := range keepIdx {
		out.Times[i] = pts.Times[idx]
	}
	return out
}

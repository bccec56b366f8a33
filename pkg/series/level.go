package series

import (
	"encoding/binary"
	"fmt"
	"os"
)

// bucketSizes are the down-sample factors of levels L1-L3 relative to L0,
// matching the three stacked resolutions the original byteseries store
// precomputes eagerly rather than deriving lazily at query time.
var bucketSizes = [3]int{10, 100, 1000}

// level is one on-disk append-only file of fixed-size records: an 8-byte
// little-endian timestamp (UnixMilli divided by the header's Scale) followed
// by a fixed payload.
type level struct {
	f          *os.File
	recordSize int // 8 + payload
	payload    int
	count      int64
}

func openLevel(path string, payload int) (*level, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("series: open level file %s: %w", path, err)
	}
	recordSize := 8 + payload
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.Size()%int64(recordSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("series: level file %s has a truncated trailing record", path)
	}
	return &level{f: f, recordSize: recordSize, payload: payload, count: stat.Size() / int64(recordSize)}, nil
}

func (l *level) close() error {
	return l.f.Close()
}

// append writes one record at the end of the file.
func (l *level) append(tsMillis uint64, payload []byte) error {
	if len(payload) != l.payload {
		return fmt.Errorf("series: payload size mismatch: got %d want %d", len(payload), l.payload)
	}
	buf := make([]byte, l.recordSize)
	binary.LittleEndian.PutUint64(buf[:8], tsMillis)
	copy(buf[8:], payload)

	if _, err := l.f.WriteAt(buf, l.count*int64(l.recordSize)); err != nil {
		return fmt.Errorf("series: append record: %w", err)
	}
	l.count++
	return nil
}

// readRange reads every record whose timestamp falls in [start, end],
// returning the timestamps and raw payloads in ascending order. A linear
// scan is used rather than a binary search: series files are expected to
// stay small enough (bounded by retention/archival, see internal/tasks)
// that this is not the bottleneck it would be for an unbounded log.
func (l *level) readRange(start, end uint64) ([]uint64, [][]byte, error) {
	if l.count == 0 {
		return nil, nil, nil
	}
	buf := make([]byte, l.recordSize*int(l.count))
	if _, err := l.f.ReadAt(buf, 0); err != nil {
		return nil, nil, fmt.Errorf("series: read level: %w", err)
	}

	var timestamps []uint64
	var payloads [][]byte
	for i := int64(0); i < l.count; i++ {
		rec := buf[i*int64(l.recordSize) : (i+1)*int64(l.recordSize)]
		ts := binary.LittleEndian.Uint64(rec[:8])
		if ts < start || ts > end {
			continue
		}
		payload := make([]byte, l.payload)
		copy(payload, rec[8:])
		timestamps = append(timestamps, ts)
		payloads = append(payloads, payload)
	}
	return timestamps, payloads, nil
}

package series

import (
	"fmt"
	"math"

	"github.com/linkedin/goavro/v2"

	"github.com/sensormesh/fabric/pkg/bitspec"
	"github.com/sensormesh/fabric/pkg/reading"
)

// headerSchema is the fixed Avro schema for a series header. The schema does
// not vary with the device, so a header written for a different reading set
// or field layout still decodes; schema drift is caught by comparing the
// decoded header against the expected one with equal (see openOrCreate).
const headerSchema = `{
  "type": "record",
  "name": "SeriesHeader",
  "fields": [
    {"name": "kinds", "type": {"type": "array", "items": "int"}},
    {"name": "offsets", "type": {"type": "array", "items": "long"}},
    {"name": "widths", "type": {"type": "array", "items": "long"}},
    {"name": "los", "type": {"type": "array", "items": "float"}},
    {"name": "his", "type": {"type": "array", "items": "float"}},
    {"name": "resolutions", "type": {"type": "array", "items": "float"}},
    {"name": "scale", "type": "long"}
  ]
}`

// header is the on-disk description of one device's line layout: which
// readings it holds, the bit field each occupies, and the timestamp scale
// every level file for this device is stored in.
type header struct {
	Kinds  []reading.Kind
	Fields []bitspec.Field
	Scale  uint64
}

func newHeaderFor(device reading.DeviceID) header {
	kinds := reading.KindsForDevice(device)
	ranges := make([][2]float32, len(kinds))
	resolutions := make([]float32, len(kinds))
	for i, k := range kinds {
		lo, hi := k.Range()
		ranges[i] = [2]float32{lo, hi}
		resolutions[i] = k.Resolution()
	}
	fields, _ := bitspec.BuildFields(ranges, resolutions)
	return header{Kinds: kinds, Fields: fields, Scale: scaleFor(device)}
}

// scaleFor derives a device's timestamp scale: round(1 / (0.001 *
// min(TemporalResolution, MinSampleInterval))), both expressed in seconds.
// Every timestamp this device's levels store is an absolute millisecond
// UnixMilli divided by this scale, not a raw millisecond count.
func scaleFor(device reading.DeviceID) uint64 {
	info := device.Info()
	res := info.TemporalResolution
	if info.MinSampleInterval < res {
		res = info.MinSampleInterval
	}
	seconds := res.Seconds()
	if seconds <= 0 {
		return 1
	}
	scale := math.Round(1 / (0.001 * seconds))
	if scale < 1 {
		return 1
	}
	return uint64(scale)
}

func (h header) payloadBytes() int {
	if len(h.Fields) == 0 {
		return 0
	}
	last := h.Fields[len(h.Fields)-1]
	return int((last.Offset + last.Width + 7) / 8)
}

// equal compares two headers structurally: same readings, in the same
// order, with identical field layout. Used to detect schema drift on
// reopen, a stronger check than just comparing reading sets.
func (h header) equal(other header) bool {
	if len(h.Kinds) != len(other.Kinds) || h.Scale != other.Scale {
		return false
	}
	for i := range h.Kinds {
		if h.Kinds[i] != other.Kinds[i] {
			return false
		}
		a, b := h.Fields[i], other.Fields[i]
		if a.Offset != b.Offset || a.Width != b.Width || a.Lo != b.Lo || a.Hi != b.Hi || a.Res != b.Res {
			return false
		}
	}
	return true
}

func encodeHeader(h header) ([]byte, error) {
	codec, err := goavro.NewCodec(headerSchema)
	if err != nil {
		return nil, fmt.Errorf("series: build header codec: %w", err)
	}

	kinds := make([]interface{}, len(h.Kinds))
	offsets := make([]interface{}, len(h.Fields))
	widths := make([]interface{}, len(h.Fields))
	los := make([]interface{}, len(h.Fields))
	his := make([]interface{}, len(h.Fields))
	resolutions := make([]interface{}, len(h.Fields))
	for i, k := range h.Kinds {
		kinds[i] = int32(k)
		f := h.Fields[i]
		offsets[i] = int64(f.Offset)
		widths[i] = int64(f.Width)
		los[i] = f.Lo
		his[i] = f.Hi
		resolutions[i] = f.Res
	}

	native := map[string]interface{}{
		"kinds":       kinds,
		"offsets":     offsets,
		"widths":      widths,
		"los":         los,
		"his":         his,
		"resolutions": resolutions,
		"scale":       int64(h.Scale),
	}

	binary, err := codec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("series: encode header: %w", err)
	}
	return binary, nil
}

func decodeHeader(data []byte) (header, error) {
	codec, err := goavro.NewCodec(headerSchema)
	if err != nil {
		return header{}, fmt.Errorf("series: build header codec: %w", err)
	}

	native, _, err := codec.NativeFromBinary(data)
	if err != nil {
		return header{}, fmt.Errorf("series: header in file does not match expected schema: %w", err)
	}

	m, ok := native.(map[string]interface{})
	if !ok {
		return header{}, fmt.Errorf("series: malformed header record")
	}

	kindsRaw := m["kinds"].([]interface{})
	offsets := m["offsets"].([]interface{})
	widths := m["widths"].([]interface{})
	los := m["los"].([]interface{})
	his := m["his"].([]interface{})
	resolutions := m["resolutions"].([]interface{})
	scale := m["scale"].(int64)

	h := header{
		Kinds:  make([]reading.Kind, len(kindsRaw)),
		Fields: make([]bitspec.Field, len(kindsRaw)),
		Scale:  uint64(scale),
	}
	for i := range kindsRaw {
		h.Kinds[i] = reading.Kind(kindsRaw[i].(int32))
		h.Fields[i] = bitspec.Field{
			Offset: uint32(offsets[i].(int64)),
			Width:  uint32(widths[i].(int64)),
			Lo:     los[i].(float32),
			Hi:     his[i].(float32),
			Res:    resolutions[i].(float32),
		}
	}
	return h, nil
}

package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/sensormesh/fabric/pkg/reading"
)

// ErrCorruptEncoding is returned for any structural failure while decoding a
// frame: a bad COBS sequence, a truncated payload, or a Kind byte identifying
// no known message type.
var ErrCorruptEncoding = errors.New("wire: corrupt encoding")

// MaxReadingsPerBatch bounds how many readings one KindReadings message may
// carry, which in turn bounds the worst-case encoded size of a frame --
// callers size read buffers against MaxFrameSize rather than growing them
// unboundedly as firmware bugs or malicious peers send larger batches.
const MaxReadingsPerBatch = 50

// MaxFrameSize is a generous static bound on one encoded (pre-COBS) frame:
// a kind byte, a batch big enough to hold MaxReadingsPerBatch readings (each
// 2 + 4 bytes), plus slack for the other message kinds' smaller payloads.
const MaxFrameSize = 1 + 2 + MaxReadingsPerBatch*6 + 256

// Kind identifies which of the fixed message shapes a frame encodes.
type Kind uint8

const (
	// KindReadings carries a batch of fresh reading samples. Sent node ->
	// server on the update port, and server -> subscriber on the
	// subscribe port.
	KindReadings Kind = iota
	// KindError carries one device trouble report.
	KindError
	// KindAffectorRegister: node -> server, "I can serve these affectors".
	KindAffectorRegister
	// KindAffectorOrder: "activate this affector". Sent subscriber -> server
	// on the subscribe port, and server -> node on the update port.
	KindAffectorOrder
	// KindAffectorControlled: server -> subscriber, the reply to an order:
	// who handled it, or an empty ControlledBy when no node was reached.
	KindAffectorControlled
)

// Msg is the tagged union of every message this protocol can carry. Only
// the field(s) matching Kind are meaningful.
type Msg struct {
	Kind Kind

	Readings []reading.Reading // KindReadings
	Err      reading.Error     // KindError
	Affected []reading.Affector // KindAffectorRegister

	Order reading.Affector // KindAffectorOrder

	ControlledBy string           // KindAffectorControlled
	Handled      reading.Affector // KindAffectorControlled
}

// Encode returns the COBS-framed, zero-terminated wire form of m in a newly
// allocated slice. The frame is fully self-describing; no external
// schema is consulted while decoding.
func Encode(m Msg) ([]byte, error) {
	body, err := encodeBody(m)
	if err != nil {
		return nil, err
	}
	framed := cobsEncode(body)
	return append(framed, 0), nil
}

func encodeBody(m Msg) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(m.Kind))

	switch m.Kind {
	case KindReadings:
		if len(m.Readings) > MaxReadingsPerBatch {
			return nil, errors.New("wire: too many readings in one batch")
		}
		buf = appendUint16(buf, uint16(len(m.Readings)))
		for _, r := range m.Readings {
			buf = appendReading(buf, r)
		}
	case KindError:
		buf = appendError(buf, m.Err)
	case KindAffectorRegister:
		buf = appendUint16(buf, uint16(len(m.Affected)))
		for _, a := range m.Affected {
			buf = appendAffector(buf, a)
		}
	case KindAffectorOrder:
		buf = appendAffector(buf, m.Order)
	case KindAffectorControlled:
		buf = appendString(buf, m.ControlledBy)
		buf = appendAffector(buf, m.Handled)
	default:
		return nil, errors.New("wire: unknown message kind")
	}
	return buf, nil
}

// Decode reverses Encode. frame must not include the trailing zero
// delimiter (strip it, or use Scanner which does so for you).
func Decode(frame []byte) (Msg, error) {
	body, err := cobsDecode(frame)
	if err != nil {
		return Msg{}, err
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (Msg, error) {
	if len(body) < 1 {
		return Msg{}, ErrCorruptEncoding
	}
	m := Msg{Kind: Kind(body[0])}
	rest := body[1:]
	var err error

	switch m.Kind {
	case KindReadings:
		var n uint16
		n, rest, err = takeUint16(rest)
		if err != nil {
			return Msg{}, err
		}
		if n > MaxReadingsPerBatch {
			return Msg{}, ErrCorruptEncoding
		}
		m.Readings = make([]reading.Reading, n)
		for i := range m.Readings {
			m.Readings[i], rest, err = takeReading(rest)
			if err != nil {
				return Msg{}, err
			}
		}
	case KindError:
		m.Err, rest, err = takeError(rest)
		if err != nil {
			return Msg{}, err
		}
	case KindAffectorRegister:
		var n uint16
		n, rest, err = takeUint16(rest)
		if err != nil {
			return Msg{}, err
		}
		m.Affected = make([]reading.Affector, n)
		for i := range m.Affected {
			m.Affected[i], rest, err = takeAffector(rest)
			if err != nil {
				return Msg{}, err
			}
		}
	case KindAffectorOrder:
		m.Order, rest, err = takeAffector(rest)
		if err != nil {
			return Msg{}, err
		}
	case KindAffectorControlled:
		m.ControlledBy, rest, err = takeString(rest)
		if err != nil {
			return Msg{}, err
		}
		m.Handled, rest, err = takeAffector(rest)
		if err != nil {
			return Msg{}, err
		}
	default:
		return Msg{}, ErrCorruptEncoding
	}

	if len(rest) != 0 {
		return Msg{}, ErrCorruptEncoding
	}
	return m, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func takeUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, ErrCorruptEncoding
	}
	return binary.LittleEndian.Uint16(b), b[2:], nil
}

func appendFloat32(buf []byte, v float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return append(buf, b[:]...)
}

func takeFloat32(b []byte) (float32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrCorruptEncoding
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), b[4:], nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func takeString(b []byte) (string, []byte, error) {
	n, b, err := takeUint16(b)
	if err != nil {
		return "", nil, err
	}
	if len(b) < int(n) {
		return "", nil, ErrCorruptEncoding
	}
	return string(b[:n]), b[n:], nil
}

func appendReading(buf []byte, r reading.Reading) []byte {
	buf = appendUint16(buf, uint16(r.Kind))
	return appendFloat32(buf, r.Value)
}

func takeReading(b []byte) (reading.Reading, []byte, error) {
	kind, b, err := takeUint16(b)
	if err != nil {
		return reading.Reading{}, nil, err
	}
	if !reading.Kind(kind).Valid() {
		return reading.Reading{}, nil, ErrCorruptEncoding
	}
	val, b, err := takeFloat32(b)
	if err != nil {
		return reading.Reading{}, nil, err
	}
	return reading.Reading{Kind: reading.Kind(kind), Value: val}, b, nil
}

func appendError(buf []byte, e reading.Error) []byte {
	buf = append(buf, byte(e.Device))
	buf = append(buf, byte(e.Cause))
	return appendString(buf, e.Message)
}

func takeError(b []byte) (reading.Error, []byte, error) {
	if len(b) < 2 {
		return reading.Error{}, nil, ErrCorruptEncoding
	}
	device := reading.DeviceID(b[0])
	if !device.Valid() {
		return reading.Error{}, nil, ErrCorruptEncoding
	}
	cause := reading.Cause(b[1])
	msg, b, err := takeString(b[2:])
	if err != nil {
		return reading.Error{}, nil, err
	}
	return reading.Error{Device: device, Cause: cause, Message: msg}, b, nil
}

func appendAffector(buf []byte, a reading.Affector) []byte {
	buf = append(buf, byte(a.Kind))
	buf = append(buf, byte(a.Target))
	return appendFloat32(buf, a.Param)
}

func takeAffector(b []byte) (reading.Affector, []byte, error) {
	if len(b) < 2 {
		return reading.Affector{}, nil, ErrCorruptEncoding
	}
	target := reading.DeviceID(b[1])
	if !target.Valid() {
		return reading.Affector{}, nil, ErrCorruptEncoding
	}
	param, rest, err := takeFloat32(b[2:])
	if err != nil {
		return reading.Affector{}, nil, err
	}
	return reading.Affector{Kind: reading.AffectorKind(b[0]), Target: target, Param: param}, rest, nil
}

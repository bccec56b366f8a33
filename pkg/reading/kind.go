package reading

import (
	"fmt"
	"path"
	"strings"
)

// Kind enumerates every leaf reading variant in the ontology. Two Reading
// values with the same Kind always occupy the same path in the tree; two
// with different Kinds never do, even if they come from the same device
// (Sht31 contributes both KindBedTemperature and KindBedHumidity, which are
// distinct leaves, distinct keys, but the same base path).
type Kind uint16

const (
	KindBedButtonTopLeft Kind = iota
	KindBedButtonTopRight
	KindBedButtonMiddleLeft
	KindBedButtonMiddleRight
	KindBedButtonBottomLeft
	KindBedButtonBottomRight
	KindBedButtonFootLeft
	KindBedButtonFootRight
	KindBedBrightness
	KindBedTemperature
	KindBedHumidity
	KindBedGasResistance
	KindBedPressure
	KindBedCO2
	KindBedWeightLeft
	KindBedWeightRight
	KindBedMassPM1_0
	KindBedMassPM2_5
	KindBedMassPM4_0
	KindBedMassPM10
	KindBedMassPM0_5
	KindBedNumberPM1_0
	KindBedNumberPM2_5
	KindBedNumberPM4_0
	KindBedNumberPM10
	KindBedTypicalParticleSize
	KindDeskTemperature
	KindDeskHumidity
	kindCount
)

// descriptor is the static metadata for one Kind: where it sits in the tree,
// which device produces it, and the physical range/resolution a field codec
// needs to size a bit-packed slot (see pkg/bitspec).
type descriptor struct {
	location    string
	subLocation string
	name        string
	device      DeviceID
	lo, hi      float32
	resolution  float32
	unit        string

	branchLocation    uint8
	branchSubLocation uint8
	branchLeaf        uint8
}

var kindInfo = [kindCount]descriptor{
	KindBedButtonTopLeft:       {"LargeBedroom", "Bed", "ButtonTopLeft", DeviceGpio, 0, 1, 1, "bool", 0, 0, 0},
	KindBedButtonTopRight:      {"LargeBedroom", "Bed", "ButtonTopRight", DeviceGpio, 0, 1, 1, "bool", 0, 0, 1},
	KindBedButtonMiddleLeft:    {"LargeBedroom", "Bed", "ButtonMiddleLeft", DeviceGpio, 0, 1, 1, "bool", 0, 0, 2},
	KindBedButtonMiddleRight:   {"LargeBedroom", "Bed", "ButtonMiddleRight", DeviceGpio, 0, 1, 1, "bool", 0, 0, 3},
	KindBedButtonBottomLeft:    {"LargeBedroom", "Bed", "ButtonBottomLeft", DeviceGpio, 0, 1, 1, "bool", 0, 0, 4},
	KindBedButtonBottomRight:   {"LargeBedroom", "Bed", "ButtonBottomRight", DeviceGpio, 0, 1, 1, "bool", 0, 0, 5},
	KindBedButtonFootLeft:      {"LargeBedroom", "Bed", "ButtonFootLeft", DeviceGpio, 0, 1, 1, "bool", 0, 0, 6},
	KindBedButtonFootRight:     {"LargeBedroom", "Bed", "ButtonFootRight", DeviceGpio, 0, 1, 1, "bool", 0, 0, 7},
	KindBedBrightness:          {"LargeBedroom", "Bed", "Brightness", DeviceMax44, 0, 188000, 1, "lux", 0, 0, 8},
	KindBedTemperature:         {"LargeBedroom", "Bed", "Temperature", DeviceSht31, -40, 125, 0.01, "celsius", 0, 0, 9},
	KindBedHumidity:            {"LargeBedroom", "Bed", "Humidity", DeviceSht31, 0, 100, 0.01, "percent", 0, 0, 10},
	KindBedGasResistance:       {"LargeBedroom", "Bed", "GasResistance", DeviceBme680, 0, 500000, 1, "ohm", 0, 0, 11},
	KindBedPressure:            {"LargeBedroom", "Bed", "Pressure", DeviceBme680, 30000, 110000, 1, "pascal", 0, 0, 12},
	KindBedCO2:                 {"LargeBedroom", "Bed", "Co2", DeviceMhz14, 0, 5000, 1, "ppm", 0, 0, 13},
	KindBedWeightLeft:          {"LargeBedroom", "Bed", "WeightLeft", DeviceNau7802Left, 0, 200, 0.05, "kg", 0, 0, 14},
	KindBedWeightRight:         {"LargeBedroom", "Bed", "WeightRight", DeviceNau7802Right, 0, 200, 0.05, "kg", 0, 0, 15},
	KindBedMassPM1_0:           {"LargeBedroom", "Bed", "MassPm1_0", DeviceSps30, 0, 1000, 0.1, "ug/m3", 0, 0, 16},
	KindBedMassPM2_5:           {"LargeBedroom", "Bed", "MassPm2_5", DeviceSps30, 0, 1000, 0.1, "ug/m3", 0, 0, 17},
	KindBedMassPM4_0:           {"LargeBedroom", "Bed", "MassPm4_0", DeviceSps30, 0, 1000, 0.1, "ug/m3", 0, 0, 18},
	KindBedMassPM10:            {"LargeBedroom", "Bed", "MassPm10", DeviceSps30, 0, 1000, 0.1, "ug/m3", 0, 0, 19},
	KindBedMassPM0_5:           {"LargeBedroom", "Bed", "MassPm0_5", DeviceSps30, 0, 1000, 0.1, "ug/m3", 0, 0, 20},
	KindBedNumberPM1_0:         {"LargeBedroom", "Bed", "NumberPm1_0", DeviceSps30, 0, 3000, 1, "count/cm3", 0, 0, 21},
	KindBedNumberPM2_5:         {"LargeBedroom", "Bed", "NumberPm2_5", DeviceSps30, 0, 3000, 1, "count/cm3", 0, 0, 22},
	KindBedNumberPM4_0:         {"LargeBedroom", "Bed", "NumberPm4_0", DeviceSps30, 0, 3000, 1, "count/cm3", 0, 0, 23},
	KindBedNumberPM10:          {"LargeBedroom", "Bed", "NumberPm10", DeviceSps30, 0, 3000, 1, "count/cm3", 0, 0, 24},
	KindBedTypicalParticleSize: {"LargeBedroom", "Bed", "TypicalParticleSize", DeviceSps30, 0, 10, 0.01, "um", 0, 0, 25},
	KindDeskTemperature:        {"LargeBedroom", "Desk", "Temperature", DeviceSht31, -40, 125, 0.01, "celsius", 0, 1, 0},
	KindDeskHumidity:           {"LargeBedroom", "Desk", "Humidity", DeviceSht31, 0, 100, 0.01, "percent", 0, 1, 1},
}

func (k Kind) Valid() bool { return k < kindCount }

// Device returns the device that produces readings of this kind.
func (k Kind) Device() DeviceID { return kindInfo[k].device }

// Range returns the inclusive [lo, hi] bound a value of this kind must fall
// within. Values outside this range are clamped by pkg/bitspec when encoded.
func (k Kind) Range() (lo, hi float32) {
	d := kindInfo[k]
	return d.lo, d.hi
}

// Resolution is the smallest distinguishable step within Range.
func (k Kind) Resolution() float32 { return kindInfo[k].resolution }

func (k Kind) Unit() string { return kindInfo[k].unit }

// Name is the bare reading variant name, e.g. "Temperature".
func (k Kind) Name() string { return kindInfo[k].name }

// Key returns the 6-byte root-to-leaf branch-id path. Two readings that
// share a root-to-leaf path always have equal keys; two that don't, never
// do, regardless of the device they share.
func (k Kind) Key() [6]byte {
	d := kindInfo[k]
	return [6]byte{d.branchLocation, d.branchSubLocation, d.branchLeaf, 0, 0, 0}
}

// BasePath returns the lower-cased, '/'-joined directory a reading's series
// lives under, derived by walking the tree down to (and naming) the device
// at the leaf -- not the reading variant itself. Readings that share a
// device share a base path.
func (k Kind) BasePath() string {
	d := kindInfo[k]
	return path.Join(
		strings.ToLower(d.location),
		strings.ToLower(d.subLocation),
		d.device.Info().Name,
	)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
	d := kindInfo[k]
	return fmt.Sprintf("%s/%s/%s", d.location, d.subLocation, d.name)
}

// KindsForDevice returns every Kind a device produces, in Key order -- the
// order pkg/series uses to size and address a device's line buffer.
func KindsForDevice(d DeviceID) []Kind {
	return d.Info().AffectsReadings
}

// AllKinds returns every defined Kind, in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

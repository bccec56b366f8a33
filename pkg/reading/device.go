// Package reading implements the reading/device/affector ontology: a small,
// fixed tree of locations, devices, and the readings/actuators they support.
// It is the Go-native equivalent of the tagged "Tomato" tree in the original
// firmware's protocol crate, generalized enough to grow new locations without
// touching the wire codec or the series store.
package reading

import "time"

// DeviceID identifies one physical sensor or actuator board.
type DeviceID uint8

const (
	DeviceSht31 DeviceID = iota
	DeviceBme680
	DeviceMax44
	DeviceMhz14
	DeviceSps30
	DeviceNau7802Left
	DeviceNau7802Right
	DeviceGpio
	deviceCount
)

// DeviceInfo describes a device's identity and sampling characteristics.
// TemporalResolution is the smallest meaningful gap between two samples;
// it drives the scale factor used when a series stores elapsed time as an
// integer count rather than raw milliseconds (see pkg/series).
type DeviceInfo struct {
	Name               string
	AffectsReadings    []Kind
	MinSampleInterval  time.Duration
	MaxSampleInterval  time.Duration
	TemporalResolution time.Duration
}

var deviceInfo = [deviceCount]DeviceInfo{
	DeviceSht31: {
		Name:               "sht31",
		MinSampleInterval:  time.Second,
		MaxSampleInterval:  time.Minute,
		TemporalResolution: time.Second,
	},
	DeviceBme680: {
		Name:               "bme680",
		MinSampleInterval:  time.Second,
		MaxSampleInterval:  time.Minute,
		TemporalResolution: time.Second,
	},
	DeviceMax44: {
		Name:               "max44",
		MinSampleInterval:  time.Second,
		MaxSampleInterval:  10 * time.Minute,
		TemporalResolution: time.Second,
	},
	DeviceMhz14: {
		Name:               "mhz14",
		MinSampleInterval:  2 * time.Second,
		MaxSampleInterval:  time.Minute,
		TemporalResolution: time.Second,
	},
	DeviceSps30: {
		Name:               "sps30",
		MinSampleInterval:  time.Second,
		MaxSampleInterval:  time.Minute,
		TemporalResolution: time.Second,
	},
	DeviceNau7802Left: {
		Name:               "nau7802_left",
		MinSampleInterval:  100 * time.Millisecond,
		MaxSampleInterval:  10 * time.Second,
		TemporalResolution: 100 * time.Millisecond,
	},
	DeviceNau7802Right: {
		Name:               "nau7802_right",
		MinSampleInterval:  100 * time.Millisecond,
		MaxSampleInterval:  10 * time.Second,
		TemporalResolution: 100 * time.Millisecond,
	},
	DeviceGpio: {
		Name:               "gpio",
		MinSampleInterval:  10 * time.Millisecond,
		MaxSampleInterval:  time.Hour,
		TemporalResolution: 10 * time.Millisecond,
	},
}

func init() {
	// Populate AffectsReadings from the Kind table so the two are never
	// maintained by hand in two places.
	for k := Kind(0); k < kindCount; k++ {
		d := kindInfo[k].device
		deviceInfo[d].AffectsReadings = append(deviceInfo[d].AffectsReadings, k)
	}
}

// Info returns the static descriptor for this device. Panics on an
// out-of-range DeviceID, which can only happen from a corrupt wire message;
// callers that decode untrusted bytes must bounds-check first (see pkg/wire).
func (d DeviceID) Info() DeviceInfo {
	return deviceInfo[d]
}

func (d DeviceID) Valid() bool {
	return d < deviceCount
}

// BrokenReadings reports which readings an Error on this device implicitly
// invalidates. A device report of "running"/"setup"/"timeout" trouble taints
// every reading the device produces until a fresh sample clears it.
func (d DeviceID) BrokenReadings() []Kind {
	return deviceInfo[d].AffectsReadings
}

package reading

import "fmt"

// Reading is one sampled value: a Kind (which fixes its place in the tree,
// its device, its range and resolution) and the value itself.
type Reading struct {
	Kind  Kind
	Value float32
}

// IsSameAs reports whether two readings occupy the same leaf, ignoring
// their values. Used by the series store to match an incoming reading to
// the field it updates.
func (r Reading) IsSameAs(other Reading) bool {
	return r.Kind == other.Kind
}

func (r Reading) String() string {
	return fmt.Sprintf("%s=%v%s", r.Kind, r.Value, r.Kind.Unit())
}

// Cause enumerates why a device reported trouble.
type Cause uint8

const (
	CauseRunning Cause = iota
	CauseSetup
	CauseSetupTimedOut
	CauseTimeout
)

func (c Cause) String() string {
	switch c {
	case CauseRunning:
		return "running"
	case CauseSetup:
		return "setup"
	case CauseSetupTimedOut:
		return "setup_timed_out"
	case CauseTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error reports trouble with one device. Message is only meaningful for
// CauseRunning/CauseSetup (a driver-reported string); CauseSetupTimedOut and
// CauseTimeout carry no message.
type Error struct {
	Device  DeviceID
	Cause   Cause
	Message string
}

// BrokenReadings names every reading this error implicitly invalidates: all
// readings the device produces, until a fresh sample for each clears it.
func (e Error) BrokenReadings() []Kind {
	return e.Device.BrokenReadings()
}

func (e Error) String() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Device.Info().Name, e.Cause, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Device.Info().Name, e.Cause)
}

// AffectorKind enumerates the actuator commands a node accepts.
type AffectorKind uint8

const (
	AffectorCleanSensor AffectorKind = iota
	AffectorCalibrateCO2
)

func (a AffectorKind) String() string {
	switch a {
	case AffectorCleanSensor:
		return "clean_sensor"
	case AffectorCalibrateCO2:
		return "calibrate_co2"
	default:
		return "unknown"
	}
}

// Affector is a command for one device: which actuator to run, and an
// optional parameter (e.g. the calibration target concentration, in ppm,
// for AffectorCalibrateCO2; unused for AffectorCleanSensor).
type Affector struct {
	Kind   AffectorKind
	Target DeviceID
	Param  float32
}

// IsSameAs compares kind and target only, ignoring Param -- used by the
// affector registry to match an order or an update against the controls a
// node has registered.
func (a Affector) IsSameAs(other Affector) bool {
	return a.Kind == other.Kind && a.Target == other.Target
}

func (a Affector) String() string {
	return fmt.Sprintf("%s(%s, %v)", a.Kind, a.Target.Info().Name, a.Param)
}

package reading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadingPathIsExpected(t *testing.T) {
	require.Equal(t, "largebedroom/bed/sht31", KindBedTemperature.BasePath())
}

func TestReadingsFromSameDeviceHaveSamePath(t *testing.T) {
	require.Equal(t, KindBedTemperature.BasePath(), KindBedHumidity.BasePath())
}

func TestReadingPathDifferentBetweenSubLocations(t *testing.T) {
	require.NotEqual(t, KindBedTemperature.BasePath(), KindDeskTemperature.BasePath())
}

func TestKeyUniquePerLeaf(t *testing.T) {
	seen := map[[6]byte]Kind{}
	for _, k := range AllKinds() {
		key := k.Key()
		if other, ok := seen[key]; ok {
			t.Fatalf("key collision between %s and %s", k, other)
		}
		seen[key] = k
	}
}

func TestKeyIdenticalForSameKind(t *testing.T) {
	require.Equal(t, KindBedTemperature.Key(), KindBedTemperature.Key())
}

func TestDeviceBrokenReadingsIncludesAllItsKinds(t *testing.T) {
	broken := DeviceSht31.BrokenReadings()
	require.Contains(t, broken, KindBedTemperature)
	require.Contains(t, broken, KindBedHumidity)
	require.Contains(t, broken, KindDeskTemperature)
	require.Contains(t, broken, KindDeskHumidity)
}

func TestErrorBrokenReadingsDelegatesToDevice(t *testing.T) {
	err := Error{Device: DeviceMhz14, Cause: CauseTimeout}
	require.Equal(t, DeviceMhz14.BrokenReadings(), err.BrokenReadings())
}

func TestAffectorIsSameAsIgnoresParam(t *testing.T) {
	a := Affector{Kind: AffectorCalibrateCO2, Target: DeviceMhz14, Param: 400}
	b := Affector{Kind: AffectorCalibrateCO2, Target: DeviceMhz14, Param: 420}
	require.True(t, a.IsSameAs(b))

	c := Affector{Kind: AffectorCleanSensor, Target: DeviceMhz14}
	require.False(t, a.IsSameAs(c))
}

func TestReadingIsSameAsIgnoresValue(t *testing.T) {
	a := Reading{Kind: KindBedTemperature, Value: 21.5}
	b := Reading{Kind: KindBedTemperature, Value: 22.0}
	require.True(t, a.IsSameAs(b))

	c := Reading{Kind: KindBedHumidity, Value: 21.5}
	require.False(t, a.IsSameAs(c))
}

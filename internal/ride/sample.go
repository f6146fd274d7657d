package ride

import (
	"fmt"
	"time"
)

// Sample is one reading from the telemetry source.
type Sample struct {
	PowerWatts   int
	CadenceRpm   int
	HeartRateBpm int // 0 when no monitor is paired
	SpeedKmh     float64
	GradePercent float64
	Timestamp    time.Time
}

// ZoneMetric selects which sample field a TargetZone is compared against
type ZoneMetric int

const (
	ZoneMetricPower ZoneMetric = iota
	ZoneMetricHeartRate
)

func (m ZoneMetric) String() string {
	switch m {
	case ZoneMetricPower:
		return "power"
	case ZoneMetricHeartRate:
		return "heart_rate"
	default:
		return "unknown"
	}
}

// ParseZoneMetric maps a config string to a ZoneMetric
func ParseZoneMetric(s string) (ZoneMetric, error) {
	switch s {
	case "power", "watts", "":
		return ZoneMetricPower, nil
	case "heart_rate", "hr", "heartrate":
		return ZoneMetricHeartRate, nil
	default:
		return ZoneMetricPower, fmt.Errorf("unknown zone metric %q", s)
	}
}

// TargetZone is the band the rider tries to hold. A zero-width zone is legal.
type TargetZone struct {
	Min    float64
	Max    float64
	Metric ZoneMetric
}

func NewTargetZone(min, max float64, metric ZoneMetric) (TargetZone, error) {
	z := TargetZone{Min: min, Max: max, Metric: metric}
	if err := z.Validate(); err != nil {
		return TargetZone{}, err
	}
	return z, nil
}

func (z TargetZone) Validate() error {
	if z.Min > z.Max {
		return fmt.Errorf("target zone min %.1f exceeds max %.1f", z.Min, z.Max)
	}
	return nil
}

// Value picks the sample field this zone tracks.
func (z TargetZone) Value(s Sample) float64 {
	if z.Metric == ZoneMetricHeartRate {
		return float64(s.HeartRateBpm)
	}
	return float64(s.PowerWatts)
}

func (z TargetZone) Unit() string {
	if z.Metric == ZoneMetricHeartRate {
		return "bpm"
	}
	return "W"
}

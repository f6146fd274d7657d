package recorder

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type rideStats struct {
	timerSeconds   float64
	elapsedSeconds float64
	avgPower       float64
	maxPower       float64
	avgHeartRate   float64
	maxHeartRate   float64
	avgCadence     float64
	maxCadence     float64
	avgSpeedMps    float64
	maxSpeedMps    float64
}

// computeStats summarizes recorded points. Each point stands for one sample
// interval of riding, so the timer never includes paused time; elapsed adds it
// back. Heart rate and cadence averages ignore zero readings, which mean
// "no sensor" rather than "stopped".
func computeStats(points []point, sampleInterval, paused time.Duration) rideStats {
	if len(points) == 0 {
		return rideStats{}
	}
	power := make([]float64, len(points))
	speed := make([]float64, len(points))
	var hr, cadence []float64
	for i, p := range points {
		power[i] = float64(p.sample.PowerWatts)
		speed[i] = p.sample.SpeedKmh / 3.6
		if p.sample.HeartRateBpm > 0 {
			hr = append(hr, float64(p.sample.HeartRateBpm))
		}
		if p.sample.CadenceRpm > 0 {
			cadence = append(cadence, float64(p.sample.CadenceRpm))
		}
	}

	timer := (time.Duration(len(points)) * sampleInterval).Seconds()

	s := rideStats{
		timerSeconds:   timer,
		elapsedSeconds: timer + paused.Seconds(),
		avgPower:       stat.Mean(power, nil),
		maxPower:       floats.Max(power),
		avgSpeedMps:    stat.Mean(speed, nil),
		maxSpeedMps:    floats.Max(speed),
	}
	if len(hr) > 0 {
		s.avgHeartRate = stat.Mean(hr, nil)
		s.maxHeartRate = floats.Max(hr)
	}
	if len(cadence) > 0 {
		s.avgCadence = stat.Mean(cadence, nil)
		s.maxCadence = floats.Max(cadence)
	}
	return s
}

package ride

import (
	"sync"
	"time"
)

// Readout is everything the overlay needs to draw one frame.
type Readout struct {
	Sample  Sample
	Zone    TargetZone
	Active  bool
	Drift   DriftResult
	Streak  StreakState
	Metrics Metrics
}

// Pipeline turns the latest sample and frame delta into a Readout.
// Streak distance accrues on every frame; ride totals only while recording.
type Pipeline struct {
	mu      sync.Mutex
	zone    TargetZone
	streak  *StreakTracker
	metrics *RideMetrics
}

func NewPipeline(zone TargetZone, streak *StreakTracker, metrics *RideMetrics) *Pipeline {
	if streak == nil {
		panic("Pipeline: streak tracker cannot be nil")
	}
	if metrics == nil {
		panic("Pipeline: ride metrics cannot be nil")
	}
	return &Pipeline{zone: zone, streak: streak, metrics: metrics}
}

func (p *Pipeline) Zone() TargetZone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zone
}

func (p *Pipeline) SetZone(zone TargetZone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.zone = zone
	p.mu.Unlock()
	return nil
}

// ResetStreak starts a fresh streak for a new ride. The best is kept.
func (p *Pipeline) ResetStreak() StreakState {
	return p.streak.Reset()
}

// Step folds one frame into the readout. frameDelta is the clamped animation
// delta that moves the streak; rideDelta is the wall-clock time since the last
// frame and advances ride totals, so a hidden or stalled overlay loses no time.
func (p *Pipeline) Step(sample Sample, frameDelta, rideDelta time.Duration, recording bool) Readout {
	zone := p.Zone()

	active := IsActive(sample.PowerWatts, sample.CadenceRpm)
	drift := Evaluate(zone.Value(sample), zone, active)

	var delta float64
	if frameDelta > 0 && sample.SpeedKmh > 0 {
		delta = DistanceMeters(sample.SpeedKmh, frameDelta)
	}
	streak := p.streak.Update(drift.State, delta)

	var metrics Metrics
	if recording {
		metrics = p.metrics.Advance(sample.SpeedKmh, rideDelta)
	} else {
		metrics = p.metrics.Snapshot()
	}

	return Readout{
		Sample:  sample,
		Zone:    zone,
		Active:  active,
		Drift:   drift,
		Streak:  streak,
		Metrics: metrics,
	}
}

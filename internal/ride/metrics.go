package ride

import (
	"sync"
	"time"
)

// Metrics holds totals for the current ride.
type Metrics struct {
	DistanceMeters float64
	Elapsed        time.Duration
}

// RideMetrics is advanced by the frame tick while a recording is live.
type RideMetrics struct {
	mu      sync.RWMutex
	metrics Metrics
}

func NewRideMetrics() *RideMetrics {
	return &RideMetrics{}
}

// Advance adds dt of riding at speedKmh. Non-positive dt is ignored.
func (r *RideMetrics) Advance(speedKmh float64, dt time.Duration) Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dt <= 0 {
		return r.metrics
	}
	if speedKmh > 0 {
		r.metrics.DistanceMeters += DistanceMeters(speedKmh, dt)
	}
	r.metrics.Elapsed += dt
	return r.metrics
}

func (r *RideMetrics) Reset() {
	r.mu.Lock()
	r.metrics = Metrics{}
	r.mu.Unlock()
}

func (r *RideMetrics) Snapshot() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// DistanceMeters converts a speed held for dt into meters.
func DistanceMeters(speedKmh float64, dt time.Duration) float64 {
	return speedKmh / 3.6 * dt.Seconds()
}

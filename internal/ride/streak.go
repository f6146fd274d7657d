package ride

import "sync"

// StreakState is the running on-road distance. Best only ever grows.
type StreakState struct {
	CurrentMeters float64
	BestMeters    float64
	IsActive      bool
}

func InitialStreak() StreakState {
	return StreakState{IsActive: true}
}

// UpdateStreak folds one drift evaluation into the streak.
// A negative distanceDelta is not rejected and will shrink the current streak.
func UpdateStreak(prev StreakState, state DriftState, distanceDelta float64) StreakState {
	switch {
	case state == DriftOffRoad:
		return StreakState{CurrentMeters: 0, BestMeters: prev.BestMeters, IsActive: false}
	case state == DriftWaiting:
		return prev
	}
	current := prev.CurrentMeters + distanceDelta
	best := prev.BestMeters
	if current > best {
		best = current
	}
	return StreakState{CurrentMeters: current, BestMeters: best, IsActive: true}
}

// StreakTracker owns the process-wide streak.
type StreakTracker struct {
	mu    sync.RWMutex
	state StreakState
}

func NewStreakTracker() *StreakTracker {
	return &StreakTracker{state: InitialStreak()}
}

func (t *StreakTracker) Update(state DriftState, distanceDelta float64) StreakState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = UpdateStreak(t.state, state, distanceDelta)
	return t.state
}

func (t *StreakTracker) State() StreakState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Reset clears the current streak but keeps the best.
func (t *StreakTracker) Reset() StreakState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StreakState{BestMeters: t.state.BestMeters, IsActive: true}
	return t.state
}

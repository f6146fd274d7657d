package animation

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxFrameDelta   = 100 * time.Millisecond
	DefaultHoverLeaveDelay = 200 * time.Millisecond
	DefaultHoverOffset     = 65.0
	EaseFactor             = 0.15
	SettleThreshold        = 0.5
)

// WindowPositioner moves the host surface. Calls are best effort.
type WindowPositioner interface {
	SetVerticalOffset(pixels int)
}

type Config struct {
	// TrackWidth is the width, in pixels or cells, that represents one kilometre.
	TrackWidth      float64
	HoverOffset     float64
	MaxFrameDelta   time.Duration
	HoverLeaveDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxFrameDelta <= 0 {
		c.MaxFrameDelta = DefaultMaxFrameDelta
	}
	if c.HoverLeaveDelay <= 0 {
		c.HoverLeaveDelay = DefaultHoverLeaveDelay
	}
	return c
}

// FrameState is what the renderer reads after each tick.
type FrameState struct {
	PositionX     float64
	LastTimestamp time.Time     // zero when unset
	Delta         time.Duration // clamped time covered by the last tick
	WindowOffsetY float64
	WindowTargetY float64
}

// Scheduler advances the rider and eases the window offset once per tick.
type Scheduler struct {
	mu         sync.Mutex
	cfg        Config
	clock      Clock
	positioner WindowPositioner
	logger     *log.Logger

	state      FrameState
	speedKmh   float64
	visible    bool
	leaveTimer Timer
	leaveGen   uint64 // bumps on every hover change; stale timers compare against it
	closed     bool
}

func NewScheduler(cfg Config, clock Clock, positioner WindowPositioner, logger *log.Logger) *Scheduler {
	if clock == nil {
		panic("Scheduler: clock cannot be nil")
	}
	if positioner == nil {
		panic("Scheduler: positioner cannot be nil")
	}
	if logger == nil {
		panic("Scheduler: logger cannot be nil")
	}
	return &Scheduler{
		cfg:        cfg.withDefaults(),
		clock:      clock,
		positioner: positioner,
		logger:     logger,
		visible:    true,
	}
}

// AdvancePosition moves x along a track of the given width at speedKmh for dt.
// The result wraps by subtracting width so overflow is kept, and is never negative.
func AdvancePosition(x, speedKmh, width float64, dt time.Duration) float64 {
	if width <= 0 {
		return x
	}
	x += (speedKmh / 3600) * width * dt.Seconds()
	for x >= width {
		x -= width
	}
	if x < 0 {
		x = 0
	}
	return x
}

func (s *Scheduler) SetSpeed(speedKmh float64) {
	s.mu.Lock()
	s.speedKmh = speedKmh
	s.mu.Unlock()
}

func (s *Scheduler) SetTrackWidth(width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.cfg.TrackWidth {
		return
	}
	s.cfg.TrackWidth = width
	if width > 0 && s.state.PositionX >= width {
		s.state.PositionX = math.Mod(s.state.PositionX, width)
	}
}

func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()
}

func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// HoverEnter raises the window target at once and drops any pending leave.
func (s *Scheduler) HoverEnter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelLeaveLocked()
	s.state.WindowTargetY = s.cfg.HoverOffset
}

// HoverLeave lowers the target after HoverLeaveDelay unless HoverEnter comes first.
func (s *Scheduler) HoverLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelLeaveLocked()
	gen := s.leaveGen
	s.leaveTimer = s.clock.AfterFunc(s.cfg.HoverLeaveDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.leaveGen {
			return
		}
		s.state.WindowTargetY = 0
		s.leaveTimer = nil
	})
}

func (s *Scheduler) cancelLeaveLocked() {
	s.leaveGen++
	if s.leaveTimer != nil {
		s.leaveTimer.Stop()
		s.leaveTimer = nil
	}
}

// Tick runs one frame at now. It tolerates a missing previous timestamp,
// irregular spacing and clocks that step backwards.
func (s *Scheduler) Tick(now time.Time) FrameState {
	s.mu.Lock()
	if s.closed {
		state := s.state
		s.mu.Unlock()
		return state
	}
	if !s.visible {
		s.state.LastTimestamp = time.Time{}
		s.state.Delta = 0
		state := s.state
		s.mu.Unlock()
		return state
	}

	var dt time.Duration
	if !s.state.LastTimestamp.IsZero() {
		dt = now.Sub(s.state.LastTimestamp)
		if dt < 0 {
			dt = 0
		}
		if dt > s.cfg.MaxFrameDelta {
			dt = s.cfg.MaxFrameDelta
		}
	}
	s.state.LastTimestamp = now
	s.state.Delta = dt
	s.state.PositionX = AdvancePosition(s.state.PositionX, s.speedKmh, s.cfg.TrackWidth, dt)

	emit := false
	if diff := s.state.WindowTargetY - s.state.WindowOffsetY; math.Abs(diff) > SettleThreshold {
		s.state.WindowOffsetY += diff * EaseFactor
		emit = true
	}
	state := s.state
	s.mu.Unlock()

	if emit {
		s.positioner.SetVerticalOffset(int(math.Round(state.WindowOffsetY)))
	}
	return state
}

func (s *Scheduler) State() FrameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close cancels pending hover timers. Later ticks and timer callbacks do nothing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelLeaveLocked()
}

// Run ticks every interval until ctx is done, handing each frame to onFrame.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, onFrame func(FrameState)) {
	defer s.Close()
	defer s.logger.Printf("Scheduler: frame loop exiting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := s.Tick(s.clock.Now())
			if onFrame != nil {
				onFrame(frame)
			}
		}
	}
}

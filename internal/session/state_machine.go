package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRecording:
		return "Recording"
	case StatePaused:
		return "Paused"
	case StateConfirming:
		return "Confirming"
	default:
		return "Unknown"
	}
}

type Command int

const (
	CmdStart Command = iota
	CmdPause
	CmdResume
	CmdRequestStop
	CmdConfirmStop
	CmdCancelStop
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdRequestStop:
		return "stop"
	case CmdConfirmStop:
		return "confirm"
	case CmdCancelStop:
		return "cancel"
	default:
		return "unknown"
	}
}

// effect is the single recorder call a transition makes.
type effect int

const (
	effectNone effect = iota
	effectStart
	effectPause
	effectResume
	effectStop
	// effectCancelStop resumes the recorder when the stop was requested while paused.
	effectCancelStop
)

type transition struct {
	to     State
	effect effect
}

// transitions lists every legal (state, command) pair. Anything missing is ignored.
var transitions = map[State]map[Command]transition{
	StateIdle: {
		CmdStart: {to: StateRecording, effect: effectStart},
	},
	StateRecording: {
		CmdPause:       {to: StatePaused, effect: effectPause},
		CmdRequestStop: {to: StateConfirming, effect: effectNone},
	},
	StatePaused: {
		CmdResume:      {to: StateRecording, effect: effectResume},
		CmdRequestStop: {to: StateConfirming, effect: effectNone},
	},
	StateConfirming: {
		CmdConfirmStop: {to: StateIdle, effect: effectStop},
		CmdCancelStop:  {to: StateRecording, effect: effectCancelStop},
	},
}

// RecordingSession is a copy of the machine's state handed to listeners.
type RecordingSession struct {
	ID          string
	State       State
	SampleCount int
	StartedAt   time.Time
}

// Result describes what a Dispatch did.
type Result struct {
	Session RecordingSession
	Applied bool
	Summary *WorkoutSummary
}

// Machine serializes recording commands. Each transition runs under one mutex,
// recorder call included, so commands never interleave.
type Machine struct {
	mu           sync.Mutex
	recorder     WorkoutRecorder
	metrics      *ride.RideMetrics
	session      RecordingSession
	stopFrom     State // state RequestStop was issued from
	now          func() time.Time
	sessionEvent *events.ChannelEvent[RecordingSession]
	savedEvent   *events.ChannelEvent[WorkoutSummary]
	logger       *log.Logger
}

func NewMachine(recorder WorkoutRecorder, metrics *ride.RideMetrics, logger *log.Logger) *Machine {
	if recorder == nil {
		panic("Machine: recorder cannot be nil")
	}
	if metrics == nil {
		panic("Machine: metrics cannot be nil")
	}
	if logger == nil {
		panic("Machine: logger cannot be nil")
	}
	return &Machine{
		recorder:     recorder,
		metrics:      metrics,
		session:      RecordingSession{State: StateIdle},
		now:          time.Now,
		sessionEvent: events.NewChannelEvent[RecordingSession](true),
		savedEvent:   events.NewChannelEvent[WorkoutSummary](false),
		logger:       logger,
	}
}

// ListenToSession registers a channel for session changes.
// Returns a deregistration function that can be called to remove the listener
func (m *Machine) ListenToSession(ch chan<- RecordingSession) func() {
	return m.sessionEvent.Listen(ch)
}

// ListenToSaved registers a channel that receives every successfully saved workout.
func (m *Machine) ListenToSaved(ch chan<- WorkoutSummary) func() {
	return m.savedEvent.Listen(ch)
}

func (m *Machine) Session() RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Machine) State() State {
	return m.Session().State
}

// IsRecording reports whether ride totals should advance.
func (m *Machine) IsRecording() bool {
	return m.State() == StateRecording
}

// Dispatch applies cmd. Commands that are not legal in the current state
// return a Result with Applied false and no error.
func (m *Machine) Dispatch(cmd Command) (Result, error) {
	res, err := m.apply(cmd)
	// Notify outside the lock
	if res.Applied {
		m.sessionEvent.Notify(res.Session)
	}
	if res.Summary != nil {
		m.savedEvent.Notify(*res.Summary)
	}
	return res, err
}

func (m *Machine) apply(cmd Command) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.session.State
	t, ok := transitions[from][cmd]
	if !ok {
		return Result{Session: m.session}, nil
	}

	var summary *WorkoutSummary
	switch t.effect {
	case effectStart:
		startedAt := m.now()
		if err := m.recorder.Start(startedAt); err != nil {
			m.logger.Printf("Machine: recorder start failed: %v", err)
			return Result{Session: m.session}, fmt.Errorf("%w: start: %w", ErrRecorder, err)
		}
		m.metrics.Reset()
		m.session = RecordingSession{
			ID:        uuid.NewString(),
			StartedAt: startedAt,
		}
	case effectPause, effectResume:
		if err := m.recorder.Pause(t.effect == effectPause); err != nil {
			m.logger.Printf("Machine: recorder %v failed: %v", cmd, err)
			return Result{Session: m.session}, fmt.Errorf("%w: %v: %w", ErrRecorder, cmd, err)
		}
	case effectCancelStop:
		if m.stopFrom == StatePaused {
			if err := m.recorder.Pause(false); err != nil {
				m.logger.Printf("Machine: recorder resume on cancel failed, staying in %v: %v", from, err)
				return Result{Session: m.session}, fmt.Errorf("%w: %v: %w", ErrRecorder, cmd, err)
			}
		}
	case effectStop:
		s, err := m.recorder.Stop()
		if err != nil {
			m.logger.Printf("Machine: saving workout failed, staying in %v: %v", from, err)
			return Result{Session: m.session}, fmt.Errorf("%w: %w", ErrRecorderPersistence, err)
		}
		s.SessionID = m.session.ID
		if s.StartedAt.IsZero() {
			s.StartedAt = m.session.StartedAt
		}
		summary = &s
	}

	if t.to == StateConfirming {
		m.stopFrom = from
	}
	if t.to == StateIdle {
		m.session = RecordingSession{State: StateIdle}
	} else {
		m.session.State = t.to
	}
	m.logger.Printf("Machine: %v --%v--> %v", from, cmd, t.to)
	return Result{Session: m.session, Applied: true, Summary: summary}, nil
}

// RecordSample forwards one sample to the recorder if the session is recording.
// Returns true when the sample was accepted.
func (m *Machine) RecordSample(sample ride.Sample) (bool, error) {
	m.mu.Lock()
	if m.session.State != StateRecording {
		m.mu.Unlock()
		return false, nil
	}
	if err := m.recorder.AddSample(sample); err != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: add sample: %w", ErrRecorder, err)
	}
	m.session.SampleCount++
	snapshot := m.session
	m.mu.Unlock()

	m.sessionEvent.Notify(snapshot)
	return true, nil
}

func (m *Machine) StartRecording() error {
	_, err := m.Dispatch(CmdStart)
	return err
}

func (m *Machine) PauseRecording() error {
	_, err := m.Dispatch(CmdPause)
	return err
}

func (m *Machine) ResumeRecording() error {
	_, err := m.Dispatch(CmdResume)
	return err
}

func (m *Machine) RequestStop() {
	_, _ = m.Dispatch(CmdRequestStop)
}

// ConfirmStop finalizes the recording. ok is false when there was nothing to confirm.
func (m *Machine) ConfirmStop() (summary WorkoutSummary, ok bool, err error) {
	res, err := m.Dispatch(CmdConfirmStop)
	if err != nil || res.Summary == nil {
		return WorkoutSummary{}, false, err
	}
	return *res.Summary, true, nil
}

// CancelStop returns to Recording. A stop requested while paused resumes the recorder.
func (m *Machine) CancelStop() error {
	_, err := m.Dispatch(CmdCancelStop)
	return err
}

package session

import (
	"errors"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

var (
	// ErrRecorderPersistence wraps a failed WorkoutRecorder.Stop. The session stays in Confirming.
	ErrRecorderPersistence = errors.New("workout could not be saved")
	// ErrRecorder wraps failures from Start and Pause. The session state is unchanged.
	ErrRecorder = errors.New("workout recorder failed")
)

// WorkoutRecorder persists the samples of one ride.
type WorkoutRecorder interface {
	Start(startedAt time.Time) error
	Pause(paused bool) error
	AddSample(sample ride.Sample) error
	Stop() (WorkoutSummary, error)
}

// WorkoutSummary is returned once a ride has been written out.
type WorkoutSummary struct {
	SessionID       string
	StartedAt       time.Time
	DurationSeconds int
	PausedSeconds   int
	DistanceKm      float64
	AvgPower        int
	MaxPower        int
	AvgHeartRate    int
	MaxHeartRate    int
	AvgCadence      int
	SampleCount     int
	FilePath        string
}

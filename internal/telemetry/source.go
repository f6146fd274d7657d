package telemetry

import (
	"context"
	"errors"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

var (
	// ErrNoSample means the source has nothing new to report yet.
	ErrNoSample = errors.New("no sample available")
	// ErrSourceDisconnected means the source lost its device.
	ErrSourceDisconnected = errors.New("source disconnected")
)

// Source produces riding telemetry. Hardware and simulated sources both
// satisfy it so nothing downstream needs to know which one is live.
type Source interface {
	Name() string
	// FindDevice reports whether a device is available. It never returns an error.
	FindDevice(ctx context.Context) bool
	Connect(ctx context.Context) error
	Disconnect()
	// PollSample returns the current reading, or ErrNoSample.
	PollSample(ctx context.Context) (ride.Sample, error)
}

type Mode int

const (
	ModeDisconnected Mode = iota
	ModeHardware
	ModeSimulated
)

func (m Mode) String() string {
	switch m {
	case ModeHardware:
		return "Hardware"
	case ModeSimulated:
		return "Simulated"
	default:
		return "Disconnected"
	}
}

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

func newMockHardware(t *testing.T, cfg HardwareConfig) (*HardwareSource, []*bt.MockBTDevice) {
	t.Helper()
	devices := bt.DefaultMockDevices(testLogger())
	manager := bt.NewMockBTManager(testLogger(), 10*time.Millisecond, devices...)
	t.Cleanup(manager.Shutdown)
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 100 * time.Millisecond
	}
	return NewHardwareSource(manager, cfg, testLogger()), devices
}

func TestHardwareSource_StreamsTrainerData(t *testing.T) {
	h, devices := newMockHardware(t, HardwareConfig{})
	ctx := context.Background()

	require.True(t, h.FindDevice(ctx))
	assert.Equal(t, "Mock Smart Trainer", h.Name())

	_, err := h.PollSample(ctx)
	assert.ErrorIs(t, err, ErrSourceDisconnected)

	require.NoError(t, h.Connect(ctx))

	var sample ride.Sample
	require.Eventually(t, func() bool {
		sample, err = h.PollSample(ctx)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 150, sample.PowerWatts)
	assert.Equal(t, 85, sample.CadenceRpm)
	assert.InDelta(t, 30.0, sample.SpeedKmh, 0.01)
	assert.Equal(t, 140, sample.HeartRateBpm)

	// the strap wins over the trainer's own heart rate
	devices[0].SetReadings(bt.MockReadings{HeartRate: 162})
	assert.Eventually(t, func() bool {
		s, err := h.PollSample(ctx)
		return err == nil && s.HeartRateBpm == 162
	}, time.Second, 10*time.Millisecond)

	h.Disconnect()
	_, err = h.PollSample(ctx)
	assert.ErrorIs(t, err, ErrSourceDisconnected)
}

func TestHardwareSource_NameFilter(t *testing.T) {
	h, _ := newMockHardware(t, HardwareConfig{DeviceName: "kickr"})
	assert.False(t, h.FindDevice(context.Background()))
	assert.ErrorIs(t, h.Connect(context.Background()), bt.ErrDeviceNotFound)

	h, _ = newMockHardware(t, HardwareConfig{DeviceName: "smart trainer"})
	assert.True(t, h.FindDevice(context.Background()))
}

func TestHardwareSource_StaleDataIsNoSample(t *testing.T) {
	h, devices := newMockHardware(t, HardwareConfig{StaleAfter: 50 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx))
	require.Eventually(t, func() bool {
		_, err := h.PollSample(ctx)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	// trainer stays connected but goes quiet
	require.NoError(t, devices[1].DisableNotifications(bt.ServiceUUIDFTMS, bt.CharUUIDIndoorBikeData))
	assert.Eventually(t, func() bool {
		_, err := h.PollSample(ctx)
		return errors.Is(err, ErrNoSample)
	}, time.Second, 10*time.Millisecond)
}

func TestAdapter_WithMockTrainer(t *testing.T) {
	h, _ := newMockHardware(t, HardwareConfig{})
	sim := NewSimulatedSource(SimConfig{Seed: 1}, testLogger())
	a := NewAdapter(h, sim, AdapterConfig{PollInterval: 10 * time.Millisecond}, testLogger())

	require.Equal(t, ModeHardware, a.Connect(context.Background()))
	a.Start()
	defer a.Shutdown()

	assert.Eventually(t, func() bool { return a.Latest().PowerWatts == 150 }, 2*time.Second, 10*time.Millisecond)
}

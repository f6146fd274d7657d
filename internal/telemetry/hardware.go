package telemetry

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	// a heart rate strap is optional, so the search for one is short
	heartRateSearchTimeout = 3 * time.Second
	// readings older than this are treated as missing
	DefaultStaleAfter = 3 * time.Second
)

type HardwareConfig struct {
	// DeviceName picks a trainer whose advertised name contains it. Empty matches any FTMS trainer.
	DeviceName     string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	StaleAfter     time.Duration
}

// HardwareSource reads an FTMS trainer and, when one is around, a heart rate strap.
type HardwareSource struct {
	manager bt.BTManagerInterface
	cfg     HardwareConfig
	logger  *log.Logger
	now     func() time.Time

	enableOnce sync.Once
	enableErr  error

	mu         sync.RWMutex
	trainer    bt.BTDevice
	hrm        bt.BTDevice
	latest     ride.Sample
	hasData    bool
	lastUpdate time.Time
}

func NewHardwareSource(manager bt.BTManagerInterface, cfg HardwareConfig, logger *log.Logger) *HardwareSource {
	if manager == nil {
		panic("HardwareSource: manager cannot be nil")
	}
	if logger == nil {
		panic("HardwareSource: logger cannot be nil")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &HardwareSource{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *HardwareSource) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.trainer != nil {
		return h.trainer.GetLocalName()
	}
	return "Trainer"
}

func (h *HardwareSource) enable() error {
	h.enableOnce.Do(func() {
		h.enableErr = h.manager.Enable()
	})
	return h.enableErr
}

func (h *HardwareSource) matchesTrainer(d bt.BTDevice) bool {
	if !d.HasServiceUUID(bt.ServiceUUIDFTMS) {
		return false
	}
	if h.cfg.DeviceName == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.GetLocalName()), strings.ToLower(h.cfg.DeviceName))
}

func (h *HardwareSource) FindDevice(ctx context.Context) bool {
	if err := h.enable(); err != nil {
		h.logger.Printf("HardwareSource: bluetooth unavailable: %v", err)
		return false
	}
	findCtx, cancel := context.WithTimeout(ctx, h.cfg.ScanTimeout)
	defer cancel()

	device, err := h.manager.FindDevice(findCtx, bt.TelemetryServiceFilter, h.matchesTrainer)
	if err != nil {
		h.logger.Printf("HardwareSource: no trainer found: %v", err)
		return false
	}
	h.mu.Lock()
	h.trainer = device
	h.mu.Unlock()
	h.logger.Printf("HardwareSource: found trainer %s (%s)", device.GetLocalName(), device.GetAddressString())
	return true
}

func (h *HardwareSource) Connect(ctx context.Context) error {
	h.mu.RLock()
	trainer := h.trainer
	h.mu.RUnlock()
	if trainer == nil {
		if !h.FindDevice(ctx) {
			return bt.ErrDeviceNotFound
		}
		h.mu.RLock()
		trainer = h.trainer
		h.mu.RUnlock()
	}

	if err := h.connectDevice(ctx, trainer); err != nil {
		return err
	}
	if err := trainer.EnableNotifications(bt.ServiceUUIDFTMS, bt.CharUUIDIndoorBikeData, h.onIndoorBikeData); err != nil {
		return fmt.Errorf("subscribe to indoor bike data: %w", err)
	}

	h.connectHeartRate(ctx)
	return nil
}

func (h *HardwareSource) connectDevice(ctx context.Context, device bt.BTDevice) error {
	if device.IsConnected() {
		return nil
	}
	if err := h.manager.Connect(device); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	defer cancel()
	return device.WaitForConnection(waitCtx)
}

// connectHeartRate attaches a strap if one turns up quickly. Failures only
// cost the strap; the trainer may still report heart rate itself.
func (h *HardwareSource) connectHeartRate(ctx context.Context) {
	findCtx, cancel := context.WithTimeout(ctx, heartRateSearchTimeout)
	defer cancel()
	strap, err := h.manager.FindDevice(findCtx, []string{bt.ServiceUUIDHeartRate}, func(d bt.BTDevice) bool {
		return d.HasServiceUUID(bt.ServiceUUIDHeartRate) && !d.HasServiceUUID(bt.ServiceUUIDFTMS)
	})
	if err != nil {
		h.logger.Printf("HardwareSource: no heart rate strap: %v", err)
		return
	}
	if err := h.connectDevice(ctx, strap); err != nil {
		h.logger.Printf("HardwareSource: connect strap %s: %v", strap.GetAddressString(), err)
		return
	}
	if err := strap.EnableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement, h.onHeartRate); err != nil {
		h.logger.Printf("HardwareSource: subscribe to strap: %v", err)
		return
	}
	h.mu.Lock()
	h.hrm = strap
	h.mu.Unlock()
	h.logger.Printf("HardwareSource: heart rate from %s", strap.GetLocalName())
}

func (h *HardwareSource) onIndoorBikeData(buf []byte) {
	data, err := ParseIndoorBikeData(buf)
	if err != nil {
		h.logger.Printf("HardwareSource: bad indoor bike data: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.latest
	if data.SpeedKmh != nil {
		s.SpeedKmh = *data.SpeedKmh
	}
	if data.CadenceRpm != nil {
		s.CadenceRpm = int(math.Round(*data.CadenceRpm))
	}
	if data.PowerWatts != nil {
		s.PowerWatts = max(int(*data.PowerWatts), 0)
	}
	if h.hrm == nil && data.HeartRateBpm != nil {
		s.HeartRateBpm = int(*data.HeartRateBpm)
	}
	s.Timestamp = h.now()
	h.latest = s
	h.hasData = true
	h.lastUpdate = s.Timestamp
}

func (h *HardwareSource) onHeartRate(buf []byte) {
	bpm, err := ParseHeartRateMeasurement(buf)
	if err != nil {
		h.logger.Printf("HardwareSource: bad heart rate data: %v", err)
		return
	}
	h.mu.Lock()
	h.latest.HeartRateBpm = bpm
	h.mu.Unlock()
}

func (h *HardwareSource) PollSample(ctx context.Context) (ride.Sample, error) {
	if err := ctx.Err(); err != nil {
		return ride.Sample{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.trainer == nil || !h.trainer.IsConnected() {
		return ride.Sample{}, ErrSourceDisconnected
	}
	if !h.hasData || h.now().Sub(h.lastUpdate) > h.cfg.StaleAfter {
		return ride.Sample{}, ErrNoSample
	}
	return h.latest, nil
}

func (h *HardwareSource) Disconnect() {
	h.mu.Lock()
	trainer, strap := h.trainer, h.hrm
	h.hrm = nil
	h.hasData = false
	h.mu.Unlock()

	if strap != nil {
		if err := strap.DisableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement); err != nil {
			h.logger.Printf("HardwareSource: %v", err)
		}
		if err := h.manager.Disconnect(strap); err != nil {
			h.logger.Printf("HardwareSource: disconnect strap: %v", err)
		}
	}
	if trainer != nil && trainer.IsConnected() {
		if err := trainer.DisableNotifications(bt.ServiceUUIDFTMS, bt.CharUUIDIndoorBikeData); err != nil {
			h.logger.Printf("HardwareSource: %v", err)
		}
		if err := h.manager.Disconnect(trainer); err != nil {
			h.logger.Printf("HardwareSource: disconnect trainer: %v", err)
		}
	}
}

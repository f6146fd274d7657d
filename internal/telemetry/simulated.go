package telemetry

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

// SimConfig shapes the simulated ride. Zero fields take defaults.
type SimConfig struct {
	BasePower        float64
	PowerAmplitude   float64
	BaseCadence      float64
	CadenceAmplitude float64
	BaseHeartRate    float64
	HeartRateSwing   float64
	GradeAmplitude   float64
	Period           time.Duration
	Jitter           float64 // fraction of the base value, e.g. 0.05
	Seed             uint64
	Bike             BikeModel
}

func (c SimConfig) withDefaults() SimConfig {
	if c.BasePower <= 0 {
		c.BasePower = 180
	}
	if c.PowerAmplitude <= 0 {
		c.PowerAmplitude = 40
	}
	if c.BaseCadence <= 0 {
		c.BaseCadence = 85
	}
	if c.CadenceAmplitude <= 0 {
		c.CadenceAmplitude = 8
	}
	if c.BaseHeartRate <= 0 {
		c.BaseHeartRate = 135
	}
	if c.HeartRateSwing <= 0 {
		c.HeartRateSwing = 12
	}
	if c.GradeAmplitude == 0 {
		c.GradeAmplitude = 3
	}
	if c.Period <= 0 {
		c.Period = 90 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.04
	}
	if c.Bike.RiderWeightKg <= 0 || c.Bike.BikeWeightKg <= 0 {
		c.Bike = NewBikeModel(c.Bike.RiderWeightKg, c.Bike.BikeWeightKg)
	}
	return c
}

// SimulatedSource rides a slow sine wave with a little noise on top.
type SimulatedSource struct {
	cfg    SimConfig
	now    func() time.Time
	logger *log.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	startedAt time.Time
	connected bool
}

func NewSimulatedSource(cfg SimConfig, logger *log.Logger) *SimulatedSource {
	if logger == nil {
		panic("SimulatedSource: logger cannot be nil")
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedSource{
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *SimulatedSource) Name() string { return "Simulator" }

func (s *SimulatedSource) FindDevice(context.Context) bool { return true }

func (s *SimulatedSource) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = s.now()
	s.connected = true
	s.logger.Printf("SimulatedSource: riding around %.0f W, %.0f rpm", s.cfg.BasePower, s.cfg.BaseCadence)
	return nil
}

func (s *SimulatedSource) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *SimulatedSource) PollSample(ctx context.Context) (ride.Sample, error) {
	if err := ctx.Err(); err != nil {
		return ride.Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ride.Sample{}, ErrSourceDisconnected
	}

	now := s.now()
	phase := 2 * math.Pi * now.Sub(s.startedAt).Seconds() / s.cfg.Period.Seconds()

	power := s.cfg.BasePower + s.cfg.PowerAmplitude*math.Sin(phase) + s.jitter(s.cfg.BasePower)
	cadence := s.cfg.BaseCadence + s.cfg.CadenceAmplitude*math.Sin(phase+0.6) + s.jitter(s.cfg.BaseCadence)
	// heart rate lags power by a quarter wave
	hr := s.cfg.BaseHeartRate + s.cfg.HeartRateSwing*math.Sin(phase-math.Pi/2) + s.jitter(s.cfg.BaseHeartRate)/2
	grade := clamp(s.cfg.GradeAmplitude*math.Sin(phase/3), -20, 20)

	power = math.Max(power, 0)
	return ride.Sample{
		PowerWatts:   int(math.Round(power)),
		CadenceRpm:   int(math.Round(math.Max(cadence, 0))),
		HeartRateBpm: int(math.Round(math.Max(hr, 0))),
		SpeedKmh:     s.cfg.Bike.SpeedKmh(power, grade),
		GradePercent: grade,
		Timestamp:    now,
	}, nil
}

// jitter returns uniform noise in ±Jitter*base.
func (s *SimulatedSource) jitter(base float64) float64 {
	return (s.rng.Float64()*2 - 1) * s.cfg.Jitter * base
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

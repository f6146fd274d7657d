package recorder

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

const (
	FileNameLayout = "2006-01-02_15-04-05"
	invalidUint8   = math.MaxUint8
)

var (
	ErrNoSamples  = errors.New("no samples recorded")
	ErrNotStarted = errors.New("recording not started")
)

type Config struct {
	Dir string
	// SampleInterval is the spacing the sampler feeds samples at; distance
	// is integrated over it.
	SampleInterval time.Duration
	ExportParquet  bool
}

type point struct {
	at        time.Time
	sample    ride.Sample
	distanceM float64
}

// FITRecorder writes each ride to a FIT activity file.
type FITRecorder struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	points    []point
	distanceM float64
	paused    bool
	pausedAt  time.Time
	pausedFor time.Duration
}

var _ session.WorkoutRecorder = (*FITRecorder)(nil)

func NewFITRecorder(cfg Config, logger *log.Logger) *FITRecorder {
	if logger == nil {
		panic("FITRecorder: logger cannot be nil")
	}
	if cfg.Dir == "" {
		panic("FITRecorder: dir cannot be empty")
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	return &FITRecorder{cfg: cfg, logger: logger, now: time.Now}
}

func (r *FITRecorder) Start(startedAt time.Time) error {
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create workout dir: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	r.startedAt = startedAt
	r.points = make([]point, 0, 3600)
	r.distanceM = 0
	r.paused = false
	r.pausedFor = 0
	r.logger.Printf("FITRecorder: recording to %s", r.cfg.Dir)
	return nil
}

func (r *FITRecorder) Pause(paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	if paused == r.paused {
		return nil
	}
	now := r.now()
	if paused {
		r.pausedAt = now
	} else {
		r.pausedFor += now.Sub(r.pausedAt)
	}
	r.paused = paused
	return nil
}

// AddSample records one sample. Samples that arrive while paused are dropped.
func (r *FITRecorder) AddSample(sample ride.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}
	if r.paused {
		return nil
	}
	at := sample.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	r.distanceM += ride.DistanceMeters(sample.SpeedKmh, r.cfg.SampleInterval)
	r.points = append(r.points, point{at: at, sample: sample, distanceM: r.distanceM})
	return nil
}

// Stop writes the FIT file. On failure the recorded data is kept so Stop can be retried.
func (r *FITRecorder) Stop() (session.WorkoutSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return session.WorkoutSummary{}, ErrNotStarted
	}
	if len(r.points) == 0 {
		return session.WorkoutSummary{}, ErrNoSamples
	}

	pausedFor := r.pausedFor
	if r.paused {
		pausedFor += r.now().Sub(r.pausedAt)
	}
	stats := computeStats(r.points, r.cfg.SampleInterval, pausedFor)

	path, err := r.writeFIT(stats)
	if err != nil {
		return session.WorkoutSummary{}, err
	}
	if r.cfg.ExportParquet {
		parquetPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".parquet"
		if err := exportParquet(parquetPath, r.startedAt, r.points); err != nil {
			// the FIT file is the record of truth
			r.logger.Printf("FITRecorder: parquet export failed: %v", err)
		}
	}

	summary := session.WorkoutSummary{
		StartedAt:       r.startedAt,
		DurationSeconds: int(stats.timerSeconds),
		PausedSeconds:   int(pausedFor.Seconds()),
		DistanceKm:      r.distanceM / 1000,
		AvgPower:        int(stats.avgPower),
		MaxPower:        int(stats.maxPower),
		AvgHeartRate:    int(stats.avgHeartRate),
		MaxHeartRate:    int(stats.maxHeartRate),
		AvgCadence:      int(stats.avgCadence),
		SampleCount:     len(r.points),
		FilePath:        path,
	}
	r.started = false
	r.points = nil
	r.logger.Printf("FITRecorder: saved %d samples, %.2f km to %s", summary.SampleCount, summary.DistanceKm, path)
	return summary, nil
}

// createFile opens a new file named after the ride start, adding a counter
// if a ride started in the same second already exists.
func (r *FITRecorder) createFile() (*os.File, string, error) {
	base := r.startedAt.Format(FileNameLayout)
	for i := 0; i < 100; i++ {
		name := base + ".fit"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.fit", base, i)
		}
		path := filepath.Join(r.cfg.Dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create FIT file: %w", err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("create FIT file: too many rides named %s", base)
}

func (r *FITRecorder) writeFIT(stats rideStats) (string, error) {
	f, path, err := r.createFile()
	if err != nil {
		return "", err
	}

	fit := r.buildFIT(stats)
	if err := encoder.New(f).Encode(&fit); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode FIT file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close FIT file: %w", err)
	}
	return path, nil
}

func (r *FITRecorder) buildFIT(stats rideStats) proto.FIT {
	start := r.startedAt
	end := r.points[len(r.points)-1].at
	elapsedMs := uint32(stats.elapsedSeconds * 1000)
	timerMs := uint32(stats.timerSeconds * 1000)
	distanceCm := uint32(r.distanceM * 100)

	fit := proto.FIT{}
	fit.Messages = append(fit.Messages,
		(&mesgdef.FileId{
			Type:         typedef.FileActivity,
			Manufacturer: typedef.ManufacturerDevelopment,
			SerialNumber: uint32(start.Unix()),
			TimeCreated:  start,
		}).ToMesg(nil),
		(&mesgdef.Event{
			Timestamp: start,
			Event:     typedef.EventTimer,
			EventType: typedef.EventTypeStart,
		}).ToMesg(nil),
	)

	for _, p := range r.points {
		rec := mesgdef.Record{
			Timestamp:     p.at,
			Distance:      uint32(p.distanceM * 100),
			EnhancedSpeed: uint32(p.sample.SpeedKmh / 3.6 * 1000),
			Power:         uint16(max(p.sample.PowerWatts, 0)),
			HeartRate:     fitUint8(p.sample.HeartRateBpm),
			Cadence:       fitUint8(p.sample.CadenceRpm),
		}
		fit.Messages = append(fit.Messages, rec.ToMesg(nil))
	}

	fit.Messages = append(fit.Messages,
		(&mesgdef.Event{
			Timestamp: end,
			Event:     typedef.EventTimer,
			EventType: typedef.EventTypeStopAll,
		}).ToMesg(nil),
		(&mesgdef.Lap{
			Timestamp:        end,
			StartTime:        start,
			TotalElapsedTime: elapsedMs,
			TotalTimerTime:   timerMs,
			TotalDistance:    distanceCm,
			AvgPower:         uint16(stats.avgPower),
			MaxPower:         uint16(stats.maxPower),
			AvgHeartRate:     fitUint8(int(stats.avgHeartRate)),
			MaxHeartRate:     fitUint8(int(stats.maxHeartRate)),
			AvgCadence:       fitUint8(int(stats.avgCadence)),
			MaxCadence:       fitUint8(int(stats.maxCadence)),
			Event:            typedef.EventLap,
			EventType:        typedef.EventTypeStop,
		}).ToMesg(nil),
		(&mesgdef.Session{
			Timestamp:        end,
			StartTime:        start,
			TotalElapsedTime: elapsedMs,
			TotalTimerTime:   timerMs,
			TotalDistance:    distanceCm,
			AvgPower:         uint16(stats.avgPower),
			MaxPower:         uint16(stats.maxPower),
			AvgHeartRate:     fitUint8(int(stats.avgHeartRate)),
			MaxHeartRate:     fitUint8(int(stats.maxHeartRate)),
			AvgCadence:       fitUint8(int(stats.avgCadence)),
			MaxCadence:       fitUint8(int(stats.maxCadence)),
			EnhancedAvgSpeed: uint32(stats.avgSpeedMps * 1000),
			EnhancedMaxSpeed: uint32(stats.maxSpeedMps * 1000),
			NumLaps:          1,
			Sport:            typedef.SportCycling,
			SubSport:         typedef.SubSportVirtualActivity,
			Event:            typedef.EventSession,
			EventType:        typedef.EventTypeStop,
			Trigger:          typedef.SessionTriggerActivityEnd,
		}).ToMesg(nil),
		(&mesgdef.Activity{
			Timestamp:      end,
			TotalTimerTime: timerMs,
			NumSessions:    1,
			Type:           typedef.ActivityManual,
			Event:          typedef.EventActivity,
			EventType:      typedef.EventTypeStop,
		}).ToMesg(nil),
	)
	return fit
}

// fitUint8 maps a missing reading to the FIT invalid marker.
func fitUint8(v int) uint8 {
	if v <= 0 || v >= invalidUint8 {
		return invalidUint8
	}
	return uint8(v)
}

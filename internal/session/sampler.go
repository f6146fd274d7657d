package session

import (
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

const DefaultSampleInterval = 1 * time.Second

// Sampler feeds the latest telemetry to the machine once per interval while recording.
type Sampler struct {
	machine  *Machine
	latest   func() ride.Sample
	interval time.Duration
	logger   *log.Logger

	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewSampler(machine *Machine, latest func() ride.Sample, interval time.Duration, logger *log.Logger) *Sampler {
	if machine == nil {
		panic("Sampler: machine cannot be nil")
	}
	if latest == nil {
		panic("Sampler: latest cannot be nil")
	}
	if logger == nil {
		panic("Sampler: logger cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	s := &Sampler{
		machine:  machine,
		latest:   latest,
		interval: interval,
		logger:   logger,
		doneChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { s.runSampleLoop() })
	return s
}

// Shutdown stops the sampling goroutine. Safe to call more than once.
func (s *Sampler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Printf("Sampler: Shutting down")
		close(s.doneChan)
		s.wg.Wait()
		s.logger.Printf("Sampler: Shutdown complete")
	})
}

func (s *Sampler) runSampleLoop() {
	defer s.wg.Done()

	sessionChan := make(chan RecordingSession, 4)
	unregister := s.machine.ListenToSession(sessionChan)
	defer unregister()

	ticker := time.NewTicker(s.interval)
	ticker.Stop() // started when a recording is running

	running := false
	for {
		select {
		case <-s.doneChan:
			ticker.Stop()
			return

		case sess := <-sessionChan:
			shouldRun := sess.State == StateRecording
			if shouldRun && !running {
				ticker.Reset(s.interval)
			} else if !shouldRun && running {
				ticker.Stop()
			}
			running = shouldRun

		case <-ticker.C:
			if _, err := s.machine.RecordSample(s.latest()); err != nil {
				s.logger.Printf("Sampler: %v", err)
			}
		}
	}
}

package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	maxInFlightPolls    = 4
)

// Status describes which source is live and how polling is going.
type Status struct {
	Mode       Mode
	SourceName string
	Polls      uint64
	Failures   uint64
	LastError  string
}

type AdapterConfig struct {
	PollInterval time.Duration
	// ForceSimulation skips the hardware search.
	ForceSimulation bool
}

// Adapter picks a Source once at connect time and polls it on an interval.
// Polls run concurrently; a result is applied only if it is newer than the
// last one applied, so a slow poll never overwrites fresher data.
type Adapter struct {
	hardware  Source
	simulated Source
	cfg       AdapterConfig
	logger    *log.Logger

	mu          sync.RWMutex
	active      Source
	status      Status
	latest      ride.Sample
	hasSample   bool
	nextSeq     uint64
	appliedSeq  uint64
	inFlight    int
	loopStarted bool
	loopDone    <-chan struct{}

	sampleEvent *events.ChannelEvent[ride.Sample]
	statusEvent *events.ChannelEvent[Status]

	ctx    context.Context
	cancel context.CancelFunc
	pollWg sync.WaitGroup
}

// NewAdapter builds an Adapter. hardware may be nil when no BLE stack is available.
func NewAdapter(hardware, simulated Source, cfg AdapterConfig, logger *log.Logger) *Adapter {
	if simulated == nil {
		panic("Adapter: simulated source cannot be nil")
	}
	if logger == nil {
		panic("Adapter: logger cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		hardware:    hardware,
		simulated:   simulated,
		cfg:         cfg,
		logger:      logger,
		status:      Status{Mode: ModeDisconnected},
		sampleEvent: events.NewChannelEvent[ride.Sample](true),
		statusEvent: events.NewChannelEvent[Status](true),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect chooses the source for the rest of the session. Hardware wins when
// a device is found and connects; anything else falls back to simulation.
func (a *Adapter) Connect(ctx context.Context) Mode {
	mode, source := a.selectSource(ctx)

	a.mu.Lock()
	a.active = source
	a.status = Status{Mode: mode, SourceName: source.Name()}
	status := a.status
	a.mu.Unlock()

	a.logger.Printf("Adapter: using %s (%s)", status.SourceName, mode)
	a.statusEvent.Notify(status)
	return mode
}

func (a *Adapter) selectSource(ctx context.Context) (Mode, Source) {
	if !a.cfg.ForceSimulation && a.hardware != nil {
		if a.hardware.FindDevice(ctx) {
			err := a.hardware.Connect(ctx)
			if err == nil {
				return ModeHardware, a.hardware
			}
			a.logger.Printf("Adapter: hardware connect failed, simulating: %v", err)
			a.hardware.Disconnect()
		} else {
			a.logger.Println("Adapter: no hardware found, simulating")
		}
	}
	if err := a.simulated.Connect(ctx); err != nil {
		a.logger.Printf("Adapter: simulated source: %v", err)
	}
	return ModeSimulated, a.simulated
}

// Start begins polling. Calling it before Connect or twice is a no-op.
func (a *Adapter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.loopStarted {
		return
	}
	a.loopStarted = true
	a.loopDone = go_func_utils.SafeGoWithDone(a.logger, a.pollLoop)
}

func (a *Adapter) pollLoop() {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.poll()
		}
	}
}

// poll launches one asynchronous read. It returns false when the poll was
// skipped because too many reads are already outstanding.
func (a *Adapter) poll() bool {
	a.mu.Lock()
	if a.active == nil || a.ctx.Err() != nil || a.inFlight >= maxInFlightPolls {
		a.mu.Unlock()
		return false
	}
	a.nextSeq++
	seq := a.nextSeq
	a.inFlight++
	source := a.active
	a.pollWg.Add(1)
	a.mu.Unlock()

	go_func_utils.SafeGo(a.logger, func() {
		defer a.pollWg.Done()
		sample, err := source.PollSample(a.ctx)
		a.apply(seq, sample, err)
	})
	return true
}

func (a *Adapter) apply(seq uint64, sample ride.Sample, err error) {
	a.mu.Lock()
	a.inFlight--
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.status.Polls++
	switch {
	case err != nil:
		status, notify := a.recordFailure(err)
		a.mu.Unlock()
		if notify {
			a.statusEvent.Notify(status)
		}
		return
	case seq <= a.appliedSeq:
		a.mu.Unlock()
		return
	}
	a.appliedSeq = seq
	a.latest = sample
	a.hasSample = true
	a.mu.Unlock()

	a.sampleEvent.Notify(sample)
}

// recordFailure keeps the previous sample. Must be called with mu held.
func (a *Adapter) recordFailure(err error) (Status, bool) {
	if errors.Is(err, ErrNoSample) {
		return a.status, false
	}
	a.status.Failures++
	changed := a.status.LastError != err.Error()
	a.status.LastError = err.Error()
	if changed {
		a.logger.Printf("Adapter: poll failed, keeping last sample: %v", err)
	}
	return a.status, changed
}

// Latest returns the most recent sample, or a zero sample before the first one.
func (a *Adapter) Latest() ride.Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

func (a *Adapter) HasSample() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hasSample
}

func (a *Adapter) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status.Mode
}

func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// ListenToSample registers a channel for new samples.
// Returns a deregistration function that can be called to remove the listener
func (a *Adapter) ListenToSample(ch chan<- ride.Sample) func() {
	return a.sampleEvent.Listen(ch)
}

// ListenToStatus registers a channel for mode and error changes.
// Returns a deregistration function that can be called to remove the listener
func (a *Adapter) ListenToStatus(ch chan<- Status) func() {
	return a.statusEvent.Listen(ch)
}

// Shutdown stops polling, drops results still in flight and disconnects the source.
func (a *Adapter) Shutdown() {
	a.logger.Println("Adapter: Shutting down")
	a.cancel()

	a.mu.Lock()
	done := a.loopDone
	source := a.active
	a.mu.Unlock()

	if done != nil {
		<-done
	}
	a.pollWg.Wait()
	if source != nil {
		source.Disconnect()
	}

	a.mu.Lock()
	a.status.Mode = ModeDisconnected
	status := a.status
	a.mu.Unlock()
	a.statusEvent.Notify(status)
	a.logger.Println("Adapter: Shutdown complete")
}

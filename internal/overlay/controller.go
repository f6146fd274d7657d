package overlay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/animation"
	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

const DefaultFrameInterval = time.Second / 30

// RecordingControl is the part of the session machine the overlay drives.
type RecordingControl interface {
	State() session.State
	IsRecording() bool
	StartRecording() error
	PauseRecording() error
	ResumeRecording() error
	RequestStop()
	ConfirmStop() (session.WorkoutSummary, bool, error)
	CancelStop() error
}

// DeviceScanner is implemented by bt.BTManager.
type DeviceScanner interface {
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
}

// NewControllerArgs holds the arguments for creating a new Controller
type NewControllerArgs struct {
	Model     *Model
	Recording RecordingControl
	Pipeline  *ride.Pipeline
	Scheduler *animation.Scheduler
	// Latest returns the most recent telemetry sample.
	Latest        func() ride.Sample
	Scanner       DeviceScanner // nil without a BLE stack
	Preferences   *Preferences  // nil disables device preference saving
	FrameInterval time.Duration
	Logger        *log.Logger
}

// Controller turns user intents into recording commands and runs the frame loop.
type Controller struct {
	model         *Model
	recording     RecordingControl
	pipeline      *ride.Pipeline
	scheduler     *animation.Scheduler
	latest        func() ride.Sample
	scanner       DeviceScanner
	prefs         *Preferences
	frameInterval time.Duration
	logger        *log.Logger
	now           func() time.Time

	// lastFrameAt is only touched by onFrame
	lastFrameAt time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
	shutdownOnce sync.Once
}

func NewController(args NewControllerArgs) *Controller {
	if args.Model == nil {
		panic("Controller: model cannot be nil")
	}
	if args.Recording == nil {
		panic("Controller: recording cannot be nil")
	}
	if args.Pipeline == nil {
		panic("Controller: pipeline cannot be nil")
	}
	if args.Scheduler == nil {
		panic("Controller: scheduler cannot be nil")
	}
	if args.Latest == nil {
		panic("Controller: latest cannot be nil")
	}
	if args.Logger == nil {
		panic("Controller: logger cannot be nil")
	}
	if args.FrameInterval <= 0 {
		args.FrameInterval = DefaultFrameInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		model:         args.Model,
		recording:     args.Recording,
		pipeline:      args.Pipeline,
		scheduler:     args.Scheduler,
		latest:        args.Latest,
		scanner:       args.Scanner,
		prefs:         args.Preferences,
		frameInterval: args.FrameInterval,
		logger:        args.Logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start runs the frame loop until Shutdown.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.scheduler.SetSpeed(c.latest().SpeedKmh)
		c.wg.Add(1)
		go_func_utils.SafeGo(c.logger, func() {
			defer c.wg.Done()
			c.scheduler.Run(c.ctx, c.frameInterval, func(anim animation.FrameState) {
				c.onFrame(anim)
			})
		})
	})
}

// onFrame derives the readout for one tick. The speed set here moves the
// rider on the next tick. Ride totals use the unclamped time since the last
// frame so they keep pace with the recorder while the road is hidden.
func (c *Controller) onFrame(anim animation.FrameState) Frame {
	now := c.now()
	var rideDelta time.Duration
	if !c.lastFrameAt.IsZero() {
		rideDelta = max(now.Sub(c.lastFrameAt), 0)
	}
	c.lastFrameAt = now

	sample := c.latest()
	c.scheduler.SetSpeed(sample.SpeedKmh)
	frame := Frame{
		Readout:   c.pipeline.Step(sample, anim.Delta, rideDelta, c.recording.IsRecording()),
		Animation: anim,
	}
	c.model.SetFrame(frame)
	return frame
}

// Shutdown stops the frame loop and waits for it
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Println("Controller: Shutting down")
		c.cancel()
		c.wg.Wait()
		c.logger.Println("Controller: Shutdown complete")
	})
}

// PrimaryAction starts, pauses or resumes depending on the recording state.
func (c *Controller) PrimaryAction() {
	var err error
	switch c.recording.State() {
	case session.StateIdle:
		if err = c.recording.StartRecording(); err == nil {
			c.pipeline.ResetStreak()
		}
	case session.StateRecording:
		err = c.recording.PauseRecording()
	case session.StatePaused:
		err = c.recording.ResumeRecording()
	default:
		return
	}
	if err != nil {
		c.logger.Printf("Controller: %v", err)
		c.model.SetNotice(err.Error())
		return
	}
	c.model.SetNotice("")
}

// RequestStop asks for confirmation before a recording is finalized.
func (c *Controller) RequestStop() {
	c.recording.RequestStop()
	if c.recording.State() == session.StateConfirming {
		c.model.SetPanel(PanelConfirmStop)
	}
}

// ConfirmStop saves the recording. On failure the confirmation stays open
// so the user can retry or cancel.
func (c *Controller) ConfirmStop() {
	summary, ok, err := c.recording.ConfirmStop()
	if err != nil {
		c.logger.Printf("Controller: %v", err)
		c.model.SetNotice(fmt.Sprintf("Save failed: %v", err))
		return
	}
	if c.model.Panel() == PanelConfirmStop {
		c.model.SetPanel(PanelNone)
	}
	if ok {
		c.logger.Printf("Controller: saved %s", summary.FilePath)
		c.model.SetNotice(FormatSummary(summary))
	}
}

func (c *Controller) CancelStop() {
	if err := c.recording.CancelStop(); err != nil {
		c.logger.Printf("Controller: %v", err)
		c.model.SetNotice(fmt.Sprintf("Resume failed: %v", err))
		return
	}
	if c.model.Panel() == PanelConfirmStop {
		c.model.SetPanel(PanelNone)
	}
}

// TogglePanel opens or closes p. The stop confirmation stays up until it
// is answered.
func (c *Controller) TogglePanel(p Panel) {
	if c.model.Panel() == PanelConfirmStop || p == PanelConfirmStop {
		return
	}
	c.model.TogglePanel(p)
}

// ClosePanel closes whatever is open. Closing the stop confirmation cancels the stop.
func (c *Controller) ClosePanel() {
	if c.model.Panel() == PanelConfirmStop {
		c.CancelStop()
		return
	}
	c.model.SetPanel(PanelNone)
}

func (c *Controller) HoverEnter() {
	c.scheduler.HoverEnter()
}

func (c *Controller) HoverLeave() {
	c.scheduler.HoverLeave()
}

// ToggleVisible hides or shows the road. A hidden road does not animate.
func (c *Controller) ToggleVisible() bool {
	visible := !c.scheduler.Visible()
	c.scheduler.SetVisible(visible)
	c.logger.Printf("Controller: road visible=%v", visible)
	return visible
}

// ToggleScan starts or stops a BLE scan for trainers and heart rate straps.
func (c *Controller) ToggleScan() {
	if c.scanner == nil {
		c.model.SetNotice("Bluetooth is not available")
		return
	}
	if c.scanner.IsScanning() {
		if err := c.scanner.StopScan(); err != nil {
			c.logger.Printf("Controller: stop scan: %v", err)
		}
		c.model.SetNotice("Scan stopped")
		return
	}
	c.scanner.StartScan(bt.TelemetryServiceFilter)
	c.model.SetNotice("Scanning for devices")
}

// SelectDevice remembers d as the trainer to connect to on the next start.
func (c *Controller) SelectDevice(d DeviceEntry) {
	if c.prefs == nil {
		return
	}
	c.prefs.SetPreferredTrainer(d.Name)
	c.model.SetNotice(fmt.Sprintf("%s will be used on the next start", d.Name))
}

func (c *Controller) Quit() {
	c.model.RequestCloseApplication()
}

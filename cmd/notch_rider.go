package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/notch-rider/internal/animation"
	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
	"github.com/lowaak/smart-trainer/notch-rider/internal/config"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/history"
	"github.com/lowaak/smart-trainer/notch-rider/internal/logging"
	"github.com/lowaak/smart-trainer/notch-rider/internal/overlay"
	"github.com/lowaak/smart-trainer/notch-rider/internal/recorder"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

// mock devices notify at about the rate real trainers do
const mockNotifyInterval = 250 * time.Millisecond

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "notch-rider: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	if cfg.PrintConfig {
		return cfg.WriteYAML(os.Stdout)
	}

	logs := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logs.Close()
	logger := logs.Logger
	logger.Printf("notch-rider: starting, config file %q", cfg.ConfigFile)

	store, err := history.OpenStore(cfg.HistoryDB, logger)
	if err != nil {
		return fmt.Errorf("open ride history: %w", err)
	}
	defer store.Close()
	if cfg.ImportOnStart {
		n, err := store.ImportDir(cfg.RecorderDir)
		if err != nil {
			logger.Printf("notch-rider: import %s: %v", cfg.RecorderDir, err)
		} else if n > 0 {
			logger.Printf("notch-rider: imported %d rides from %s", n, cfg.RecorderDir)
		}
	}

	prefs := overlay.LoadPreferences(config.AppDir(), logger)

	// Telemetry
	manager := newBTManager(cfg, logger)
	var hardware telemetry.Source
	if manager != nil {
		deviceName := cfg.DeviceName
		if deviceName == "" {
			deviceName = prefs.PreferredTrainer()
		}
		hardware = telemetry.NewHardwareSource(manager, telemetry.HardwareConfig{
			DeviceName:  deviceName,
			ScanTimeout: cfg.ScanTimeout,
		}, logger)
	}
	simulated := telemetry.NewSimulatedSource(telemetry.SimConfig{
		BasePower: cfg.Sim.BasePower,
		Seed:      cfg.Sim.Seed,
		Bike:      telemetry.NewBikeModel(cfg.Sim.RiderWeight, cfg.Sim.BikeWeight),
	}, logger)
	adapter := telemetry.NewAdapter(hardware, simulated, telemetry.AdapterConfig{
		PollInterval:    cfg.PollInterval,
		ForceSimulation: cfg.Simulate,
	}, logger)

	// Ride and recording
	metrics := ride.NewRideMetrics()
	pipeline := ride.NewPipeline(cfg.Zone, ride.NewStreakTracker(), metrics)
	workoutRecorder := recorder.NewFITRecorder(recorder.Config{
		Dir:            cfg.RecorderDir,
		SampleInterval: session.DefaultSampleInterval,
		ExportParquet:  cfg.ExportParquet,
	}, logger)
	machine := session.NewMachine(workoutRecorder, metrics, logger)
	sampler := session.NewSampler(machine, adapter.Latest, session.DefaultSampleInterval, logger)
	archiver := history.NewArchiver(store, machine, history.DefaultRecentLimit, logger)

	// Overlay
	sources := overlay.ModelSources{
		Session:  machine,
		Status:   adapter,
		Overview: archiver,
		LogLines: logs.UILines,
	}
	var scanner overlay.DeviceScanner
	if manager != nil {
		sources.Devices = manager
		scanner = manager
	}
	model := overlay.NewModel(sources, logger)

	app := tview.NewApplication()
	view := overlay.NewCursesView(logger, app, model, float64(cfg.TrackWidth))
	scheduler := animation.NewScheduler(animation.Config{
		TrackWidth:  float64(cfg.TrackWidth),
		HoverOffset: float64(cfg.HoverOffset),
	}, animation.RealClock, view.Positioner(), logger)
	controller := overlay.NewController(overlay.NewControllerArgs{
		Model:         model,
		Recording:     machine,
		Pipeline:      pipeline,
		Scheduler:     scheduler,
		Latest:        adapter.Latest,
		Scanner:       scanner,
		Preferences:   prefs,
		FrameInterval: cfg.FrameInterval(),
		Logger:        logger,
	})
	baseView := overlay.NewBaseView(overlay.NewBaseViewArgs{
		ViewImpl:   view,
		Model:      model,
		Controller: controller,
		Logger:     logger,
	})

	// The UI comes up straight away; telemetry connects behind it.
	ctx, cancel := context.WithCancel(context.Background())
	connectDone := go_func_utils.SafeGoWithDone(logger, func() {
		adapter.Connect(ctx)
		adapter.Start()
	})
	controller.Start()

	runErr := baseView.Run()
	logger.Println("notch-rider: UI closed, shutting down")

	cancel()
	<-connectDone
	controller.Shutdown()
	baseView.Shutdown()
	sampler.Shutdown()
	saveOpenRecording(machine, store, logger)
	archiver.Shutdown()
	adapter.Shutdown()
	if manager != nil {
		manager.Shutdown()
	}
	model.Shutdown()

	if runErr != nil {
		return fmt.Errorf("run UI: %w", runErr)
	}
	return nil
}

func newBTManager(cfg *config.Config, logger *log.Logger) bt.BTManagerInterface {
	switch {
	case cfg.Simulate:
		return nil
	case cfg.MockBLE:
		return bt.NewMockBTManager(logger, mockNotifyInterval, bt.DefaultMockDevices(logger)...)
	default:
		return bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.ScanTimeout)
	}
}

// saveOpenRecording finalizes a recording left running when the UI closed.
// The ride is stored directly since the archiver may already be gone.
func saveOpenRecording(machine *session.Machine, store *history.Store, logger *log.Logger) {
	if machine.State() == session.StateIdle {
		return
	}
	machine.RequestStop()
	summary, ok, err := machine.ConfirmStop()
	if err != nil {
		logger.Printf("notch-rider: open recording lost: %v", err)
		return
	}
	if !ok {
		return
	}
	if _, err := store.Save(summary); err != nil {
		logger.Printf("notch-rider: store %s: %v", summary.FilePath, err)
		return
	}
	logger.Printf("notch-rider: saved open recording to %s", summary.FilePath)
}

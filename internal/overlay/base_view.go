package overlay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
)

// BaseView feeds model changes to a ViewImpl
type BaseView struct {
	viewImpl   ViewImpl
	model      *Model
	controller *Controller
	context    context.Context
	cancelFunc context.CancelFunc
	waitGroup  sync.WaitGroup
	logger     *log.Logger
}

// NewBaseViewArgs holds the arguments for creating a new BaseView
type NewBaseViewArgs struct {
	ViewImpl   ViewImpl
	Model      *Model
	Controller *Controller
	Logger     *log.Logger
}

func NewBaseView(args NewBaseViewArgs) *BaseView {
	if args.Logger == nil {
		panic("BaseView: logger cannot be nil")
	}
	if args.ViewImpl == nil {
		panic("BaseView: ViewImpl cannot be nil")
	}
	if args.Model == nil {
		panic("BaseView: Model cannot be nil")
	}
	if args.Controller == nil {
		panic("BaseView: Controller cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())

	base := &BaseView{
		viewImpl:   args.ViewImpl,
		model:      args.Model,
		controller: args.Controller,
		context:    ctx,
		cancelFunc: cancel,
		logger:     args.Logger,
	}

	args.ViewImpl.Initialize(args.Controller)
	args.ViewImpl.SetupInputHandlers(args.Controller)
	args.ViewImpl.SetPanel(args.Model.Panel())

	base.waitGroup.Add(1)
	go_func_utils.SafeGo(base.logger, func() { base.monitorLogResize() })
	base.updateLogDisplay()

	base.setupEventListeners()

	return base
}

// listen runs apply for values the model publishes through register,
// redrawing afterwards. Models hand over state latest-wins, so a slow redraw
// skips intermediate values but always ends on the current one.
func listen[T any](base *BaseView, register func(chan T) func(), apply func(T)) {
	ch := make(chan T, 1)
	unregister := register(ch)
	base.waitGroup.Add(1)
	go_func_utils.SafeGo(base.logger, func() {
		defer base.waitGroup.Done()
		defer unregister()
		for {
			select {
			case <-base.context.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				apply(v)
				if err := base.viewImpl.Draw(); err != nil {
					base.logger.Printf("BaseView: Error drawing: %v", err)
				}
			}
		}
	})
}

func (base *BaseView) setupEventListeners() {
	listenToLog := func(ch chan string) func() { return base.model.ListenToLog(ch) }
	listen(base, listenToLog, func(string) { base.updateLogDisplay() })
	listen(base, base.model.ListenToFrame, base.viewImpl.UpdateFrame)
	listen(base, base.model.ListenToSession, base.viewImpl.UpdateSession)
	listen(base, base.model.ListenToStatus, base.viewImpl.UpdateStatus)
	listen(base, base.model.ListenToPanel, base.viewImpl.SetPanel)
	listen(base, base.model.ListenToNotice, base.viewImpl.SetNotice)
	listen(base, base.model.ListenToDevices, base.viewImpl.SetDeviceList)
	listen(base, base.model.ListenToOverview, base.viewImpl.UpdateOverview)

	closeChan := make(chan struct{}, 1)
	closeUnregister := base.model.ListenToCloseApplication(closeChan)
	base.waitGroup.Add(1)
	go_func_utils.SafeGo(base.logger, func() {
		defer base.waitGroup.Done()
		defer closeUnregister()
		select {
		case <-base.context.Done():
			return
		case _, ok := <-closeChan:
			if !ok {
				return
			}
			base.viewImpl.Stop()
		}
	})
}

func (base *BaseView) updateLogDisplay() {
	height := base.viewImpl.GetLogViewHeight()
	if height <= 0 {
		return
	}

	logLines := base.model.GetLogTail(height)

	base.viewImpl.ClearLogView()
	for _, line := range logLines {
		if err := base.viewImpl.WriteLogLine(line); err != nil {
			base.logger.Printf("BaseView: Error writing to log view: %v", err)
		}
	}
}

func (base *BaseView) monitorLogResize() {
	defer base.waitGroup.Done()
	var lastHeight int
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-base.context.Done():
			return
		case <-ticker.C:
			height := base.viewImpl.GetLogViewHeight()
			if height != lastHeight && height > 0 {
				lastHeight = height
				base.updateLogDisplay()
				if err := base.viewImpl.Draw(); err != nil {
					base.logger.Printf("BaseView: Error drawing: %v", err)
				}
			}
		}
	}
}

// Shutdown stops all goroutines and waits for them to finish
func (base *BaseView) Shutdown() {
	base.logger.Println("BaseView: Shutting down")
	base.cancelFunc()
	base.waitGroup.Wait()
	base.logger.Println("BaseView: Shutdown complete")
}

// Run starts the UI and blocks until it exits
func (base *BaseView) Run() error {
	return base.viewImpl.Run()
}

func formatDeviceName(d DeviceEntry) string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

package overlay

import (
	"github.com/lowaak/smart-trainer/notch-rider/internal/history"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

// ViewImpl defines the interface for framework-specific overlay implementations
type ViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	// controller is used to handle UI events
	Initialize(controller *Controller)

	// SetupInputHandlers sets up keyboard and mouse handlers
	SetupInputHandlers(controller *Controller)

	// Run starts the UI framework and blocks until it exits
	Run() error

	// Stop stops the UI framework
	Stop()

	// Draw refreshes/redraws the UI
	Draw() error

	// SetPanel shows p below the road
	SetPanel(p Panel)

	// --- Log View ---

	GetLogViewHeight() int
	ClearLogView()
	WriteLogLine(line string) error

	// --- Ride ---

	// UpdateFrame renders one animation frame and its readout
	UpdateFrame(frame Frame)
	UpdateSession(s session.RecordingSession)
	UpdateStatus(s telemetry.Status)
	SetNotice(notice string)

	// --- Panels ---

	SetDeviceList(devices []DeviceEntry)
	UpdateOverview(o history.Overview)
}

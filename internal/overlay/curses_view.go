package overlay

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/notch-rider/internal/animation"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/history"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

const (
	panelHeight = 12
	logWidth    = 60
)

const helpText = `[yellow]space[white]  start / pause / resume recording
[yellow]s[white]      stop recording (asks first)
[yellow]y n[white]    save or keep riding while asked
[yellow]m[white]      menu
[yellow]d[white]      devices ([yellow]S[white] scans, [yellow]Enter[white] picks the trainer)
[yellow]r[white]      ride history
[yellow]z[white]      hide or show the road
[yellow]?[white]      this help
[yellow]Esc[white]    close the panel
[yellow]q[white]      quit

Hover the road to lift it.`

// CursesView implements ViewImpl using tview
type CursesView struct {
	logger *log.Logger
	app    *tview.Application
	model  *Model

	// Draw requests are coalesced and handed to app.Draw by one goroutine,
	// which blocks until the event loop runs it.
	drawRequests chan struct{}
	stopped      chan struct{}
	stopOnce     sync.Once

	mu           sync.Mutex
	currentPanel Panel
	devices      []DeviceEntry
	hovering     bool

	mainFlex   *tview.Flex
	hudText    *tview.TextView
	rideText   *tview.TextView
	statusText *tview.TextView
	road       *roadView
	pages      *tview.Pages
	logView    *tview.TextView

	menuList    *tview.List
	deviceList  *tview.List
	deviceText  *tview.TextView
	historyText *tview.TextView
	confirm     *tview.Modal

	session session.RecordingSession
}

// NewCursesView creates the view. trackWidth is the track length in the
// scheduler's units, used to place the rider.
func NewCursesView(logger *log.Logger, app *tview.Application, model *Model, trackWidth float64) *CursesView {
	if logger == nil {
		panic("CursesView: logger cannot be nil")
	}
	if app == nil {
		panic("CursesView: app cannot be nil")
	}
	return &CursesView{
		logger:       logger,
		app:          app,
		model:        model,
		road:         newRoadView(trackWidth),
		drawRequests: make(chan struct{}, 1),
		stopped:      make(chan struct{}),
	}
}

// Positioner is handed to the animation scheduler.
func (ui *CursesView) Positioner() animation.WindowPositioner {
	return ui.road
}

// Initialize sets up the tview widgets
func (ui *CursesView) Initialize(controller *Controller) {
	// BaseView listeners call Draw after updating content, so no SetChangedFunc here.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.hudText = tview.NewTextView().SetDynamicColors(true)
	ui.rideText = tview.NewTextView().SetDynamicColors(true)
	ui.statusText = tview.NewTextView().SetDynamicColors(true)

	ui.pages = tview.NewPages()
	ui.pages.AddPage(PanelNone.String(), tview.NewBox(), true, true)
	ui.pages.AddPage(PanelMenu.String(), ui.initMenu(controller), true, false)
	ui.pages.AddPage(PanelDevices.String(), ui.initDevices(controller), true, false)
	ui.pages.AddPage(PanelHistory.String(), ui.initHistory(), true, false)
	ui.pages.AddPage(PanelHelp.String(), ui.initHelp(), true, false)
	ui.pages.AddPage(PanelConfirmStop.String(), ui.initConfirm(controller), true, false)

	rideColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.hudText, 1, 0, false).
		AddItem(ui.rideText, 1, 0, false).
		AddItem(ui.road, 0, 1, false).
		AddItem(ui.statusText, 1, 0, false).
		AddItem(ui.pages, panelHeight, 0, true)

	ui.mainFlex = tview.NewFlex().
		AddItem(rideColumn, 0, 1, true).
		AddItem(ui.logView, logWidth, 0, false)
}

func (ui *CursesView) initMenu(controller *Controller) tview.Primitive {
	ui.menuList = tview.NewList().
		AddItem("Start / pause / resume", "space", 0, controller.PrimaryAction).
		AddItem("Stop recording", "s", 0, controller.RequestStop).
		AddItem("Devices", "d", 0, func() { controller.TogglePanel(PanelDevices) }).
		AddItem("Ride history", "r", 0, func() { controller.TogglePanel(PanelHistory) }).
		AddItem("Help", "?", 0, func() { controller.TogglePanel(PanelHelp) }).
		AddItem("Quit", "q", 0, controller.Quit)
	ui.menuList.SetBorder(true).SetTitle(" Menu ")
	return ui.menuList
}

func (ui *CursesView) initDevices(controller *Controller) tview.Primitive {
	ui.deviceText = tview.NewTextView().SetDynamicColors(true)
	ui.deviceList = tview.NewList().
		ShowSecondaryText(false).
		SetSelectedFunc(func(index int, mainText, _ string, _ rune) {
			ui.mu.Lock()
			devices := ui.devices
			ui.mu.Unlock()
			if index < 0 || index >= len(devices) {
				ui.logger.Printf("UI: device index %d out of range (have %d devices)", index, len(devices))
				return
			}
			ui.logger.Printf("UI: device selected: %s", mainText)
			controller.SelectDevice(devices[index])
		})

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.deviceText, 2, 0, false).
		AddItem(ui.deviceList, 0, 1, true)
	flex.SetBorder(true).SetTitle(" Devices ")
	return flex
}

func (ui *CursesView) initHistory() tview.Primitive {
	ui.historyText = tview.NewTextView().SetDynamicColors(true)
	ui.historyText.SetBorder(true).SetTitle(" Ride history ")
	ui.historyText.SetText("[gray]No rides yet[white]")
	return ui.historyText
}

func (ui *CursesView) initHelp() tview.Primitive {
	help := tview.NewTextView().SetDynamicColors(true)
	help.SetBorder(true).SetTitle(" Help ")
	help.SetText(helpText)
	return help
}

func (ui *CursesView) initConfirm(controller *Controller) tview.Primitive {
	const save, keep = "Save", "Keep riding"
	ui.confirm = tview.NewModal().
		SetText("Stop and save this ride?").
		AddButtons([]string{save, keep}).
		SetDoneFunc(func(_ int, label string) {
			if label == save {
				controller.ConfirmStop()
				return
			}
			controller.CancelStop()
		})
	return ui.confirm
}

// SetupInputHandlers sets up keyboard and mouse handlers
func (ui *CursesView) SetupInputHandlers(controller *Controller) {
	ui.app.EnableMouse(true)
	ui.app.SetMouseCapture(func(event *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
		if action != tview.MouseMove {
			return event, action
		}
		x, y := event.Position()
		inside := ui.road.InRect(x, y)

		ui.mu.Lock()
		changed := inside != ui.hovering
		ui.hovering = inside
		ui.mu.Unlock()

		if changed {
			if inside {
				controller.HoverEnter()
			} else {
				controller.HoverLeave()
			}
		}
		return event, action
	})

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			controller.Quit()
			return nil
		case tcell.KeyEscape:
			controller.ClosePanel()
			return nil
		case tcell.KeyRune:
		default:
			return event
		}

		panel := ui.panel()
		r := event.Rune()

		// the stop confirmation only answers y and n
		if panel == PanelConfirmStop {
			switch r {
			case 'y':
				controller.ConfirmStop()
				return nil
			case 'n':
				controller.CancelStop()
				return nil
			}
			return event
		}

		switch r {
		case ' ':
			controller.PrimaryAction()
		case 's':
			controller.RequestStop()
		case 'z':
			ui.road.setHidden(!controller.ToggleVisible())
		case 'q':
			controller.Quit()
		case 'S':
			if panel != PanelDevices {
				return event
			}
			controller.ToggleScan()
		default:
			p, ok := GetPanelByKey(r)
			if !ok {
				return event
			}
			controller.TogglePanel(p)
		}
		return nil
	})
}

func (ui *CursesView) panel() Panel {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.currentPanel
}

// SetPanel switches the panel page and moves focus to it
func (ui *CursesView) SetPanel(p Panel) {
	ui.mu.Lock()
	if ui.currentPanel == p {
		ui.mu.Unlock()
		return
	}
	ui.currentPanel = p
	ui.mu.Unlock()

	ui.pages.SwitchToPage(p.String())
	ui.setFocusForCurrentPanel(p)
}

func (ui *CursesView) setFocusForCurrentPanel(p Panel) {
	switch p {
	case PanelMenu:
		ui.app.SetFocus(ui.menuList)
	case PanelDevices:
		ui.app.SetFocus(ui.deviceList)
	case PanelConfirmStop:
		ui.app.SetFocus(ui.confirm)
	default:
		ui.app.SetFocus(ui.pages)
	}
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesView) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

func (ui *CursesView) ClearLogView() {
	ui.logView.Clear()
}

func (ui *CursesView) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, tview.Escape(line))
	return err
}

func (ui *CursesView) UpdateFrame(frame Frame) {
	ui.road.setFrame(frame)
	ui.hudText.SetText(FormatHUD(frame.Readout))

	ui.mu.Lock()
	sess := ui.session
	ui.mu.Unlock()
	ui.rideText.SetText(FormatRideLine(frame.Readout, sess))
}

func (ui *CursesView) UpdateSession(s session.RecordingSession) {
	ui.mu.Lock()
	ui.session = s
	ui.mu.Unlock()
	ui.rideText.SetText(FormatRideLine(ui.model.Frame().Readout, s))
}

func (ui *CursesView) UpdateStatus(s telemetry.Status) {
	ui.statusText.SetText(FormatStatus(s))
	ui.deviceText.SetText(fmt.Sprintf("Telemetry: %s\nPolls %d, failures %d", FormatStatus(s), s.Polls, s.Failures))
}

func (ui *CursesView) SetNotice(notice string) {
	ui.road.SetTitle(fmt.Sprintf(" Road  %s ", tview.Escape(notice)))
}

// SetDeviceList refreshes the device list, keeping the selection on the same device.
func (ui *CursesView) SetDeviceList(devices []DeviceEntry) {
	ui.mu.Lock()
	ui.devices = devices
	ui.mu.Unlock()

	var selectedText string
	current := ui.deviceList.GetCurrentItem()
	if current < ui.deviceList.GetItemCount() {
		selectedText, _ = ui.deviceList.GetItemText(current)
	}

	ui.deviceList.Clear()
	selectedIdx := -1
	for i, d := range devices {
		text := formatDeviceName(d)
		if d.Connected {
			text = "[green]●[white] " + text
		}
		if text == selectedText {
			selectedIdx = i
		}
		ui.deviceList.AddItem(text, "", 0, nil)
	}
	if selectedIdx > -1 {
		ui.deviceList.SetCurrentItem(selectedIdx)
	}
}

func (ui *CursesView) UpdateOverview(o history.Overview) {
	if len(o.Recent) == 0 {
		ui.historyText.SetText("[gray]No rides yet[white]")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%d rides, %.1f km total[white]\n", o.RideCount, o.TotalDistanceKm)
	for _, r := range o.Recent {
		b.WriteString(FormatRide(r))
		b.WriteByte('\n')
	}
	ui.historyText.SetText(b.String())
}

// Draw requests a redraw. It never blocks.
func (ui *CursesView) Draw() error {
	select {
	case ui.drawRequests <- struct{}{}:
	default:
	}
	return nil
}

func (ui *CursesView) drawLoop() {
	for {
		select {
		case <-ui.stopped:
			return
		case <-ui.drawRequests:
			ui.app.Draw()
		}
	}
}

// Run starts the UI and blocks until it exits
func (ui *CursesView) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.setFocusForCurrentPanel(ui.panel())
	go_func_utils.SafeGo(ui.logger, ui.drawLoop)
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *CursesView) Stop() {
	ui.stopOnce.Do(func() {
		close(ui.stopped)
		ui.app.Stop()
	})
}

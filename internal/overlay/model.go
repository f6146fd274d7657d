package overlay

import (
	"cmp"
	"context"
	"log"
	"slices"
	"sync"

	"github.com/lowaak/smart-trainer/notch-rider/internal/animation"
	"github.com/lowaak/smart-trainer/notch-rider/internal/bt"
	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/history"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

// Frame is one rendered tick: the derived readout plus the animation state.
type Frame struct {
	Readout   ride.Readout
	Animation animation.FrameState
}

type DeviceEntry struct {
	Name      string
	Address   string
	RSSI      int16
	Connected bool
}

type SessionSource interface {
	ListenToSession(ch chan<- session.RecordingSession) func()
}

type StatusSource interface {
	ListenToStatus(ch chan<- telemetry.Status) func()
}

type OverviewSource interface {
	ListenToOverview(ch chan<- history.Overview) func()
}

type DeviceSource interface {
	ListenToDeviceList(ch chan<- []bt.BTDevice) func()
	ListenToConnectedDevices(ch chan<- []bt.BTDevice) func()
}

// ModelSources are the feeds the model mirrors. Nil sources are skipped.
type ModelSources struct {
	Session  SessionSource
	Status   StatusSource
	Overview OverviewSource
	Devices  DeviceSource
	LogLines <-chan string
}

// Model holds what the overlay renders and publishes every change.
type Model struct {
	frameEvent    *events.ChannelEvent[Frame]
	sessionEvent  *events.ChannelEvent[session.RecordingSession]
	statusEvent   *events.ChannelEvent[telemetry.Status]
	panelEvent    *events.ChannelEvent[Panel]
	overviewEvent *events.ChannelEvent[history.Overview]
	devicesEvent  *events.ChannelEvent[[]DeviceEntry]
	noticeEvent   *events.ChannelEvent[string]
	logEvent      *events.ChannelEvent[string]
	closeEvent    *events.ChannelEvent[struct{}]

	mu               sync.RWMutex
	frame            Frame
	session          session.RecordingSession
	status           telemetry.Status
	panel            Panel
	overview         history.Overview
	scanDevices      []bt.BTDevice
	connectedDevices []bt.BTDevice
	notice           string

	logLines []string
	logMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *log.Logger
}

const maxLogLines = 1000

func NewModel(sources ModelSources, logger *log.Logger) *Model {
	if logger == nil {
		panic("Model: logger cannot be nil")
	}
	if sources.LogLines == nil {
		panic("Model: log lines cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		frameEvent:    events.NewChannelEvent[Frame](true),
		sessionEvent:  events.NewChannelEvent[session.RecordingSession](true),
		statusEvent:   events.NewChannelEvent[telemetry.Status](true),
		panelEvent:    events.NewChannelEvent[Panel](true),
		overviewEvent: events.NewChannelEvent[history.Overview](true),
		devicesEvent:  events.NewChannelEvent[[]DeviceEntry](true),
		noticeEvent:   events.NewChannelEvent[string](true),
		logEvent:      events.NewChannelEvent[string](false),
		closeEvent:    events.NewChannelEvent[struct{}](true),
		session:       session.RecordingSession{State: session.StateIdle},
		logLines:      make([]string, 0, maxLogLines),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}

	if sources.Session != nil {
		mirror(m, sources.Session.ListenToSession, m.setSession)
	}
	if sources.Status != nil {
		mirror(m, sources.Status.ListenToStatus, m.setStatus)
	}
	if sources.Overview != nil {
		mirror(m, sources.Overview.ListenToOverview, m.setOverview)
	}
	if sources.Devices != nil {
		mirror(m, sources.Devices.ListenToDeviceList, m.setScanDevices)
		mirror(m, sources.Devices.ListenToConnectedDevices, m.setConnectedDevices)
	}

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() { m.readFromLogChannel(ctx, sources.LogLines) })

	return m
}

// mirror copies every value published by listen into the model through apply.
func mirror[T any](m *Model, listen func(chan<- T) func(), apply func(T)) {
	ch := make(chan T, 4)
	unregister := listen(ch)
	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer unregister()
		for {
			select {
			case <-m.ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				apply(v)
			}
		}
	})
}

// Shutdown stops all goroutines and waits for them to finish
func (m *Model) Shutdown() {
	m.logger.Println("Model: Shutting down")
	m.cancel()
	m.wg.Wait()
	m.logger.Println("Model: Shutdown complete")
}

// ListenToFrame registers a channel to receive rendered frames, newest first to survive a full buffer
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToFrame(ch chan Frame) func() {
	return m.frameEvent.ListenLatest(ch)
}

func (m *Model) SetFrame(frame Frame) {
	m.mu.Lock()
	m.frame = frame
	m.mu.Unlock()
	m.frameEvent.Notify(frame)
}

func (m *Model) Frame() Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frame
}

// ListenToSession registers a channel to receive recording session changes
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToSession(ch chan session.RecordingSession) func() {
	return m.sessionEvent.ListenLatest(ch)
}

func (m *Model) Session() session.RecordingSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Model) setSession(s session.RecordingSession) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	m.sessionEvent.Notify(s)
}

// ListenToStatus registers a channel to receive telemetry status changes
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToStatus(ch chan telemetry.Status) func() {
	return m.statusEvent.ListenLatest(ch)
}

func (m *Model) Status() telemetry.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Model) setStatus(s telemetry.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	m.statusEvent.Notify(s)
}

// ListenToPanel registers a channel to receive the open panel
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToPanel(ch chan Panel) func() {
	return m.panelEvent.ListenLatest(ch)
}

func (m *Model) Panel() Panel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panel
}

func (m *Model) SetPanel(p Panel) {
	m.mu.Lock()
	if m.panel == p {
		m.mu.Unlock()
		return
	}
	m.panel = p
	m.mu.Unlock()
	m.panelEvent.Notify(p)
}

// TogglePanel opens requested, or closes it when it is already open.
func (m *Model) TogglePanel(requested Panel) Panel {
	m.mu.Lock()
	next := TogglePanel(m.panel, requested)
	changed := next != m.panel
	m.panel = next
	m.mu.Unlock()
	if changed {
		m.panelEvent.Notify(next)
	}
	return next
}

// ListenToOverview registers a channel to receive ride history changes
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToOverview(ch chan history.Overview) func() {
	return m.overviewEvent.ListenLatest(ch)
}

func (m *Model) Overview() history.Overview {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overview
}

func (m *Model) setOverview(o history.Overview) {
	m.mu.Lock()
	m.overview = o
	m.mu.Unlock()
	m.overviewEvent.Notify(o)
}

// ListenToDevices registers a channel to receive the device list
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToDevices(ch chan []DeviceEntry) func() {
	return m.devicesEvent.ListenLatest(ch)
}

// Devices returns scanned and connected devices, connected first.
func (m *Model) Devices() []DeviceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devicesLocked()
}

func (m *Model) setScanDevices(devices []bt.BTDevice) {
	m.mu.Lock()
	m.scanDevices = devices
	entries := m.devicesLocked()
	m.mu.Unlock()
	m.devicesEvent.Notify(entries)
}

func (m *Model) setConnectedDevices(devices []bt.BTDevice) {
	m.mu.Lock()
	m.connectedDevices = devices
	entries := m.devicesLocked()
	m.mu.Unlock()
	m.devicesEvent.Notify(entries)
}

func (m *Model) devicesLocked() []DeviceEntry {
	byAddress := make(map[string]DeviceEntry)
	for _, d := range m.scanDevices {
		rssi, _ := d.GetScanRSSI()
		byAddress[d.GetAddressString()] = DeviceEntry{
			Name:    d.GetLocalName(),
			Address: d.GetAddressString(),
			RSSI:    rssi,
		}
	}
	for _, d := range m.connectedDevices {
		entry := byAddress[d.GetAddressString()]
		entry.Name = d.GetLocalName()
		entry.Address = d.GetAddressString()
		entry.Connected = true
		byAddress[d.GetAddressString()] = entry
	}

	result := make([]DeviceEntry, 0, len(byAddress))
	for _, entry := range byAddress {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b DeviceEntry) int {
		if a.Connected != b.Connected {
			if a.Connected {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Address, b.Address))
	})
	return result
}

// ListenToNotice registers a channel to receive one-line user notices
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToNotice(ch chan string) func() {
	return m.noticeEvent.ListenLatest(ch)
}

func (m *Model) SetNotice(notice string) {
	m.mu.Lock()
	m.notice = notice
	m.mu.Unlock()
	m.noticeEvent.Notify(notice)
}

func (m *Model) Notice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notice
}

// ListenToCloseApplication registers a channel to receive close application signals
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *Model) RequestCloseApplication() {
	m.closeEvent.Notify(struct{}{})
}

// ListenToLog registers a channel to receive log messages
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *Model) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *Model) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

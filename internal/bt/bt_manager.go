package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/safe_map"

	"tinygo.org/x/bluetooth"
)

var ErrDeviceNotFound = errors.New("no matching device found")

// BTManagerInterface is what the telemetry layer needs from the BLE stack.
type BTManagerInterface interface {
	Enable() error
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
	FindDevice(ctx context.Context, serviceUuidFilter []string, match func(BTDevice) bool) (BTDevice, error)
	Connect(device BTDevice) error
	Disconnect(device BTDevice) error
	GetScanDevices() []BTDevice
	GetConnectedDevices() []BTDevice
	ListenToDeviceList(ch chan<- []BTDevice) func()
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter     *bluetooth.Adapter
	devices     *safe_map.SafeMap[string, *btDeviceImpl]
	scanTimeout time.Duration
	logger      *log.Logger

	mu         sync.Mutex
	scanning   bool
	scanCancel context.CancelFunc

	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	foundEvent            *events.ChannelEvent[BTDevice]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		devices:               safe_map.NewSafeMap[string, *btDeviceImpl](),
		scanTimeout:           scanTimeout,
		logger:                logger,
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		foundEvent:            events.NewChannelEvent[BTDevice](false),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *BTManager) device(address bluetooth.Address) *btDeviceImpl {
	d, _ := m.devices.LoadOrStore(address.String(), newBtDeviceImpl(m.logger, address, m.scanTimeout))
	return d
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		d := m.device(device.Address)
		if connected {
			m.logger.Printf("BTManager: connected %s", d.GetAddressString())
			d.setConnected(&device)
		} else {
			m.logger.Printf("BTManager: disconnected %s", d.GetAddressString())
			d.setConnected(nil)
		}
		m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	})
	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE adapter: %w", err)
	}
	return nil
}

// StartScan scans until StopScan or Shutdown. Only devices advertising one of
// the filter services are kept; a nil filter keeps everything.
func (m *BTManager) StartScan(serviceUuidFilter []string) {
	filter := make(map[string]struct{}, len(serviceUuidFilter))
	for _, u := range serviceUuidFilter {
		filter[u] = struct{}{}
	}

	m.mu.Lock()
	if m.scanning && m.scanCancel != nil {
		m.logger.Printf("BTManager: restarting scan")
		m.scanCancel()
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Printf("BTManager: stop previous scan: %v", err)
		}
	}
	scanCtx, scanCancel := context.WithCancel(m.ctx)
	m.scanning = true
	m.scanCancel = scanCancel
	m.mu.Unlock()

	m.logger.Printf("BTManager: scanning, filter %v", serviceUuidFilter)

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		err := m.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if scanCtx.Err() != nil {
				return
			}
			if len(filter) > 0 && !advertisesAny(result, filter) {
				return
			}
			d := m.device(result.Address)
			if d.sawInScan(result, time.Now()) {
				m.logger.Printf("BTManager: found %s (%s) [RSSI: %d]", d.GetLocalName(), d.GetAddressString(), result.RSSI)
				m.foundEvent.Notify(d)
			}
		})
		if err != nil {
			m.logger.Printf("BTManager: scan error: %v", err)
		}
	})

	// publish the scan list and drop stale devices once a second
	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.dropStaleDevices()
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

func advertisesAny(result bluetooth.ScanResult, filter map[string]struct{}) bool {
	for _, u := range result.ServiceUUIDs() {
		if _, ok := filter[u.String()]; ok {
			return true
		}
	}
	return false
}

func (m *BTManager) dropStaleDevices() {
	removed := m.devices.DeleteFunc(func(_ string, d *btDeviceImpl) bool {
		return !d.IsConnected() && time.Since(d.GetScanLastSeen()) > m.scanTimeout
	})
	for _, addr := range removed {
		m.logger.Printf("BTManager: %s not seen for %v", addr, m.scanTimeout)
	}
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *BTManager) IsScanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

// FindDevice scans until a device passing match turns up or ctx ends.
// The scan is stopped before returning.
func (m *BTManager) FindDevice(ctx context.Context, serviceUuidFilter []string, match func(BTDevice) bool) (BTDevice, error) {
	if match == nil {
		match = func(BTDevice) bool { return true }
	}
	found := make(chan BTDevice, 8)
	unregister := m.foundEvent.Listen(found)
	defer unregister()

	// devices already known from an earlier scan
	for _, d := range m.GetScanDevices() {
		if match(d) {
			return d, nil
		}
	}

	m.StartScan(serviceUuidFilter)
	defer func() {
		if err := m.StopScan(); err != nil {
			m.logger.Printf("BTManager: stop scan: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, ctx.Err())
		case <-m.ctx.Done():
			return nil, ErrDeviceNotFound
		case d := <-found:
			if match(d) {
				return d, nil
			}
		}
	}
}

// Connect starts a connection. Completion is reported through the connect handler.
func (m *BTManager) Connect(device BTDevice) error {
	d, ok := m.devices.Load(device.GetAddressString())
	if !ok {
		return fmt.Errorf("unknown device %s", device.GetAddressString())
	}
	d.setState(Connecting)
	if _, err := m.adapter.Connect(d.getAddress(), bluetooth.ConnectionParams{}); err != nil {
		d.setState(Disconnected)
		return fmt.Errorf("connect %s: %w", d.GetAddressString(), err)
	}
	m.logger.Printf("BTManager: connection initiated to %s", d.GetAddressString())
	return nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	d, ok := m.devices.Load(device.GetAddressString())
	if !ok {
		return fmt.Errorf("unknown device %s", device.GetAddressString())
	}
	inner := d.getConnectedDevice()
	if inner == nil {
		return nil
	}
	return inner.Disconnect()
}

func (m *BTManager) GetScanDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, d := range m.devices.Values() {
		if d.IsRecentlyScanned() {
			result = append(result, d)
		}
	}
	return result
}

func (m *BTManager) GetConnectedDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, d := range m.devices.Values() {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

// ListenToDeviceList registers a channel for the scan list, published once a second while scanning.
// Returns a deregistration function that can be called to remove the listener
func (m *BTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel for connected device changes.
// Returns a deregistration function that can be called to remove the listener
func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

// Shutdown disconnects everything and waits for the scan goroutines.
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, d := range m.GetConnectedDevices() {
		if err := m.Disconnect(d); err != nil {
			m.logger.Printf("BTManager: disconnect %s: %v", d.GetAddressString(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BTManager: stop scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}

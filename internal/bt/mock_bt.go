package bt

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
)

// MockReadings are the values a MockBTDevice reports in its notifications.
type MockReadings struct {
	SpeedKmh   float64
	CadenceRpm float64
	PowerWatts int16
	HeartRate  uint8
}

type MockBTDeviceConfig struct {
	Address      string
	LocalName    string
	ServiceUUIDs []string
	Readings     MockReadings
}

// MockBTDevice implements BTDevice without a radio. Its notifications carry
// properly encoded FTMS and heart rate payloads.
type MockBTDevice struct {
	address      string
	localName    string
	serviceUUIDs []string
	logger       *log.Logger

	mu        sync.RWMutex
	state     BTDeviceState
	lastSeen  time.Time
	readings  MockReadings
	callbacks map[string]func([]byte)
}

var _ BTDevice = (*MockBTDevice)(nil)

func NewMockBTDevice(logger *log.Logger, cfg MockBTDeviceConfig) *MockBTDevice {
	if logger == nil {
		panic("MockBTDevice: logger cannot be nil")
	}
	return &MockBTDevice{
		address:      cfg.Address,
		localName:    cfg.LocalName,
		serviceUUIDs: slices.Clone(cfg.ServiceUUIDs),
		logger:       logger,
		state:        Disconnected,
		lastSeen:     time.Now(),
		readings:     cfg.Readings,
		callbacks:    make(map[string]func([]byte)),
	}
}

func (m *MockBTDevice) GetAddressString() string    { return m.address }
func (m *MockBTDevice) GetLocalName() string        { return m.localName }
func (m *MockBTDevice) GetScanRSSI() (int16, error) { return -50, nil }
func (m *MockBTDevice) GetServiceUUIDs() []string   { return slices.Clone(m.serviceUUIDs) }

func (m *MockBTDevice) HasServiceUUID(uuid string) bool {
	return slices.Contains(m.serviceUUIDs, uuid)
}

func (m *MockBTDevice) GetScanLastSeen() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

func (m *MockBTDevice) IsRecentlyScanned() bool { return true }

func (m *MockBTDevice) IsConnected() bool {
	return m.GetState() == Connected
}

func (m *MockBTDevice) GetState() BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockBTDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = Connected
		return
	}
	m.state = Disconnected
	clear(m.callbacks)
}

func (m *MockBTDevice) WaitForConnection(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	<-ctx.Done()
	return fmt.Errorf("waiting for connection to %s: %w", m.address, ctx.Err())
}

func (m *MockBTDevice) EnableNotifications(serviceUuid, characteristicUuid string, callbackFunc func(buf []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return ErrNotConnected
	}
	if !slices.Contains(m.serviceUUIDs, serviceUuid) {
		return fmt.Errorf("service %s not found on device", serviceUuid)
	}
	m.callbacks[characteristicUuid] = callbackFunc
	return nil
}

func (m *MockBTDevice) DisableNotifications(_, characteristicUuid string) error {
	m.mu.Lock()
	delete(m.callbacks, characteristicUuid)
	m.mu.Unlock()
	return nil
}

func (m *MockBTDevice) ReadCharacteristic(_, characteristicUuid string) ([]byte, error) {
	if !m.IsConnected() {
		return nil, ErrNotConnected
	}
	r := m.Readings()
	switch characteristicUuid {
	case CharUUIDIndoorBikeData:
		return EncodeIndoorBikeData(r), nil
	case CharUUIDHeartRateMeasurement:
		return []byte{0x00, r.HeartRate}, nil
	}
	return nil, fmt.Errorf("characteristic %s not readable", characteristicUuid)
}

func (m *MockBTDevice) SetReadings(r MockReadings) {
	m.mu.Lock()
	m.readings = r
	m.mu.Unlock()
}

func (m *MockBTDevice) Readings() MockReadings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readings
}

// TriggerNotifications sends the current readings to every subscribed characteristic.
func (m *MockBTDevice) TriggerNotifications() {
	m.mu.RLock()
	r := m.readings
	bike := m.callbacks[CharUUIDIndoorBikeData]
	hr := m.callbacks[CharUUIDHeartRateMeasurement]
	m.mu.RUnlock()

	if bike != nil {
		bike(EncodeIndoorBikeData(r))
	}
	if hr != nil {
		hr([]byte{0x00, r.HeartRate})
	}
}

// EncodeIndoorBikeData builds an Indoor Bike Data payload with speed,
// cadence, power and heart rate present.
func EncodeIndoorBikeData(r MockReadings) []byte {
	const flags = 1<<2 | 1<<6 | 1<<9 // cadence, power, heart rate; bit 0 clear means speed
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint16(buf[0:], flags)
	binary.LittleEndian.PutUint16(buf[2:], uint16(r.SpeedKmh*100))
	binary.LittleEndian.PutUint16(buf[4:], uint16(r.CadenceRpm*2))
	binary.LittleEndian.PutUint16(buf[6:], uint16(r.PowerWatts))
	buf[8] = r.HeartRate
	return buf
}

// MockBTManager implements BTManagerInterface over a fixed set of mock devices.
type MockBTManager struct {
	logger   *log.Logger
	devices  []*MockBTDevice
	interval time.Duration

	mu            sync.RWMutex
	scanning      bool
	notifyRunning bool

	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ BTManagerInterface = (*MockBTManager)(nil)

// NewMockBTManager creates a manager whose connected devices notify every interval.
func NewMockBTManager(logger *log.Logger, interval time.Duration, devices ...*MockBTDevice) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}
	if interval <= 0 {
		interval = 1 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MockBTManager{
		logger:                logger,
		devices:               devices,
		interval:              interval,
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// DefaultMockDevices is a trainer and a heart rate strap riding at a steady pace.
func DefaultMockDevices(logger *log.Logger) []*MockBTDevice {
	return []*MockBTDevice{
		NewMockBTDevice(logger, MockBTDeviceConfig{
			Address:      "00:11:22:33:44:01",
			LocalName:    "Mock HR Strap",
			ServiceUUIDs: []string{ServiceUUIDHeartRate},
			Readings:     MockReadings{HeartRate: 140},
		}),
		NewMockBTDevice(logger, MockBTDeviceConfig{
			Address:      "00:11:22:33:44:02",
			LocalName:    "Mock Smart Trainer",
			ServiceUUIDs: []string{ServiceUUIDFTMS},
			Readings:     MockReadings{SpeedKmh: 30, CadenceRpm: 85, PowerWatts: 150, HeartRate: 140},
		}),
	}
}

func (m *MockBTManager) Enable() error {
	m.logger.Printf("MockBTManager: enabled with %d devices", len(m.devices))
	m.connectedDevicesEvent.Notify([]BTDevice{})
	return nil
}

func (m *MockBTManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	m.scanning = true
	m.mu.Unlock()
	m.scanDeviceListEvent.Notify(m.filtered(serviceUuidFilter))
}

func (m *MockBTManager) filtered(serviceUuidFilter []string) []BTDevice {
	result := make([]BTDevice, 0, len(m.devices))
	for _, d := range m.devices {
		if len(serviceUuidFilter) == 0 || slices.ContainsFunc(serviceUuidFilter, d.HasServiceUUID) {
			result = append(result, d)
		}
	}
	return result
}

func (m *MockBTManager) StopScan() error {
	m.mu.Lock()
	m.scanning = false
	m.mu.Unlock()
	return nil
}

func (m *MockBTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

func (m *MockBTManager) FindDevice(ctx context.Context, serviceUuidFilter []string, match func(BTDevice) bool) (BTDevice, error) {
	for _, d := range m.filtered(serviceUuidFilter) {
		if match == nil || match(d) {
			return d, nil
		}
	}
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, ctx.Err())
}

func (m *MockBTManager) lookup(device BTDevice) (*MockBTDevice, error) {
	for _, d := range m.devices {
		if d.address == device.GetAddressString() {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown device %s", device.GetAddressString())
}

func (m *MockBTManager) Connect(device BTDevice) error {
	d, err := m.lookup(device)
	if err != nil {
		return err
	}
	d.SetConnected(true)
	m.startNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	m.logger.Printf("MockBTManager: connected %s", d.localName)
	return nil
}

func (m *MockBTManager) Disconnect(device BTDevice) error {
	d, err := m.lookup(device)
	if err != nil {
		return err
	}
	d.SetConnected(false)
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

func (m *MockBTManager) startNotifications() {
	m.mu.Lock()
	if m.notifyRunning {
		m.mu.Unlock()
		return
	}
	m.notifyRunning = true
	m.mu.Unlock()

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				for _, d := range m.devices {
					if d.IsConnected() {
						d.TriggerNotifications()
					}
				}
			}
		}
	})
}

func (m *MockBTManager) GetScanDevices() []BTDevice {
	return m.filtered(nil)
}

func (m *MockBTManager) GetConnectedDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, d := range m.devices {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

func (m *MockBTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *MockBTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *MockBTManager) Shutdown() {
	m.logger.Println("MockBTManager: Shutting down")
	m.cancel()
	m.wg.Wait()
	for _, d := range m.devices {
		d.SetConnected(false)
	}
}

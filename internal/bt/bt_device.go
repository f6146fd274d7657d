package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/safe_map"
	"tinygo.org/x/bluetooth"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota
	Connecting
	Connected
)

func (s BTDeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	default:
		return "Unknown"
	}
}

var ErrNotConnected = errors.New("device not connected")

// BTDevice is a peripheral seen while scanning, connected or not.
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetScanRSSI() (int16, error)
	GetScanLastSeen() time.Time
	IsConnected() bool
	GetState() BTDeviceState
	IsRecentlyScanned() bool
	GetServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
	WaitForConnection(ctx context.Context) error
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	ReadCharacteristic(serviceUuid string, characteristicUuid string) ([]byte, error)
}

type btDeviceImpl struct {
	address     bluetooth.Address
	scanTimeout time.Duration
	logger      *log.Logger

	mu              sync.RWMutex
	scanLastSeen    time.Time
	scanResult      *bluetooth.ScanResult
	connectedDevice *bluetooth.Device // nil while disconnected
	state           BTDeviceState
	serviceUuidStrs []string

	// gattMu serializes discovery and notification setup; tinygo backends do not
	// tolerate overlapping GATT operations on one connection.
	gattMu                 sync.Mutex
	servicesDiscovered     bool
	serviceByUuid          *safe_map.SafeMap[string, *bluetooth.DeviceService]
	characteristicByKey    *safe_map.SafeMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsDiscovered *safe_map.SafeMap[string, bool]
}

func newBtDeviceImpl(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *btDeviceImpl {
	if logger == nil {
		panic("BTDevice: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		panic("BTDevice: scanTimeout must be > 0")
	}
	return &btDeviceImpl{
		address:                address,
		scanTimeout:            scanTimeout,
		logger:                 logger,
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUuid:          safe_map.NewSafeMap[string, *bluetooth.DeviceService](),
		characteristicByKey:    safe_map.NewSafeMap[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsDiscovered: safe_map.NewSafeMap[string, bool](),
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult != nil {
		if name := b.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return "Unknown"
}

func (b *btDeviceImpl) GetScanRSSI() (int16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return b.scanResult.RSSI, nil
}

func (b *btDeviceImpl) GetScanLastSeen() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scanLastSeen
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) IsRecentlyScanned() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scanResult != nil && time.Since(b.scanLastSeen) <= b.scanTimeout
}

func (b *btDeviceImpl) GetServiceUUIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.serviceUuidStrs)
}

func (b *btDeviceImpl) HasServiceUUID(uuid string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.serviceUuidStrs, uuid)
}

// WaitForConnection blocks until the connect handler reports the link or ctx ends.
func (b *btDeviceImpl) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection to %s: %w", b.GetAddressString(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *btDeviceImpl) EnableNotifications(serviceUuidStr, characteristicUuidStr string, callbackFunc func(buf []byte)) error {
	b.gattMu.Lock()
	defer b.gattMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		b.logger.Printf("BTDevice: %s: %v", b.GetAddressString(), err)
		return err
	}
	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return fmt.Errorf("enable notifications on %s: %w", characteristicUuidStr, err)
	}
	b.logger.Printf("BTDevice: %s: notifications on for %s", b.GetAddressString(), characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(serviceUuidStr, characteristicUuidStr string) error {
	b.gattMu.Lock()
	defer b.gattMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}
	// a nil callback turns notifications off
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("disable notifications on %s: %w", characteristicUuidStr, err)
	}
	return nil
}

func (b *btDeviceImpl) ReadCharacteristic(serviceUuidStr, characteristicUuidStr string) ([]byte, error) {
	b.gattMu.Lock()
	defer b.gattMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 512)
	n, err := characteristic.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", characteristicUuidStr, err)
	}
	return buf[:n], nil
}

func (b *btDeviceImpl) getAddress() bluetooth.Address {
	return b.address
}

func (b *btDeviceImpl) sawInScan(result bluetooth.ScanResult, at time.Time) (first bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	first = b.scanResult == nil
	b.scanResult = &result
	b.scanLastSeen = at
	if first {
		for _, u := range result.ServiceUUIDs() {
			b.serviceUuidStrs = append(b.serviceUuidStrs, u.String())
		}
	}
	return first
}

func (b *btDeviceImpl) setConnected(device *bluetooth.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectedDevice = device
	if device != nil {
		b.state = Connected
		return
	}
	b.state = Disconnected
	// a reconnect gets a fresh GATT table
	b.servicesDiscovered = false
	b.serviceByUuid.Clear()
	b.characteristicByKey.Clear()
	b.serviceCharsDiscovered.Clear()
}

func (b *btDeviceImpl) setState(state BTDeviceState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

// lookupCharacteristic must be called with gattMu held.
func (b *btDeviceImpl) lookupCharacteristic(serviceUuidStr, charUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	key := serviceUuidStr + "_" + charUuidStr
	if c, ok := b.characteristicByKey.Load(key); ok {
		return c, nil
	}

	if done, _ := b.serviceCharsDiscovered.Load(serviceUuidStr); !done {
		service, err := b.lookupService(serviceUuidStr)
		if err != nil {
			return nil, err
		}
		// Discover every characteristic at once; per-characteristic discovery
		// interrupts notifications that are already running on some stacks.
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", serviceUuidStr, err)
		}
		for i := range chars {
			b.characteristicByKey.Store(serviceUuidStr+"_"+chars[i].UUID().String(), &chars[i])
		}
		b.serviceCharsDiscovered.Store(serviceUuidStr, true)
	}

	c, ok := b.characteristicByKey.Load(key)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charUuidStr, serviceUuidStr)
	}
	return c, nil
}

func (b *btDeviceImpl) lookupService(serviceUuidStr string) (*bluetooth.DeviceService, error) {
	if s, ok := b.serviceByUuid.Load(serviceUuidStr); ok {
		return s, nil
	}
	device := b.getConnectedDevice()
	if device == nil {
		return nil, ErrNotConnected
	}
	if !b.servicesDiscovered {
		services, err := device.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
		for i := range services {
			b.serviceByUuid.Store(services[i].UUID().String(), &services[i])
		}
		b.servicesDiscovered = true
	}
	s, ok := b.serviceByUuid.Load(serviceUuidStr)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", serviceUuidStr)
	}
	return s, nil
}

package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/safe_map"
	"tinygo.org/x/bluetooth"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota // 0
	Connecting                        // 1
	Connected                         // 2
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

type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	IsConnected() bool
	GetState() BTDeviceState
	GetStateDescription() string
	IsRecentlyScanned() bool
	WaitForConnection(timeout time.Duration) error
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	ReadCharacteristic(serviceUuid string, characteristicUuid string) ([]byte, error)
	HasServiceUUID(uuid string) bool
}

type btDeviceImpl struct {
	address                bluetooth.Address
	scanLastSeen           time.Time
	localName              string
	scanResult             *bluetooth.ScanResult
	connectedDevice        *bluetooth.Device // nil if not connected
	mu                     sync.RWMutex
	bleMu                  sync.Mutex // serializes characteristic operations
	scanTimeout            time.Duration
	logger                 *log.Logger
	state                  BTDeviceState
	serviceByUuid          *safe_map.SafeMap[string, *bluetooth.DeviceService]
	characteristicByUuid   *safe_map.SafeMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsDiscovered *safe_map.SafeMap[string, bool]
	allServicesDiscovered  bool
	serviceUuidStrs        []string
}

func newBtDeviceImpl(
	logger *log.Logger,
	address bluetooth.Address,
	scanTimeout time.Duration,
) *btDeviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	if scanTimeout <= 0 {
		panic("scanTimeout must be > 0")
	}
	return &btDeviceImpl{
		logger:                 logger,
		address:                address,
		localName:              "Unknown",
		scanTimeout:            scanTimeout,
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUuid:          safe_map.NewSafeMap[string, *bluetooth.DeviceService](),
		characteristicByUuid:   safe_map.NewSafeMap[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsDiscovered: safe_map.NewSafeMap[string, bool](),
	}
}

func (b *btDeviceImpl) getAddress() bluetooth.Address {
	return b.address
}

func (b *btDeviceImpl) HasServiceUUID(uuid string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, u := range b.serviceUuidStrs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (b *btDeviceImpl) setServiceUUIDs(serviceUuids []bluetooth.UUID) {
	strs := make([]string, 0, len(serviceUuids))
	for _, uuid := range serviceUuids {
		strs = append(strs, uuid.String())
	}
	b.mu.Lock()
	b.serviceUuidStrs = strs
	b.mu.Unlock()
}

func (b *btDeviceImpl) WaitForConnection(timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutChan := time.After(timeout)

	for {
		if b.IsConnected() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-timeoutChan:
			return fmt.Errorf("timeout after %v waiting for connection", timeout)
		}
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) EnableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string,
	callbackFunc func(buf []byte)) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	b.logger.Printf("BTDevice: EnableNotifications called for service=%s char=%s", serviceUuidStr, characteristicUuidStr)

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		b.logger.Printf("BTDevice: Failed to get characteristic: %v", err)
		return err
	}

	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		b.logger.Printf("BTDevice: EnableNotifications failed: %v", err)
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	b.logger.Printf("BTDevice: Notifications enabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}

	// a nil callback disables notifications
	if err := characteristic.EnableNotifications(nil); err != nil {
		b.logger.Printf("BTDevice: DisableNotifications failed: %v", err)
		return fmt.Errorf("failed to disable notifications: %w", err)
	}

	b.logger.Printf("BTDevice: Notifications disabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) ReadCharacteristic(
	serviceUuidStr string,
	characteristicUuidStr string) ([]byte, error) {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	n, err := characteristic.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic: %w", err)
	}

	return buf[:n], nil
}

func (b *btDeviceImpl) lookupCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}

	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	return b.getDeviceCharacteristic(serviceUuid, characteristicUuid)
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) GetStateDescription() string {
	return b.GetState().String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult != nil {
		if name := b.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return b.localName
}

func (b *btDeviceImpl) setScanLastSeen(t time.Time) {
	b.mu.Lock()
	b.scanLastSeen = t
	b.mu.Unlock()
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) IsRecentlyScanned() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult == nil {
		return false
	}
	return time.Since(b.scanLastSeen) <= b.scanTimeout
}

func (b *btDeviceImpl) setScanResult(scanResult *bluetooth.ScanResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scanResult = scanResult
}

func (b *btDeviceImpl) setConnectedDevice(device *bluetooth.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectedDevice = device
	if device == nil {
		// cached handles belong to the old connection
		b.serviceByUuid.Clear()
		b.characteristicByUuid.Clear()
		b.serviceCharsDiscovered.Clear()
		b.allServicesDiscovered = false
	}
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

func (b *btDeviceImpl) setState(state BTDeviceState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *btDeviceImpl) getDeviceService(serviceUuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	connectedDevice := b.getConnectedDevice()
	if connectedDevice == nil {
		return nil, errors.New("no connected device")
	}

	serviceUuidStr := serviceUuid.String()

	service, ok := b.serviceByUuid.Load(serviceUuidStr)
	if ok {
		return service, nil
	}

	// Discover every service at once. Discovering single services repeatedly
	// interrupts services that are already in use.
	if !b.allServicesDiscovered {
		b.logger.Printf("BTDevice: Discovering all services for device")
		deviceServices, err := connectedDevice.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}

		for i := range deviceServices {
			svc := &deviceServices[i]
			b.serviceByUuid.Store(svc.UUID().String(), svc)
		}

		b.allServicesDiscovered = true
	}

	service, ok = b.serviceByUuid.Load(serviceUuidStr)
	if !ok {
		return nil, fmt.Errorf("service %v not found on device", serviceUuidStr)
	}

	return service, nil
}

func (b *btDeviceImpl) getDeviceCharacteristic(serviceUuid bluetooth.UUID, charUuid bluetooth.UUID) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuidStr := serviceUuid.String()
	charUuidStr := charUuid.String()
	comboUuidStr := fmt.Sprintf("%s_%s", serviceUuidStr, charUuidStr)

	characteristic, ok := b.characteristicByUuid.Load(comboUuidStr)
	if ok {
		return characteristic, nil
	}

	if discovered, _ := b.serviceCharsDiscovered.Load(serviceUuidStr); !discovered {
		service, err := b.getDeviceService(serviceUuid)
		if err != nil {
			return nil, err
		}

		b.logger.Printf("BTDevice: Discovering all characteristics for service %s", serviceUuidStr)
		discoveredCharacteristics, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %v: %w", serviceUuidStr, err)
		}

		for i := range discoveredCharacteristics {
			char := &discoveredCharacteristics[i]
			charKey := fmt.Sprintf("%s_%s", serviceUuidStr, char.UUID().String())
			b.characteristicByUuid.Store(charKey, char)
		}

		b.serviceCharsDiscovered.Store(serviceUuidStr, true)
	}

	characteristic, ok = b.characteristicByUuid.Load(comboUuidStr)
	if !ok {
		return nil, fmt.Errorf("characteristic %v not found in service %v", charUuidStr, serviceUuidStr)
	}

	return characteristic, nil
}

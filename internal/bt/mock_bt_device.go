package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/events"
	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
)

// MockBTDevice is a simulated heart-rate strap implementing BTDevice
type MockBTDevice struct {
	logger       *log.Logger
	address      string
	localName    string
	serviceUUIDs []string

	mu                sync.RWMutex
	state             BTDeviceState
	heartRateCallback func([]byte)
	heartRate         uint16
	battery           uint8
}

var _ BTDevice = (*MockBTDevice)(nil)

// MockBTDeviceConfig holds configuration for creating a mock device
type MockBTDeviceConfig struct {
	Address   string
	LocalName string
	HeartRate uint16
	Battery   uint8
}

// NewMockBTDevice creates a disconnected mock strap advertising the heart
// rate and battery services
func NewMockBTDevice(logger *log.Logger, config MockBTDeviceConfig) *MockBTDevice {
	if logger == nil {
		panic("MockBTDevice: logger cannot be nil")
	}
	return &MockBTDevice{
		logger:       logger,
		address:      config.Address,
		localName:    config.LocalName,
		serviceUUIDs: []string{ServiceUUIDHeartRate, ServiceUUIDBattery},
		state:        Disconnected,
		heartRate:    config.HeartRate,
		battery:      config.Battery,
	}
}

// SetConnected changes the connection state of the mock device
func (m *MockBTDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = Connected
	} else {
		m.state = Disconnected
		m.heartRateCallback = nil
	}
	m.logger.Printf("MockBTDevice [%s]: State changed to %s", m.localName, m.state)
}

// SetHeartRate sets the bpm sent with the next notification
func (m *MockBTDevice) SetHeartRate(bpm uint16) {
	m.mu.Lock()
	m.heartRate = bpm
	m.mu.Unlock()
}

// SetBattery sets the reported battery percentage
func (m *MockBTDevice) SetBattery(percent uint8) {
	m.mu.Lock()
	m.battery = percent
	m.mu.Unlock()
}

func (m *MockBTDevice) GetAddressString() string {
	return m.address
}

func (m *MockBTDevice) GetLocalName() string {
	return m.localName
}

func (m *MockBTDevice) IsConnected() bool {
	return m.GetState() == Connected
}

func (m *MockBTDevice) GetState() BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockBTDevice) GetStateDescription() string {
	return m.GetState().String()
}

func (m *MockBTDevice) IsRecentlyScanned() bool {
	return true
}

func (m *MockBTDevice) WaitForConnection(timeout time.Duration) error {
	if !m.IsConnected() {
		return fmt.Errorf("timeout after %v waiting for connection", timeout)
	}
	return nil
}

func (m *MockBTDevice) HasServiceUUID(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (m *MockBTDevice) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	if serviceUuid != ServiceUUIDHeartRate || characteristicUuid != CharUUIDHeartRateMeasurement {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return fmt.Errorf("device %s not connected", m.address)
	}
	m.heartRateCallback = callbackFunc
	m.logger.Printf("MockBTDevice [%s]: Heart rate notifications enabled", m.localName)
	return nil
}

func (m *MockBTDevice) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	if serviceUuid != ServiceUUIDHeartRate || characteristicUuid != CharUUIDHeartRateMeasurement {
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRateCallback = nil
	m.logger.Printf("MockBTDevice [%s]: Heart rate notifications disabled", m.localName)
	return nil
}

func (m *MockBTDevice) ReadCharacteristic(serviceUuid string, characteristicUuid string) ([]byte, error) {
	if serviceUuid != ServiceUUIDBattery || characteristicUuid != CharUUIDBatteryLevel {
		return nil, fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected {
		return nil, fmt.Errorf("device %s not connected", m.address)
	}
	return []byte{m.battery}, nil
}

// HasHeartRateSubscriber reports whether heart rate notifications are enabled
func (m *MockBTDevice) HasHeartRateSubscriber() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heartRateCallback != nil
}

// TriggerHeartRateNotification sends a heart rate measurement. Values above
// 255 use the uint16 format.
func (m *MockBTDevice) TriggerHeartRateNotification() {
	m.mu.RLock()
	callback := m.heartRateCallback
	hr := m.heartRate
	m.mu.RUnlock()

	if callback == nil {
		return
	}
	if hr > 0xFF {
		callback([]byte{0x01, byte(hr & 0xFF), byte(hr >> 8)})
	} else {
		callback([]byte{0x00, byte(hr)})
	}
}

// MockBTManager is a BTManagerInterface backed by simulated straps
type MockBTManager struct {
	logger                *log.Logger
	mockDevices           []*MockBTDevice
	notifyInterval        time.Duration
	scanning              bool
	notificationsRunning  bool
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	ctx                   context.Context
	cancel                context.CancelFunc
	notifyCancel          context.CancelFunc
	wg                    sync.WaitGroup
	mu                    sync.RWMutex
}

var _ BTManagerInterface = (*MockBTManager)(nil)

// NewMockBTManager creates a mock manager with one heart-rate strap.
// Connected straps notify every notifyInterval; zero disables the sender so
// tests can trigger notifications directly.
func NewMockBTManager(logger *log.Logger, notifyInterval time.Duration) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MockBTManager{
		logger: logger,
		mockDevices: []*MockBTDevice{
			NewMockBTDevice(logger, MockBTDeviceConfig{
				Address:   "00:11:22:33:44:01",
				LocalName: "Mock HR Strap",
				HeartRate: 72,
				Battery:   90,
			}),
		},
		notifyInterval:        notifyInterval,
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *MockBTManager) Enable() error {
	m.logger.Println("MockBTManager: Enabling")
	m.connectedDevicesEvent.Notify([]BTDevice{})
	return nil
}

func (m *MockBTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	if dev := m.findMock(addressString); dev != nil {
		return dev
	}
	return nil
}

func (m *MockBTManager) findMock(addressString string) *MockBTDevice {
	for _, device := range m.mockDevices {
		if device.address == addressString {
			return device
		}
	}
	return nil
}

func (m *MockBTManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	m.scanning = true
	m.mu.Unlock()
	m.logger.Printf("MockBTManager: Starting scan, filter: %v", serviceUuidFilter)
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

func (m *MockBTManager) Connect(device BTDevice) error {
	mockDev := m.findMock(device.GetAddressString())
	if mockDev == nil {
		return fmt.Errorf("unknown device: %s", device.GetAddressString())
	}

	mockDev.SetConnected(true)
	m.startNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())

	m.logger.Printf("MockBTManager: Connected to %s", device.GetAddressString())
	return nil
}

func (m *MockBTManager) Disconnect(device BTDevice) error {
	if mockDev := m.findMock(device.GetAddressString()); mockDev != nil {
		mockDev.SetConnected(false)
	}

	connectedDevices := m.GetConnectedDevices()
	m.connectedDevicesEvent.Notify(connectedDevices)
	if len(connectedDevices) == 0 {
		m.stopNotifications()
	}
	return nil
}

func (m *MockBTManager) startNotifications() {
	m.mu.Lock()
	if m.notificationsRunning || m.notifyInterval <= 0 {
		m.mu.Unlock()
		return
	}
	m.notificationsRunning = true
	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel
	m.mu.Unlock()

	go_func_utils.SafeGoWG(m.logger, &m.wg, func() {
		defer func() {
			m.mu.Lock()
			m.notificationsRunning = false
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(m.notifyInterval)
		defer ticker.Stop()

		for {
			select {
			case <-notifyCtx.Done():
				return
			case <-ticker.C:
				for _, dev := range m.mockDevices {
					if dev.IsConnected() {
						dev.TriggerHeartRateNotification()
					}
				}
			}
		}
	})
}

func (m *MockBTManager) stopNotifications() {
	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.mu.Unlock()
}

func (m *MockBTManager) GetConnectedDevices() []BTDevice {
	connected := make([]BTDevice, 0)
	for _, dev := range m.mockDevices {
		if dev.IsConnected() {
			connected = append(connected, dev)
		}
	}
	return connected
}

// GetScanDevices returns every mock device while scanning
func (m *MockBTManager) GetScanDevices() []BTDevice {
	if !m.IsScanning() {
		return []BTDevice{}
	}
	devices := make([]BTDevice, len(m.mockDevices))
	for i, dev := range m.mockDevices {
		devices[i] = dev
	}
	return devices
}

func (m *MockBTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *MockBTManager) Shutdown() {
	m.logger.Println("MockBTManager: Shutting down")
	for _, dev := range m.mockDevices {
		dev.SetConnected(false)
	}
	m.stopNotifications()
	m.cancel()
	m.wg.Wait()
	m.logger.Println("MockBTManager: Shutdown complete")
}

// GetMockDevices returns all mock devices for direct access
func (m *MockBTManager) GetMockDevices() []*MockBTDevice {
	return m.mockDevices
}

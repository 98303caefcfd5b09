package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/events"
	"github.com/lowaak/cardio-tracker/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

// BTManagerInterface is the subset of a BLE stack the heart-rate sampler needs
type BTManagerInterface interface {
	Enable() error
	GetBTDeviceByAddressString(addressString string) BTDevice
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(device BTDevice) error
	Disconnect(device BTDevice) error
	GetConnectedDevices() []BTDevice
	GetScanDevices() []BTDevice
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter               *bluetooth.Adapter
	devicesByAddress      map[string]*btDeviceImpl
	mu                    sync.RWMutex
	scanning              bool
	scanTimeout           time.Duration
	scanContext           context.Context
	scanContextCancel     context.CancelFunc
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	logger                *log.Logger
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout ...time.Duration) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	timeout := 10 * time.Second
	if len(scanTimeout) > 0 && scanTimeout[0] > 0 {
		timeout = scanTimeout[0]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		devicesByAddress:      make(map[string]*btDeviceImpl),
		scanTimeout:           timeout,
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}
}

// GetBTDeviceByAddressString returns a BTDevice by its address string, or nil if not found
func (m *BTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devicesByAddress[addressString]
	if ok {
		return device
	}
	return nil
}

func (m *BTManager) lookupDeviceImpl(addressString string) (*btDeviceImpl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devicesByAddress[addressString]
	if !ok || device == nil {
		return nil, fmt.Errorf("could not find device %s", addressString)
	}
	return device, nil
}

func (m *BTManager) getOrCreateDeviceImpl(address bluetooth.Address) (*btDeviceImpl, bool) {
	addressStr := address.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.devicesByAddress[addressStr]
	if !ok {
		result = newBtDeviceImpl(m.logger, address, m.scanTimeout)
		m.devicesByAddress[addressStr] = result
	}
	return result, !ok
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()
		d, _ := m.getOrCreateDeviceImpl(device.Address)

		if connected {
			m.logger.Printf("BTManager: Device connected: %s", addressStr)
			d.setConnectedDevice(&device)
			d.setState(Connected)
		} else {
			m.logger.Printf("BTManager: Device disconnected: %s", addressStr)
			d.setConnectedDevice(nil)
			d.setState(Disconnected)
		}

		m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	})

	return m.adapter.Enable()
}

func (m *BTManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filterSet := make(map[string]struct{})
	for _, filter := range serviceUuidFilter {
		filterSet[filter] = struct{}{}
	}

	m.logger.Printf("BTManager: Starting scan, filter: %v", serviceUuidFilter)

	if m.scanning && m.scanContextCancel != nil {
		m.logger.Printf("BTManager: A scan is already running, restarting it")
		m.scanContextCancel()
	}

	m.scanning = true
	scanCtx, scanCancel := context.WithCancel(m.ctx)
	m.scanContext, m.scanContextCancel = scanCtx, scanCancel

	go_func_utils.SafeGoWG(m.logger, &m.wg, func() {
		defer m.logger.Printf("BTManager: exiting scan handling loop")

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, device bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				// the adapter still needs StopScan
				return
			default:
			}

			if len(filterSet) > 0 {
				found := false
				for _, uuid := range device.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found {
					return
				}
			}

			d, newObj := m.getOrCreateDeviceImpl(device.Address)
			d.setScanResult(&device)
			d.setScanLastSeen(time.Now())
			if newObj {
				d.setServiceUUIDs(device.ServiceUUIDs())
				m.logger.Printf("BTManager: Found device: %s (%s) [RSSI: %d]",
					d.GetLocalName(), device.Address.String(), device.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("BTManager: Scan error: %v", err)
		}
	})
}

// Shutdown disconnects every device and waits for the scan goroutine to exit
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, dev := range m.GetConnectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("BTManager: Error disconnecting from %v: %v", dev.GetAddressString(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BTManager: Error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanContextCancel != nil {
		m.scanContextCancel()
		m.scanContextCancel = nil
	}
	return m.adapter.StopScan()
}

// IsScanning returns whether the BTManager is currently scanning
func (m *BTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect connects to a device found by a scan. Completion is reported
// through the adapter connect handler.
func (m *BTManager) Connect(device BTDevice) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("BTManager: Attempting to connect to device: %s", addressStr)

	d, err := m.lookupDeviceImpl(addressStr)
	if err != nil {
		return err
	}

	d.setState(Connecting)
	if _, err := m.adapter.Connect(d.getAddress(), bluetooth.ConnectionParams{}); err != nil {
		d.setState(Disconnected)
		m.logger.Printf("BTManager: Connection error: %v", err)
		return err
	}

	m.logger.Printf("BTManager: Connection initiated to device: %s", addressStr)
	return nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("BTManager: Attempting to disconnect from device: %s", addressStr)

	d, err := m.lookupDeviceImpl(addressStr)
	if err != nil {
		return err
	}
	if d.GetState() == Disconnected {
		return nil
	}
	innerDevice := d.getConnectedDevice()
	if innerDevice == nil {
		m.logger.Printf("BTManager: Tried to disconnect but device was nil")
		return nil
	}
	return innerDevice.Disconnect()
}

// GetConnectedDevices returns all currently connected devices
func (m *BTManager) GetConnectedDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]BTDevice, 0)
	for _, btDevice := range m.devicesByAddress {
		if btDevice.IsConnected() {
			result = append(result, btDevice)
		}
	}
	return result
}

// GetScanDevices returns devices seen by the scan within the scan timeout
func (m *BTManager) GetScanDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]BTDevice, 0)
	for _, btDevice := range m.devicesByAddress {
		if btDevice.IsRecentlyScanned() {
			result = append(result, btDevice)
		}
	}
	return result
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes.
// Returns a deregistration function.
func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

package sensors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/bt"
	"github.com/lowaak/cardio-tracker/internal/events"
	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
)

// ErrSamplerReleased is returned by Connect after Release
var ErrSamplerReleased = errors.New("heart rate sampler released")

// HeartRateState is the connection state of the strap
type HeartRateState int

const (
	HeartRateDisconnected HeartRateState = iota
	HeartRateScanning
	HeartRateConnected
)

func (s HeartRateState) String() string {
	switch s {
	case HeartRateScanning:
		return "Scanning"
	case HeartRateConnected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// HeartRateStatus is what the UI shows about the strap
type HeartRateStatus struct {
	State         HeartRateState
	DeviceName    string
	DeviceAddress string
	Battery       int
	HasBattery    bool
}

// ParseHeartRateMeasurement decodes a Heart Rate Measurement notification.
// Bit 0 of the flags selects a uint8 or uint16 value.
func ParseHeartRateMeasurement(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("heart rate data too short: %d bytes", len(buf))
	}
	if buf[0]&0x01 != 0 {
		if len(buf) < 3 {
			return 0, fmt.Errorf("heart rate UINT16 data too short: %d bytes", len(buf))
		}
		return int(uint16(buf[1]) | uint16(buf[2])<<8), nil
	}
	return int(buf[1]), nil
}

// HeartRateSamplerConfig tunes discovery and battery polling
type HeartRateSamplerConfig struct {
	ScanTimeout       time.Duration
	ConnectTimeout    time.Duration
	BatteryPoll       time.Duration
	discoveryInterval time.Duration
}

func (c HeartRateSamplerConfig) withDefaults() HeartRateSamplerConfig {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 15 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.discoveryInterval <= 0 {
		c.discoveryInterval = 100 * time.Millisecond
	}
	return c
}

// HeartRateSampler owns the BLE connection to one heart-rate strap and
// forwards every decoded bpm to its sink
type HeartRateSampler struct {
	btManager bt.BTManagerInterface
	logger    *log.Logger
	sink      func(bpm int)
	config    HeartRateSamplerConfig

	statusEvent *events.CallbackEvent[HeartRateStatus]

	mu       sync.RWMutex
	status   HeartRateStatus
	device   bt.BTDevice
	released bool

	monitorStop chan struct{}
	releaseOnce sync.Once
	wg          sync.WaitGroup
}

func NewHeartRateSampler(btManager bt.BTManagerInterface, logger *log.Logger, config HeartRateSamplerConfig, sink func(bpm int)) *HeartRateSampler {
	if btManager == nil {
		panic("HeartRateSampler: btManager cannot be nil")
	}
	if logger == nil {
		panic("HeartRateSampler: logger cannot be nil")
	}
	if sink == nil {
		panic("HeartRateSampler: sink cannot be nil")
	}
	return &HeartRateSampler{
		btManager:   btManager,
		logger:      logger,
		sink:        sink,
		config:      config.withDefaults(),
		statusEvent: events.NewCallbackEvent[HeartRateStatus](true),
	}
}

// Status returns the current connection status
func (s *HeartRateSampler) Status() HeartRateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ListenToStatus registers a callback for status changes. The current status
// is replayed once a status has been published.
func (s *HeartRateSampler) ListenToStatus(callback func(HeartRateStatus)) func() {
	return s.statusEvent.Listen(callback)
}

func (s *HeartRateSampler) updateStatus(update func(*HeartRateStatus)) {
	s.mu.Lock()
	update(&s.status)
	status := s.status
	s.mu.Unlock()
	s.statusEvent.Notify(status)
}

// Connect scans for a strap, connects and subscribes to heart rate
// notifications. An empty address takes the first strap advertising the
// Heart Rate Service.
func (s *HeartRateSampler) Connect(ctx context.Context, address string) error {
	s.mu.RLock()
	released := s.released
	connected := s.device != nil
	s.mu.RUnlock()
	if released {
		return ErrSamplerReleased
	}
	if connected {
		return errors.New("heart rate sampler already connected")
	}

	s.updateStatus(func(st *HeartRateStatus) { *st = HeartRateStatus{State: HeartRateScanning} })

	device, err := s.discover(ctx, address)
	if err != nil {
		s.updateStatus(func(st *HeartRateStatus) { st.State = HeartRateDisconnected })
		return err
	}

	if err := s.subscribe(device); err != nil {
		s.updateStatus(func(st *HeartRateStatus) { st.State = HeartRateDisconnected })
		return err
	}
	return nil
}

func (s *HeartRateSampler) discover(ctx context.Context, address string) (bt.BTDevice, error) {
	s.logger.Printf("HeartRateSampler: scanning for %q", address)
	s.btManager.StartScan([]string{bt.ServiceUUIDHeartRate})
	defer func() {
		if err := s.btManager.StopScan(); err != nil {
			s.logger.Printf("HeartRateSampler: error stopping scan: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()
	ticker := time.NewTicker(s.config.discoveryInterval)
	defer ticker.Stop()

	for {
		if device := s.findDevice(address); device != nil {
			return device, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no heart rate strap found: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *HeartRateSampler) findDevice(address string) bt.BTDevice {
	for _, device := range s.btManager.GetScanDevices() {
		if address != "" && device.GetAddressString() != address {
			continue
		}
		if address == "" && !device.HasServiceUUID(bt.ServiceUUIDHeartRate) {
			continue
		}
		return device
	}
	return nil
}

func (s *HeartRateSampler) subscribe(device bt.BTDevice) error {
	name := fmt.Sprintf("%s (%s)", device.GetLocalName(), device.GetAddressString())

	if !device.IsConnected() {
		if err := s.btManager.Connect(device); err != nil {
			return fmt.Errorf("failed to initiate connection to %s: %w", name, err)
		}
		if err := device.WaitForConnection(s.config.ConnectTimeout); err != nil {
			return fmt.Errorf("connection timeout for %s: %w", name, err)
		}
	}

	err := device.EnableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement, s.handleNotification)
	if err != nil {
		if derr := s.btManager.Disconnect(device); derr != nil {
			s.logger.Printf("HeartRateSampler: error disconnecting %s: %v", name, derr)
		}
		return fmt.Errorf("failed to enable heart rate notifications on %s: %w", name, err)
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		s.teardown(device)
		return ErrSamplerReleased
	}
	s.device = device
	s.monitorStop = make(chan struct{})
	stop := s.monitorStop
	s.mu.Unlock()

	s.logger.Printf("HeartRateSampler: connected to %s", name)
	s.updateStatus(func(st *HeartRateStatus) {
		st.State = HeartRateConnected
		st.DeviceName = device.GetLocalName()
		st.DeviceAddress = device.GetAddressString()
	})
	s.readBattery(device)

	connectedCh := make(chan []bt.BTDevice, 4)
	unregister := s.btManager.ListenToConnectedDevices(connectedCh)
	go_func_utils.SafeGoWG(s.logger, &s.wg, func() {
		defer unregister()
		s.monitor(device, stop, connectedCh)
	})
	return nil
}

func (s *HeartRateSampler) handleNotification(buf []byte) {
	bpm, err := ParseHeartRateMeasurement(buf)
	if err != nil {
		s.logger.Printf("HeartRateSampler: parse error: %v (raw: %v)", err, buf)
		return
	}
	s.mu.RLock()
	released := s.released
	s.mu.RUnlock()
	if released {
		return
	}
	s.sink(bpm)
}

func (s *HeartRateSampler) readBattery(device bt.BTDevice) {
	if !device.HasServiceUUID(bt.ServiceUUIDBattery) {
		return
	}
	data, err := device.ReadCharacteristic(bt.ServiceUUIDBattery, bt.CharUUIDBatteryLevel)
	if err != nil || len(data) == 0 {
		s.logger.Printf("HeartRateSampler: battery read failed: %v", err)
		return
	}
	level := int(data[0])
	if level > 100 {
		return
	}
	s.updateStatus(func(st *HeartRateStatus) {
		st.Battery = level
		st.HasBattery = true
	})
}

// monitor polls the battery and notices when the strap drops the connection
func (s *HeartRateSampler) monitor(device bt.BTDevice, stop <-chan struct{}, connectedCh <-chan []bt.BTDevice) {
	var batteryTick <-chan time.Time
	if s.config.BatteryPoll > 0 {
		ticker := time.NewTicker(s.config.BatteryPoll)
		defer ticker.Stop()
		batteryTick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-batteryTick:
			s.readBattery(device)
		case <-connectedCh:
			if device.IsConnected() {
				continue
			}
			s.logger.Printf("HeartRateSampler: strap %s disconnected", device.GetAddressString())
			s.mu.Lock()
			if s.device == device {
				s.device = nil
			}
			s.mu.Unlock()
			s.updateStatus(func(st *HeartRateStatus) { st.State = HeartRateDisconnected })
			return
		}
	}
}

func (s *HeartRateSampler) teardown(device bt.BTDevice) {
	if device.IsConnected() {
		if err := device.DisableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement); err != nil {
			s.logger.Printf("HeartRateSampler: error disabling notifications: %v", err)
		}
	}
	if err := s.btManager.Disconnect(device); err != nil {
		s.logger.Printf("HeartRateSampler: error disconnecting: %v", err)
	}
}

// Release disables notifications, disconnects the strap and stops the sink.
// Later calls do nothing.
func (s *HeartRateSampler) Release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		device := s.device
		s.device = nil
		stop := s.monitorStop
		s.monitorStop = nil
		s.mu.Unlock()

		if stop != nil {
			close(stop)
		}
		s.wg.Wait()
		if device != nil {
			s.teardown(device)
		}
		s.updateStatus(func(st *HeartRateStatus) { st.State = HeartRateDisconnected })
		s.logger.Println("HeartRateSampler: released")
	})
}

// Stop is Release, so the sampler can be registered as a session producer
func (s *HeartRateSampler) Stop() {
	s.Release()
}

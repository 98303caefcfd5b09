package bt

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func TestMockBTManager_ScanConnectDisconnect(t *testing.T) {
	mgr := NewMockBTManager(newTestLogger(), 0)
	defer mgr.Shutdown()
	require.NoError(t, mgr.Enable())

	assert.Empty(t, mgr.GetScanDevices())
	mgr.StartScan([]string{ServiceUUIDHeartRate})
	assert.True(t, mgr.IsScanning())

	devices := mgr.GetScanDevices()
	require.Len(t, devices, 1)
	dev := devices[0]
	assert.True(t, dev.HasServiceUUID(ServiceUUIDHeartRate))
	assert.True(t, dev.HasServiceUUID(ServiceUUIDBattery))
	assert.Equal(t, "Disconnected", dev.GetStateDescription())
	assert.Error(t, dev.WaitForConnection(time.Millisecond))

	connectedCh := make(chan []BTDevice, 4)
	unregister := mgr.ListenToConnectedDevices(connectedCh)
	defer unregister()
	<-connectedCh // replayed empty list from Enable

	require.NoError(t, mgr.Connect(dev))
	assert.NoError(t, dev.WaitForConnection(time.Millisecond))
	assert.Len(t, <-connectedCh, 1)
	assert.Len(t, mgr.GetConnectedDevices(), 1)

	require.NoError(t, mgr.Disconnect(dev))
	assert.Empty(t, <-connectedCh)
	assert.False(t, dev.IsConnected())
}

func TestMockBTDevice_HeartRateNotifications(t *testing.T) {
	dev := NewMockBTDevice(newTestLogger(), MockBTDeviceConfig{Address: "aa", LocalName: "strap", HeartRate: 120, Battery: 55})

	err := dev.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, func([]byte) {})
	assert.Error(t, err, "notifications need a connection")

	dev.SetConnected(true)
	var got [][]byte
	require.NoError(t, dev.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, func(buf []byte) {
		got = append(got, append([]byte(nil), buf...))
	}))
	assert.True(t, dev.HasHeartRateSubscriber())

	dev.TriggerHeartRateNotification()
	dev.SetHeartRate(300)
	dev.TriggerHeartRateNotification()

	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x00, 120}, got[0])
	assert.Equal(t, []byte{0x01, 0x2C, 0x01}, got[1])

	battery, err := dev.ReadCharacteristic(ServiceUUIDBattery, CharUUIDBatteryLevel)
	require.NoError(t, err)
	assert.Equal(t, []byte{55}, battery)

	require.NoError(t, dev.DisableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement))
	assert.False(t, dev.HasHeartRateSubscriber())
	dev.TriggerHeartRateNotification()
	assert.Len(t, got, 2)
}

func TestMockBTManager_PeriodicNotifications(t *testing.T) {
	mgr := NewMockBTManager(newTestLogger(), 5*time.Millisecond)
	defer mgr.Shutdown()
	mgr.StartScan(nil)

	dev := mgr.GetMockDevices()[0]
	require.NoError(t, mgr.Connect(dev))

	received := make(chan []byte, 16)
	require.NoError(t, dev.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, func(buf []byte) {
		select {
		case received <- buf:
		default:
		}
	}))

	select {
	case buf := <-received:
		assert.Equal(t, []byte{0x00, 72}, buf)
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestBTDeviceState_String(t *testing.T) {
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Unknown", BTDeviceState(9).String())
}

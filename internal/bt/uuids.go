package bt

// GATT services and characteristics used by heart-rate straps
const (
	// Heart Rate Service
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"

	// Battery Service
	ServiceUUIDBattery   = "0000180f-0000-1000-8000-00805f9b34fb"
	CharUUIDBatteryLevel = "00002a19-0000-1000-8000-00805f9b34fb"
)

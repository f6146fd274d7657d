package bt

// GATT services and characteristics used for riding telemetry.
const (
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"

	ServiceUUIDFTMS        = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDIndoorBikeData = "00002ad2-0000-1000-8000-00805f9b34fb"
)

// TelemetryServiceFilter is the scan filter for trainers and heart rate straps.
var TelemetryServiceFilter = []string{ServiceUUIDFTMS, ServiceUUIDHeartRate}

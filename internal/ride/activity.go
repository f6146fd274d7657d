package ride

const (
	MinPowerToStart   = 10 // watts
	MinCadenceToStart = 20 // rpm
)

// IsActive reports whether the rider is pedalling hard enough to count as riding.
func IsActive(powerWatts, cadenceRpm int) bool {
	return powerWatts >= MinPowerToStart || cadenceRpm >= MinCadenceToStart
}

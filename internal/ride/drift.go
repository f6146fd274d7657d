package ride

// MaxDrift is how far, in road units, the rider can wander before leaving the road.
const MaxDrift = 30.0

type DriftState int

const (
	DriftWaiting DriftState = iota
	DriftInZone
	DriftTooFast
	DriftTooSlow
	DriftOffRoad
)

func (s DriftState) String() string {
	switch s {
	case DriftWaiting:
		return "Waiting"
	case DriftInZone:
		return "InZone"
	case DriftTooFast:
		return "TooFast"
	case DriftTooSlow:
		return "TooSlow"
	case DriftOffRoad:
		return "OffRoad"
	default:
		return "Unknown"
	}
}

// OnRoad reports whether the state still accumulates streak distance.
func (s DriftState) OnRoad() bool {
	return s == DriftInZone || s == DriftTooFast || s == DriftTooSlow
}

type DriftResult struct {
	State  DriftState
	Offset float64 // in [-MaxDrift, MaxDrift]
}

// Evaluate maps a reading against the zone to a road offset.
// It is total and has no side effects; call it on every tick.
func Evaluate(currentValue float64, zone TargetZone, rideActive bool) DriftResult {
	if !rideActive {
		return DriftResult{State: DriftWaiting}
	}
	if currentValue >= zone.Min && currentValue <= zone.Max {
		return DriftResult{State: DriftInZone}
	}

	zoneRange := zone.Max - zone.Min

	if currentValue > zone.Max {
		offset := normalize(currentValue-zone.Max, zoneRange) * MaxDrift
		if offset >= MaxDrift {
			return DriftResult{State: DriftOffRoad, Offset: MaxDrift}
		}
		return DriftResult{State: DriftTooFast, Offset: offset}
	}

	offset := -normalize(zone.Min-currentValue, zoneRange) * MaxDrift
	if offset <= -MaxDrift {
		return DriftResult{State: DriftOffRoad, Offset: -MaxDrift}
	}
	return DriftResult{State: DriftTooSlow, Offset: offset}
}

// normalize returns deviation/zoneRange capped at 1. A zero-width zone saturates.
func normalize(deviation, zoneRange float64) float64 {
	if zoneRange <= 0 {
		return 1
	}
	n := deviation / zoneRange
	if n > 1 {
		return 1
	}
	return n
}

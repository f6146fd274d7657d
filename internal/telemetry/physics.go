package telemetry

import "math"

const (
	gravity    = 9.81
	airDensity = 1.225 // kg/m^3 at sea level
	cdA        = 0.32
	crr        = 0.005
	drivetrain = 0.96
)

// BikeModel estimates road speed from power on a given grade.
type BikeModel struct {
	RiderWeightKg float64
	BikeWeightKg  float64
}

func NewBikeModel(riderKg, bikeKg float64) BikeModel {
	if riderKg <= 0 {
		riderKg = 75
	}
	if bikeKg <= 0 {
		bikeKg = 9
	}
	return BikeModel{RiderWeightKg: riderKg, BikeWeightKg: bikeKg}
}

// SpeedKmh solves the steady-state power balance for speed by bisection,
// which stays well behaved on descents where zero power still means motion.
func (b BikeModel) SpeedKmh(watts, gradePercent float64) float64 {
	if watts < 0 {
		watts = 0
	}
	mass := b.RiderWeightKg + b.BikeWeightKg
	wheelPower := watts * drivetrain

	theta := math.Atan(gradePercent / 100)
	linear := mass*gravity*math.Sin(theta) + mass*gravity*math.Cos(theta)*crr
	aero := 0.5 * airDensity * cdA

	low, high := 0.0, 40.0 // m/s
	for i := 0; i < 30 && high-low > 0.001; i++ {
		mid := (low + high) / 2
		if aero*mid*mid*mid+linear*mid < wheelPower {
			low = mid
		} else {
			high = mid
		}
	}
	return (low + high) / 2 * 3.6
}

package animation

// RoadProfile is the road shape around the notch: a high road either side,
// a low road beneath the notch and straight ramps between them.
type RoadProfile struct {
	UpperY          float64
	LowerY          float64
	TransitionWidth float64
}

var DefaultRoadProfile = RoadProfile{UpperY: 37, LowerY: 109, TransitionWidth: 50}

// Y returns the road height at x for a notch centred on notchX.
func (p RoadProfile) Y(x, notchX, notchWidth float64) float64 {
	half := notchWidth / 2
	leftStart := notchX - half - p.TransitionWidth
	leftEnd := notchX - half
	rightStart := notchX + half
	rightEnd := notchX + half + p.TransitionWidth

	switch {
	case x < leftStart:
		return p.UpperY
	case x < leftEnd:
		return p.UpperY + (p.LowerY-p.UpperY)*p.progress(x-leftStart)
	case x < rightStart:
		return p.LowerY
	case x < rightEnd:
		return p.LowerY - (p.LowerY-p.UpperY)*p.progress(x-rightStart)
	default:
		return p.UpperY
	}
}

func (p RoadProfile) progress(d float64) float64 {
	if p.TransitionWidth <= 0 {
		return 1
	}
	return d / p.TransitionWidth
}

// RoadY uses DefaultRoadProfile.
func RoadY(x, notchX, notchWidth float64) float64 {
	return DefaultRoadProfile.Y(x, notchX, notchWidth)
}

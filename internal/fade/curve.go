package fade

// Direction selects the easing policy.
type Direction int

const (
	DirectionLinear Direction = iota
	DirectionSunrise
	DirectionSunset
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case DirectionLinear:
		return "linear"
	case DirectionSunrise:
		return "sunrise"
	case DirectionSunset:
		return "sunset"
	default:
		return "unknown"
	}
}

// CurveFunc maps linear time progress to perceptual progress.
// Implementations must satisfy f(0) = 0, f(1) = 1 and be non-decreasing.
type CurveFunc func(progress float64, direction Direction) float64

// Curve is the built-in easing policy: sunrise eases in (p²), sunset eases
// out (1-(1-p)²), linear is the identity.
func Curve(progress float64, direction Direction) float64 {
	p := clampUnit(progress)

	switch direction {
	case DirectionSunrise:
		return p * p
	case DirectionSunset:
		return 1 - (1-p)*(1-p)
	default:
		return p
	}
}

// directionFor returns the easing direction for a brightness walk.
func directionFor(start, end int, easing bool) Direction {
	if !easing {
		return DirectionLinear
	}
	if end > start {
		return DirectionSunrise
	}
	return DirectionSunset
}

// pinned wraps a curve so the endpoints are exact and the output stays in [0,1].
func pinned(f CurveFunc) CurveFunc {
	return func(progress float64, direction Direction) float64 {
		switch {
		case progress <= 0:
			return 0
		case progress >= 1:
			return 1
		}
		return clampUnit(f(progress, direction))
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

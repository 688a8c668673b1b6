package fade

import (
	"math"
	"time"
)

const (
	MinBrightness = 1
	MaxBrightness = 100

	// transitionMargin keeps the hardware transition shorter than the step
	// period so it never overruns into the next command.
	transitionMargin = 100 * time.Millisecond
)

// Color is a hue (degrees, 0..360) and saturation (percent, 0..100) pair.
type Color struct {
	Hue        int `yaml:"hue" json:"hue"`
	Saturation int `yaml:"saturation" json:"saturation"`
}

// HuePath selects how hue is blended between two palette points.
type HuePath string

const (
	// HuePathLinear blends hue numerically. The result depends on palette
	// order: {0 -> 40} walks through orange, {350 -> 40} walks through green.
	HuePathLinear HuePath = "linear"
	// HuePathShortest blends along the shorter arc of the color wheel.
	HuePathShortest HuePath = "shortest"
)

// Palette holds the two sun mode endpoints.
type Palette struct {
	Deep    Color   // low-brightness end
	Warm    Color   // high-brightness end
	HuePath HuePath // defaults to HuePathLinear
}

// DefaultPalette is deep red to warm white.
func DefaultPalette() Palette {
	return Palette{
		Deep:    Color{Hue: 0, Saturation: 100},
		Warm:    Color{Hue: 40, Saturation: 10},
		HuePath: HuePathLinear,
	}
}

// ColorMode describes whether and which way color is walked.
type ColorMode int

const (
	ColorModeOff ColorMode = iota
	ColorModeSunrise
	ColorModeSunset
)

// String returns a human-readable name for the color mode.
func (m ColorMode) String() string {
	switch m {
	case ColorModeOff:
		return "off"
	case ColorModeSunrise:
		return "sunrise"
	case ColorModeSunset:
		return "sunset"
	default:
		return "unknown"
	}
}

// colorModeFor derives the color mode from the brightness direction.
func colorModeFor(start, end int, enabled bool) ColorMode {
	if !enabled {
		return ColorModeOff
	}
	if end > start {
		return ColorModeSunrise
	}
	return ColorModeSunset
}

// Step is the computed target for one tick of the fade.
type Step struct {
	Index      int
	Linear     float64
	Curve      float64
	Brightness int
	Color      *Color // nil when color mode is off
	Transition time.Duration
}

// Interpolator turns curve progress into concrete targets.
// It is a value type with no hidden state.
type Interpolator struct {
	StartBrightness int
	EndBrightness   int
	StartColor      *Color
	EndColor        *Color
	HuePath         HuePath
}

// Brightness returns the target brightness for the given curve progress,
// rounded half to even and clamped to [MinBrightness, MaxBrightness].
func (ip Interpolator) Brightness(curve float64) int {
	v := float64(ip.StartBrightness) + float64(ip.EndBrightness-ip.StartBrightness)*curve
	return clampBrightness(int(math.RoundToEven(v)))
}

// Color returns the target color for the given curve progress, or nil when
// no color endpoints are set. Components are truncated, not rounded.
func (ip Interpolator) Color(curve float64) *Color {
	if ip.StartColor == nil || ip.EndColor == nil {
		return nil
	}

	start, end := ip.StartColor, ip.EndColor

	hueDelta := float64(end.Hue - start.Hue)
	if ip.HuePath == HuePathShortest {
		switch {
		case hueDelta > 180:
			hueDelta -= 360
		case hueDelta < -180:
			hueDelta += 360
		}
	}

	hue := float64(start.Hue) + hueDelta*curve
	if ip.HuePath == HuePathShortest {
		hue = math.Mod(hue+360, 360)
	}
	sat := float64(start.Saturation) + float64(end.Saturation-start.Saturation)*curve

	return &Color{
		Hue:        int(hue),
		Saturation: int(sat),
	}
}

// TransitionHint returns the hardware transition to request for a step of
// the given period: the period minus a 100ms margin, truncated to whole
// milliseconds, never negative.
func TransitionHint(interval time.Duration) time.Duration {
	hint := (interval - transitionMargin).Truncate(time.Millisecond)
	if hint < 0 {
		return 0
	}
	return hint
}

func clampBrightness(v int) int {
	if v < MinBrightness {
		return MinBrightness
	}
	if v > MaxBrightness {
		return MaxBrightness
	}
	return v
}

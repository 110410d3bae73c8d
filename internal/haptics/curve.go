// Package haptics holds the pure pieces of the mapping core: intensity
// curves, vest cell layouts and the event throttle.
package haptics

import "math"

// PerceptualExponent shapes Curve. Values below 1 lift weak inputs so light
// braking or rumble is still felt; it is a tuning knob, not a physical law.
var PerceptualExponent = 0.7

// Normalize clamps raw into [min,max] and rescales it to [0,1].
func Normalize(raw, min, max float64) float64 {
	if max <= min || math.IsNaN(raw) {
		return 0
	}
	if raw <= min {
		return 0
	}
	if raw >= max {
		return 1
	}
	return (raw - min) / (max - min)
}

// Curve applies the perceptual exponent to x in [0,1].
func Curve(x float64) float64 {
	return CurveWith(x, PerceptualExponent)
}

func CurveWith(x, exp float64) float64 {
	x = Clamp01(x)
	if x == 0 {
		return 0
	}
	return math.Pow(x, exp)
}

// ToSpeed converts an intensity to a device speed. 0 means "emit nothing".
func ToSpeed(intensity float64) int {
	if math.IsNaN(intensity) || intensity <= 0 {
		return 0
	}
	s := int(math.Round(intensity * 10))
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

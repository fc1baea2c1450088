package utils

import "math"

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// RoundTo rounds v half away from zero to the given decimal places
func RoundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// Lerp moves from a towards b by fraction t
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

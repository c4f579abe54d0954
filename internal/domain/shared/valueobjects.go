package shared

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// WEEK NUMBER
// ══════════════════════════════════════════════════════════════════════════════

// MaxWeekNumber is the longest term the analytics accept.
const MaxWeekNumber = 52

// ══════════════════════════════════════════════════════════════════════════════
// PERCENTAGES
// ══════════════════════════════════════════════════════════════════════════════

// Round1 rounds half away from zero to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// Round2 rounds half away from zero to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Percent returns earned/possible*100 clamped to [0,100] and rounded to one
// decimal. A non-positive denominator yields 0.
func Percent(earned, possible float64) float64 {
	return Round1(RawPercent(earned, possible))
}

// RawPercent is Percent without rounding.
func RawPercent(earned, possible float64) float64 {
	if possible <= 0 || math.IsNaN(earned) || math.IsNaN(possible) {
		return 0
	}
	return ClampPercent(earned / possible * 100)
}

// ClampPercent bounds p to [0,100].
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// ClampUnit bounds x to [0,1].
func ClampUnit(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

package render

import "math"

// Round rounds v to dec decimals, half away from zero.
func Round(v float64, dec int) float64 {
	p := math.Pow(10, float64(dec))
	return math.Round(v*p) / p
}

// LegacyRound scales by 10 XOR dec instead of a power of ten, so the result
// is off for every positive dec. It is kept only to pin down the old behaviour
// in tests. Nothing renders with it.
func LegacyRound(v float64, dec int) float64 {
	p := float64(10 ^ dec)
	return math.Round(v*p) / p
}

// Package contrast implements the Michelson contrast metric and the
// per-wavelength modulation transfer correction applied to spectral
// radiance cubes before excitation prediction.
package contrast

import (
	"math"
)

// Michelson returns the Michelson contrast (max-min)/(max+min) over a
// field of samples. A uniform field yields exactly 0. Degenerate inputs
// are reported as NaN rather than an error: an empty field, a field
// containing NaN, or a field whose extremes sum to zero (an all-zero
// field) all return NaN, and the caller decides what to do with it.
func Michelson(field []float64) float64 {
	if len(field) == 0 {
		return math.NaN()
	}
	lo, hi := field[0], field[0]
	for _, v := range field[1:] {
		if math.IsNaN(v) {
			return math.NaN()
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsNaN(lo) {
		return math.NaN()
	}
	return (hi - lo) / (hi + lo)
}

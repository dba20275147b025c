package excitation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is the relative deviation above which a predicted
// excitation is considered inconsistent with its reference.
const DefaultTolerance = 1e-5

// ValidationError reports a consistency failure between predicted and
// reference excitations. It carries the worst offending entry so the
// failure can be traced to a receptor class and pixel.
type ValidationError struct {
	// MaxRelative is the largest relative deviation found
	MaxRelative float64

	// Class and Pixel locate the worst entry in the excitation matrix
	Class int
	Pixel int

	// Predicted and Reference are the values at that entry
	Predicted float64
	Reference float64

	// Tolerance is the limit the deviation was checked against
	Tolerance float64
}

// Error formats the failure with the offending deviation and location.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("excitation: predicted excitations deviate from reference: max relative deviation %.3e at class %d, pixel %d (predicted %.6e, reference %.6e, tolerance %.0e)",
		e.MaxRelative, e.Class, e.Pixel, e.Predicted, e.Reference, e.Tolerance)
}

// CompareToReference checks predicted excitations against a reference
// matrix. It returns the maximum relative deviation over all entries and,
// when that deviation exceeds the tolerance, a *ValidationError locating
// the worst entry. A non-positive tolerance selects DefaultTolerance.
//
// The relative deviation of an entry is |predicted-reference|/|reference|.
// Entries where both values are equal (including both zero) deviate by 0.
// A zero reference with a nonzero prediction, or a NaN on either side,
// counts as infinite deviation and always fails.
func CompareToReference(predicted, reference *mat.Dense, tolerance float64) (float64, error) {
	if predicted == nil || reference == nil {
		return 0, fmt.Errorf("excitation: nil matrix passed to consistency check")
	}
	pr, pc := predicted.Dims()
	rr, rc := reference.Dims()
	if pr != rr || pc != rc {
		return 0, fmt.Errorf("excitation: predicted matrix is %dx%d but reference is %dx%d",
			pr, pc, rr, rc)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var (
		maxRel               float64
		worstClass, worstPix int
	)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			p := predicted.At(i, j)
			r := reference.At(i, j)

			var rel float64
			switch {
			case math.IsNaN(p) || math.IsNaN(r):
				rel = math.Inf(1)
			case p == r:
				rel = 0
			case r == 0:
				rel = math.Inf(1)
			default:
				rel = math.Abs(p-r) / math.Abs(r)
			}

			if rel > maxRel {
				maxRel = rel
				worstClass, worstPix = i, j
			}
		}
	}

	if maxRel > tolerance {
		return maxRel, &ValidationError{
			MaxRelative: maxRel,
			Class:       worstClass,
			Pixel:       worstPix,
			Predicted:   predicted.At(worstClass, worstPix),
			Reference:   reference.At(worstClass, worstPix),
			Tolerance:   tolerance,
		}
	}
	return maxRel, nil
}

// Package excitation turns spectral radiance into predicted photoreceptor
// excitations and gates those predictions against reference values.
package excitation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Variant identifies which receptor complement a sensitivity matrix covers.
type Variant int

const (
	// ConesOnly covers the standard L, M, S cone classes
	ConesOnly Variant = iota

	// Extended covers the cones plus additional receptor classes,
	// typically the rods
	Extended
)

// String returns a readable variant name for logs and errors.
func (v Variant) String() string {
	switch v {
	case ConesOnly:
		return "cones-only"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Sensitivities is a resolved receptor sensitivity matrix: one row per
// receptor class, one column per wavelength band. Instances are treated
// as read-only once resolved and may be shared across goroutines.
type Sensitivities struct {
	// Variant records which source field the matrix came from
	Variant Variant

	// Classes names each receptor class, one per matrix row
	Classes []string

	// Weights is the classes x bands sensitivity matrix
	Weights *mat.Dense

	// Wavelengths is the sampling the weights are tabulated on, in nm
	Wavelengths []float64
}

// Table is one sensitivity tabulation as found in a receptor dataset.
type Table struct {
	// Classes names the receptor classes, one per row of Weights
	Classes []string

	// Weights holds sensitivities, classes x bands
	Weights *mat.Dense

	// Wavelengths is the sampling in nanometers, one per column
	Wavelengths []float64
}

// Source mirrors the layout of a receptor dataset: an optional extended
// tabulation covering the full receptor complement and the standard
// cones-only tabulation.
type Source struct {
	// Extended is the full-complement tabulation, nil when the dataset
	// carries none
	Extended *Table

	// Cones is the standard three-class tabulation
	Cones *Table
}

// Resolve selects the sensitivity matrix a run will use: the extended
// tabulation when present, otherwise the cones-only one. Resolution
// happens once, before iteration starts, so every condition sees the
// same receptor complement.
func (s Source) Resolve() (*Sensitivities, error) {
	table, variant := s.Cones, ConesOnly
	if s.Extended != nil {
		table, variant = s.Extended, Extended
	}
	if table == nil {
		return nil, fmt.Errorf("excitation: receptor source has neither extended nor cones-only sensitivities")
	}
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("excitation: %s sensitivities invalid: %w", variant, err)
	}
	return &Sensitivities{
		Variant:     variant,
		Classes:     append([]string(nil), table.Classes...),
		Weights:     table.Weights,
		Wavelengths: append([]float64(nil), table.Wavelengths...),
	}, nil
}

func (t *Table) validate() error {
	if t.Weights == nil {
		return fmt.Errorf("nil weight matrix")
	}
	rows, cols := t.Weights.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("empty weight matrix %dx%d", rows, cols)
	}
	if len(t.Classes) != rows {
		return fmt.Errorf("%d class names for %d matrix rows", len(t.Classes), rows)
	}
	if len(t.Wavelengths) != cols {
		return fmt.Errorf("%d wavelengths for %d matrix columns", len(t.Wavelengths), cols)
	}
	return nil
}

// NumClasses returns the number of receptor classes (matrix rows).
func (s *Sensitivities) NumClasses() int {
	r, _ := s.Weights.Dims()
	return r
}

// sameSampling reports whether two wavelength vectors agree entry by
// entry within a tight absolute tolerance.
func sameSampling(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

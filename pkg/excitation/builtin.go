package excitation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// receptorShape describes one smooth sensitivity lobe.
type receptorShape struct {
	name  string
	peak  float64 // nm
	sigma float64 // nm
}

// Peak positions follow the accepted human photoreceptor maxima.
var (
	coneShapes = []receptorShape{
		{"L", 566, 45},
		{"M", 541, 40},
		{"S", 441, 28},
	}
	rodShape = receptorShape{"Rod", 498, 35}
)

// GaussianReceptors builds smooth Gaussian approximations of the human
// photoreceptor sensitivities on the given wavelength sampling. The
// returned source always carries the cones-only tabulation; when extended
// is true it also carries an extended tabulation with the rod class
// appended. Every class peaks at 1.
//
// These curves stand in for measured fundamentals when no receptor
// dataset is supplied. They keep the spectral ordering of the real
// receptors without claiming colorimetric accuracy.
func GaussianReceptors(wavelengths []float64, extended bool) *Source {
	src := &Source{Cones: tabulate(coneShapes, wavelengths)}
	if extended {
		shapes := append(append([]receptorShape(nil), coneShapes...), rodShape)
		src.Extended = tabulate(shapes, wavelengths)
	}
	return src
}

func tabulate(shapes []receptorShape, wavelengths []float64) *Table {
	weights := mat.NewDense(len(shapes), len(wavelengths), nil)
	classes := make([]string, len(shapes))
	for i, sh := range shapes {
		classes[i] = sh.name
		for j, wl := range wavelengths {
			d := (wl - sh.peak) / sh.sigma
			weights.Set(i, j, math.Exp(-0.5*d*d))
		}
	}
	return &Table{
		Classes:     classes,
		Weights:     weights,
		Wavelengths: append([]float64(nil), wavelengths...),
	}
}

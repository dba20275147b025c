package excitation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"stim2cone/pkg/cube"
)

// Predict computes the excitation matrix E = W * C where W is the
// receptor sensitivity matrix (classes x bands) and C is the cube in
// cal format (bands x pixels). The result has one row per receptor
// class and one column per pixel.
//
// The cube must hold energy per wavelength band: the caller converts
// photon rates to energy and multiplies by the sampling bin width before
// calling Predict. The sensitivity tabulation must sit on the same
// wavelength sampling as the cube.
func Predict(perBand *cube.Cube, s *Sensitivities) (*mat.Dense, error) {
	if s == nil {
		return nil, fmt.Errorf("excitation: nil sensitivities")
	}
	rows, cols := s.Weights.Dims()
	if cols != perBand.Bands() {
		return nil, fmt.Errorf("excitation: sensitivity matrix covers %d bands but cube has %d",
			cols, perBand.Bands())
	}
	if !sameSampling(s.Wavelengths, perBand.Wavelengths) {
		return nil, fmt.Errorf("excitation: sensitivity sampling [%.1f..%.1f] does not match cube sampling [%.1f..%.1f]",
			s.Wavelengths[0], s.Wavelengths[len(s.Wavelengths)-1],
			perBand.Wavelengths[0], perBand.Wavelengths[len(perBand.Wavelengths)-1])
	}

	out := mat.NewDense(rows, perBand.Pixels(), nil)
	out.Mul(s.Weights, perBand.CalFormat())
	return out, nil
}

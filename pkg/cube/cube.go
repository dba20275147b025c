// Package cube provides the spectral radiance cube that carries stimulus
// data through the pipeline: a stack of spatial planes, one per wavelength
// band, with helpers for the cal-format matrix view and for converting
// photon units to energy units.
package cube

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Physical constants used by the quanta to energy conversion.
const (
	// PlanckConstant is h in joule seconds
	PlanckConstant = 6.62607015e-34

	// SpeedOfLight is c in meters per second
	SpeedOfLight = 2.99792458e8
)

// Cube holds spectral radiance samples over a spatial grid. Values are
// stored band-major so each wavelength plane is a contiguous run of
// Height*Width samples: index (band*Height + y)*Width + x. That layout
// makes the cal-format matrix (rows = bands, cols = pixels) a reshape of
// the same backing array rather than a copy.
type Cube struct {
	// Data is the sample array in band-major order
	Data []float64

	// Height is the number of rows in each plane
	Height int

	// Width is the number of columns in each plane
	Width int

	// Wavelengths is the sampling vector in nanometers, one entry per band
	Wavelengths []float64
}

// New creates a zero-filled cube over the given spatial grid and
// wavelength sampling. The sampling vector is copied.
func New(height, width int, wavelengths []float64) (*Cube, error) {
	if err := checkShape(height, width, wavelengths); err != nil {
		return nil, err
	}
	wls := make([]float64, len(wavelengths))
	copy(wls, wavelengths)
	return &Cube{
		Data:        make([]float64, height*width*len(wls)),
		Height:      height,
		Width:       width,
		Wavelengths: wls,
	}, nil
}

// FromData wraps an existing band-major sample array. The array is used
// directly, not copied; the sampling vector is copied.
func FromData(data []float64, height, width int, wavelengths []float64) (*Cube, error) {
	if err := checkShape(height, width, wavelengths); err != nil {
		return nil, err
	}
	if want := height * width * len(wavelengths); len(data) != want {
		return nil, fmt.Errorf("cube: data length %d does not match %dx%dx%d cube (%d samples)",
			len(data), height, width, len(wavelengths), want)
	}
	wls := make([]float64, len(wavelengths))
	copy(wls, wavelengths)
	return &Cube{Data: data, Height: height, Width: width, Wavelengths: wls}, nil
}

func checkShape(height, width int, wavelengths []float64) error {
	if height <= 0 || width <= 0 {
		return fmt.Errorf("cube: invalid spatial dimensions %dx%d", height, width)
	}
	if len(wavelengths) == 0 {
		return fmt.Errorf("cube: empty wavelength sampling")
	}
	for i := 1; i < len(wavelengths); i++ {
		if wavelengths[i] <= wavelengths[i-1] {
			return fmt.Errorf("cube: wavelength sampling must be strictly increasing, got %.4f after %.4f at index %d",
				wavelengths[i], wavelengths[i-1], i)
		}
	}
	if wavelengths[0] <= 0 {
		return fmt.Errorf("cube: wavelengths must be positive, got %.4f", wavelengths[0])
	}
	return nil
}

// Bands returns the number of wavelength planes.
func (c *Cube) Bands() int {
	return len(c.Wavelengths)
}

// Pixels returns the number of spatial samples in one plane.
func (c *Cube) Pixels() int {
	return c.Height * c.Width
}

// At returns the sample at row y, column x in the given band.
func (c *Cube) At(y, x, band int) float64 {
	return c.Data[(band*c.Height+y)*c.Width+x]
}

// Set stores a sample at row y, column x in the given band.
func (c *Cube) Set(y, x, band int, v float64) {
	c.Data[(band*c.Height+y)*c.Width+x] = v
}

// Plane returns the contiguous sample slice for one wavelength band.
// The slice aliases the cube's backing array; writes through it mutate
// the cube.
func (c *Cube) Plane(band int) []float64 {
	n := c.Pixels()
	return c.Data[band*n : (band+1)*n]
}

// PlaneMean returns the spatial mean of one wavelength plane.
func (c *Cube) PlaneMean(band int) float64 {
	return stat.Mean(c.Plane(band), nil)
}

// Clone returns a deep copy of the cube.
func (c *Cube) Clone() *Cube {
	data := make([]float64, len(c.Data))
	copy(data, c.Data)
	wls := make([]float64, len(c.Wavelengths))
	copy(wls, c.Wavelengths)
	return &Cube{Data: data, Height: c.Height, Width: c.Width, Wavelengths: wls}
}

// CalFormat returns the cube as a bands x pixels matrix: row b holds plane
// b flattened in row-major spatial order, so column p is the spectrum of
// pixel p. The matrix shares the cube's backing array; no data is copied.
func (c *Cube) CalFormat() *mat.Dense {
	return mat.NewDense(c.Bands(), c.Pixels(), c.Data)
}

// Scale returns a new cube with every sample multiplied by factor.
// Used to turn per-nanometer quantities into per-band quantities by
// multiplying with the sampling bin width.
func (c *Cube) Scale(factor float64) *Cube {
	out := c.Clone()
	floats.Scale(factor, out.Data)
	return out
}

// QuantaToEnergy converts a cube of photon rates into the equivalent
// energy rates, leaving the input untouched. Each band is scaled by the
// photon energy h*c/lambda at its wavelength, with lambda converted from
// nanometers to meters.
func QuantaToEnergy(c *Cube) *Cube {
	out := c.Clone()
	for b, wl := range out.Wavelengths {
		factor := PlanckConstant * SpeedOfLight / (wl * 1e-9)
		floats.Scale(factor, out.Plane(b))
	}
	return out
}

// BinWidth derives the common spacing of a uniform wavelength sampling in
// nanometers. The sampling must contain at least two entries and must be
// uniform to within a small relative tolerance.
func BinWidth(wavelengths []float64) (float64, error) {
	if len(wavelengths) < 2 {
		return 0, fmt.Errorf("cube: need at least two wavelengths to derive a bin width, got %d",
			len(wavelengths))
	}
	width := wavelengths[1] - wavelengths[0]
	for i := 2; i < len(wavelengths); i++ {
		step := wavelengths[i] - wavelengths[i-1]
		if math.Abs(step-width) > 1e-9*math.Abs(width) {
			return 0, fmt.Errorf("cube: non-uniform wavelength sampling: step %.6f nm at index %d, expected %.6f nm",
				step, i, width)
		}
	}
	return width, nil
}

package contrast

import (
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stim2cone/pkg/cube"
)

// Diagnostics records what the corrector did to each wavelength band.
// All slices run parallel to the cube's wavelength sampling.
type Diagnostics struct {
	// Wavelengths is the sampling the correction ran over, in nanometers
	Wavelengths []float64

	// Gains is the applied gain profile
	Gains []float64

	// Before holds the Michelson contrast of each band before correction
	Before []float64

	// Predicted holds the linear prediction Before*gain for each band
	Predicted []float64

	// Achieved holds the Michelson contrast measured after correction
	Achieved []float64
}

// Corrector applies a per-wavelength gain profile to radiance cubes while
// preserving each band's spatial mean. A corrector is built once per run
// from a fixed profile and holds no per-call state, so a single instance
// may serve concurrent conditions.
type Corrector struct {
	gains  []float64
	logger *zap.Logger
}

// NewCorrector builds a corrector for the given gain profile. An empty
// profile disables correction, which is the default path. The profile is
// copied. A nil logger falls back to a no-op logger.
func NewCorrector(gains []float64, logger *zap.Logger) *Corrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := make([]float64, len(gains))
	copy(g, gains)
	return &Corrector{gains: g, logger: logger}
}

// Enabled reports whether a non-empty gain profile was supplied.
func (k *Corrector) Enabled() bool {
	return len(k.gains) > 0
}

// Apply corrects the cube's contrast band by band and returns the result
// together with per-band diagnostics. Each band is transformed about its
// own spatial mean m as (plane-m)*gain+m, so the mean is preserved and
// only the modulation depth changes.
//
// Two cases leave the input untouched: an empty profile returns the input
// cube itself (the output is bit-identical to the uncorrected scene), and
// a profile whose length does not match the cube's band count is skipped
// with a logged warning. Both return nil diagnostics.
func (k *Corrector) Apply(c *cube.Cube) (*cube.Cube, *Diagnostics) {
	if !k.Enabled() {
		return c, nil
	}
	if len(k.gains) != c.Bands() {
		k.logger.Warn("gain profile length does not match cube bands, skipping correction",
			zap.Int("profileLength", len(k.gains)),
			zap.Int("cubeBands", c.Bands()))
		return c, nil
	}

	out := c.Clone()
	diag := &Diagnostics{
		Wavelengths: append([]float64(nil), out.Wavelengths...),
		Gains:       append([]float64(nil), k.gains...),
		Before:      make([]float64, out.Bands()),
		Predicted:   make([]float64, out.Bands()),
		Achieved:    make([]float64, out.Bands()),
	}

	// Bands are independent, so correct them in parallel. Each goroutine
	// touches only its own plane and its own diagnostics slots.
	var wg sync.WaitGroup
	for b := 0; b < out.Bands(); b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			plane := out.Plane(b)
			m := stat.Mean(plane, nil)
			gain := k.gains[b]

			diag.Before[b] = Michelson(plane)
			diag.Predicted[b] = diag.Before[b] * gain

			floats.AddConst(-m, plane)
			floats.Scale(gain, plane)
			floats.AddConst(m, plane)

			diag.Achieved[b] = Michelson(plane)
		}(b)
	}
	wg.Wait()

	k.logger.Debug("applied contrast correction",
		zap.Int("bands", out.Bands()),
		zap.Float64s("gains", diag.Gains))
	return out, diag
}

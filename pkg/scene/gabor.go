package scene

import (
	"fmt"
	"math"

	"stim2cone/internal/models"
)

// GaborParams controls synthesis of the pre-rendered stimulus grid. The
// lengths of PhasesDeg and Contrasts fix the condition grid shape.
type GaborParams struct {
	// Size is the patch width and height in pixels
	Size int

	// Cycles is the number of carrier cycles across the patch
	Cycles float64

	// SigmaFraction sets the Gaussian envelope sigma as a fraction of
	// the patch size
	SigmaFraction float64

	// Background is the mean drive level the modulation rides on.
	// It must leave headroom for full modulation, so it lives in (0, 0.5]
	Background float64

	// PhasesDeg lists the carrier phase shifts of the grid in degrees
	PhasesDeg []float64

	// Contrasts lists the contrast points of the grid, each in [0, 1]
	Contrasts []float64
}

// DefaultGaborParams returns a small grid suitable for quick runs.
func DefaultGaborParams() GaborParams {
	return GaborParams{
		Size:          64,
		Cycles:        4,
		SigmaFraction: 0.15,
		Background:    0.5,
		PhasesDeg:     []float64{0, 90},
		Contrasts:     []float64{0.2, 0.8},
	}
}

func (p GaborParams) validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("scene: gabor size must be positive, got %d", p.Size)
	}
	if p.Cycles <= 0 {
		return fmt.Errorf("scene: gabor cycles must be positive, got %g", p.Cycles)
	}
	if p.SigmaFraction <= 0 {
		return fmt.Errorf("scene: gabor sigma fraction must be positive, got %g", p.SigmaFraction)
	}
	if p.Background <= 0 || p.Background > 0.5 {
		return fmt.Errorf("scene: gabor background must be in (0, 0.5] to leave modulation headroom, got %g",
			p.Background)
	}
	if len(p.PhasesDeg) == 0 || len(p.Contrasts) == 0 {
		return fmt.Errorf("scene: gabor grid needs at least one phase and one contrast")
	}
	for _, c := range p.Contrasts {
		if c < 0 || c > 1 {
			return fmt.Errorf("scene: gabor contrast must be in [0, 1], got %g", c)
		}
	}
	return nil
}

// GaborSet renders the full phase x contrast grid of windowed grating
// patches in display settings space. Every patch keeps its drive levels
// in [0, 1] so any linear display can show it.
func GaborSet(p GaborParams) (*models.StimulusSet, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	images := make([][]*models.StimulusImage, len(p.PhasesDeg))
	for pi, phase := range p.PhasesDeg {
		images[pi] = make([]*models.StimulusImage, len(p.Contrasts))
		for ci, c := range p.Contrasts {
			img, err := models.NewStimulusImage(
				renderGabor(p.Size, p.Cycles, p.SigmaFraction, p.Background, c, phase),
				p.Size, p.Size, c, phase)
			if err != nil {
				return nil, err
			}
			images[pi][ci] = img
		}
	}
	return models.NewStimulusSet(images)
}

// renderGabor evaluates background*(1 + contrast*envelope*carrier) over
// the patch. The carrier is a vertical grating running along x, the
// envelope a circular Gaussian centered on the patch.
func renderGabor(size int, cycles, sigmaFraction, background, contrast, phaseDeg float64) []float64 {
	settings := make([]float64, size*size)
	center := float64(size-1) / 2
	sigma := sigmaFraction * float64(size)
	phase := phaseDeg * math.Pi / 180

	for y := 0; y < size; y++ {
		dy := float64(y) - center
		for x := 0; x < size; x++ {
			dx := float64(x) - center
			envelope := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			carrier := math.Sin(2*math.Pi*cycles*float64(x)/float64(size) + phase)
			settings[y*size+x] = background * (1 + contrast*envelope*carrier)
		}
	}
	return settings
}

package scene

import (
	"context"
	"fmt"
	"math"

	"stim2cone/internal/models"
	"stim2cone/pkg/cube"
)

// Display is the minimal physical display model the synthetic builder
// renders through: how a drive level maps to spectral photon output and
// how pixels map to physical size.
type Display struct {
	// Name labels the display
	Name string

	// Wavelengths is the emission sampling in nanometers
	Wavelengths []float64

	// SPD is the full-drive spectral photon output of one pixel, in
	// photons per second per nanometer, one entry per wavelength
	SPD []float64

	// PixelPitchMeters is the physical size of one pixel
	PixelPitchMeters float64

	// ViewingDistanceMeters is the distance from display to observer
	ViewingDistanceMeters float64
}

// Validate checks the display for internal consistency.
func (d *Display) Validate() error {
	if len(d.Wavelengths) == 0 {
		return fmt.Errorf("scene: display %q has no wavelength sampling", d.Name)
	}
	if len(d.SPD) != len(d.Wavelengths) {
		return fmt.Errorf("scene: display %q has %d SPD entries for %d wavelengths",
			d.Name, len(d.SPD), len(d.Wavelengths))
	}
	if d.PixelPitchMeters <= 0 {
		return fmt.Errorf("scene: display %q pixel pitch must be positive, got %g",
			d.Name, d.PixelPitchMeters)
	}
	if d.ViewingDistanceMeters <= 0 {
		return fmt.Errorf("scene: display %q viewing distance must be positive, got %g",
			d.Name, d.ViewingDistanceMeters)
	}
	return nil
}

// SyntheticBuilder renders stimulus images through a linear display
// model: each pixel emits the display SPD scaled by its drive level.
// It is the in-process stand-in for an external scene renderer.
type SyntheticBuilder struct{}

// NewSyntheticBuilder returns a builder rendering through the linear
// display model.
func NewSyntheticBuilder() *SyntheticBuilder {
	return &SyntheticBuilder{}
}

// Build renders the stimulus into a scene. The photon cube gets one
// plane per display wavelength with plane values settings*SPD; the patch
// width follows from the pixel pitch and the field of view from the
// viewing distance.
func (b *SyntheticBuilder) Build(ctx context.Context, stim *models.StimulusImage, display *Display) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stim == nil {
		return nil, fmt.Errorf("scene: nil stimulus image")
	}
	if display == nil {
		return nil, fmt.Errorf("scene: nil display")
	}
	if err := display.Validate(); err != nil {
		return nil, err
	}

	c, err := cube.New(stim.Height, stim.Width, display.Wavelengths)
	if err != nil {
		return nil, fmt.Errorf("scene: building radiance cube: %w", err)
	}
	for band := 0; band < c.Bands(); band++ {
		plane := c.Plane(band)
		spd := display.SPD[band]
		for i, v := range stim.Settings {
			plane[i] = v * spd
		}
	}

	width := float64(stim.Width) * display.PixelPitchMeters
	fov := 2 * math.Atan2(width/2, display.ViewingDistanceMeters) * 180 / math.Pi

	return &Scene{
		Name:        fmt.Sprintf("stimulus c=%.4f phase=%.1fdeg on %s", stim.NominalContrast, stim.PhaseDeg, display.Name),
		Photons:     c,
		WidthMeters: width,
		FOVDegrees:  fov,
	}, nil
}

// Package scene models the spatial-spectral scene a stimulus produces on
// a display, and the narrow interface the pipeline uses to obtain one.
package scene

import (
	"context"
	"fmt"
	"math"

	"stim2cone/internal/models"
	"stim2cone/pkg/cube"
)

// Scene describes a stimulus as realized by a display: a photon radiance
// cube plus the physical geometry of the imaged patch.
type Scene struct {
	// Name labels the scene in logs and reports
	Name string

	// Photons holds the radiance cube in photons per second per
	// nanometer at each pixel
	Photons *cube.Cube

	// WidthMeters is the physical width of the imaged patch
	WidthMeters float64

	// FOVDegrees is the horizontal field of view the patch subtends at
	// the viewer
	FOVDegrees float64
}

// Energy returns the scene radiance converted to energy units per
// nanometer, leaving the photon cube untouched.
func (s *Scene) Energy() *cube.Cube {
	return cube.QuantaToEnergy(s.Photons)
}

// Builder turns a stimulus image into a scene. Implementations may be
// expensive (an external renderer) and must honor context cancellation.
// The pipeline obtains every scene through this interface.
type Builder interface {
	Build(ctx context.Context, stim *models.StimulusImage, display *Display) (*Scene, error)
}

// GeometryError reports a scene whose realized geometry deviates from
// the nominal geometry by more than the permitted fraction. It aborts
// the whole run when it surfaces.
type GeometryError struct {
	// Axis names the offending quantity, "width" or "fov"
	Axis string

	// Nominal and Realized are the expected and actual values
	Nominal  float64
	Realized float64

	// Deviation is the relative deviation |realized-nominal|/nominal
	Deviation float64

	// Limit is the permitted relative deviation
	Limit float64
}

// Error formats the failure with the offending deviation.
func (e *GeometryError) Error() string {
	return fmt.Sprintf("scene: realized %s %.6g deviates from nominal %.6g by %.3f%% (limit %.3f%%)",
		e.Axis, e.Realized, e.Nominal, e.Deviation*100, e.Limit*100)
}

// CheckGeometry compares the scene's realized width and field of view
// against nominal values. A relative deviation above limit on either
// axis yields a *GeometryError naming the first offending axis.
func CheckGeometry(s *Scene, nominalWidthMeters, nominalFOVDegrees, limit float64) error {
	if err := checkAxis("width", nominalWidthMeters, s.WidthMeters, limit); err != nil {
		return err
	}
	return checkAxis("fov", nominalFOVDegrees, s.FOVDegrees, limit)
}

func checkAxis(axis string, nominal, realized, limit float64) error {
	if nominal <= 0 {
		return fmt.Errorf("scene: nominal %s must be positive, got %g", axis, nominal)
	}
	dev := math.Abs(realized-nominal) / nominal
	if dev > limit {
		return &GeometryError{
			Axis:      axis,
			Nominal:   nominal,
			Realized:  realized,
			Deviation: dev,
			Limit:     limit,
		}
	}
	return nil
}

package models

import (
	"fmt"
)

// ConditionIndex identifies one stimulus instance in the experiment grid.
// The grid is phase-shift major: conditions are ordered phase first,
// contrast point second.
type ConditionIndex struct {
	// Phase is the 0-based index along the phase-shift axis
	Phase int

	// Contrast is the 0-based index along the contrast-point axis
	Contrast int
}

// String formats the index for log and error messages.
func (c ConditionIndex) String() string {
	return fmt.Sprintf("phase %d, contrast %d", c.Phase, c.Contrast)
}

// StimulusImage is one pre-rendered stimulus patch in display settings space.
type StimulusImage struct {
	// Settings holds per-pixel display drive levels in [0, 1] as a 1D
	// array in row-major order
	Settings []float64

	// Width is the image width in pixels
	Width int

	// Height is the image height in pixels
	Height int

	// NominalContrast is the Michelson contrast the patch was rendered at
	NominalContrast float64

	// PhaseDeg is the spatial phase of the carrier in degrees
	PhaseDeg float64
}

// NewStimulusImage creates a stimulus image and checks that the pixel data
// matches the declared dimensions.
func NewStimulusImage(settings []float64, width, height int, contrast, phaseDeg float64) (*StimulusImage, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("models: invalid stimulus dimensions %dx%d", width, height)
	}
	if len(settings) != width*height {
		return nil, fmt.Errorf("models: settings length %d does not match %dx%d image",
			len(settings), width, height)
	}
	return &StimulusImage{
		Settings:        settings,
		Width:           width,
		Height:          height,
		NominalContrast: contrast,
		PhaseDeg:        phaseDeg,
	}, nil
}

// StimulusSet is the rectangular collection of pre-rendered stimulus images,
// indexed [phase][contrast]. The grid shape defines the condition space of a
// run. Images are treated as immutable once stored.
type StimulusSet struct {
	images [][]*StimulusImage
}

// NewStimulusSet wraps a rectangular, fully populated image grid.
func NewStimulusSet(images [][]*StimulusImage) (*StimulusSet, error) {
	if len(images) == 0 || len(images[0]) == 0 {
		return nil, fmt.Errorf("models: stimulus set must contain at least one image")
	}
	width := len(images[0])
	for p, row := range images {
		if len(row) != width {
			return nil, fmt.Errorf("models: ragged stimulus grid: row %d has %d entries, expected %d",
				p, len(row), width)
		}
		for c, img := range row {
			if img == nil {
				return nil, fmt.Errorf("models: missing stimulus image at phase %d, contrast %d", p, c)
			}
		}
	}
	return &StimulusSet{images: images}, nil
}

// NumPhases returns the number of phase-shift levels in the grid.
func (s *StimulusSet) NumPhases() int {
	return len(s.images)
}

// NumContrasts returns the number of contrast points in the grid.
func (s *StimulusSet) NumContrasts() int {
	return len(s.images[0])
}

// Conditions lists every condition index in row-major order
// (phase outer, contrast inner).
func (s *StimulusSet) Conditions() []ConditionIndex {
	out := make([]ConditionIndex, 0, s.NumPhases()*s.NumContrasts())
	for p := range s.images {
		for c := range s.images[p] {
			out = append(out, ConditionIndex{Phase: p, Contrast: c})
		}
	}
	return out
}

// Take removes and returns the image for the given condition, transferring
// ownership to the caller so the set no longer pins its memory. Taking the
// same condition twice is an error. Concurrent Take calls are safe as long
// as each condition is taken exactly once, since distinct conditions touch
// distinct slots.
func (s *StimulusSet) Take(ci ConditionIndex) (*StimulusImage, error) {
	if ci.Phase < 0 || ci.Phase >= s.NumPhases() || ci.Contrast < 0 || ci.Contrast >= s.NumContrasts() {
		return nil, fmt.Errorf("models: condition (%s) outside %dx%d grid",
			ci, s.NumPhases(), s.NumContrasts())
	}
	img := s.images[ci.Phase][ci.Contrast]
	if img == nil {
		return nil, fmt.Errorf("models: stimulus for condition (%s) already taken", ci)
	}
	s.images[ci.Phase][ci.Contrast] = nil
	return img, nil
}

// Clone returns a new set over the same images. The copies share image
// pointers, so taking from one set does not empty the other; this is the
// cheap way to feed the same stimuli to a reference pass and a main pass.
func (s *StimulusSet) Clone() *StimulusSet {
	images := make([][]*StimulusImage, len(s.images))
	for p, row := range s.images {
		images[p] = make([]*StimulusImage, len(row))
		copy(images[p], row)
	}
	return &StimulusSet{images: images}
}

package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/cube"
	"stim2cone/pkg/excitation"
	"stim2cone/pkg/scene"
)

// Entry is the committed outcome of one condition.
type Entry struct {
	// Condition locates the entry in the grid
	Condition models.ConditionIndex

	// Scene is the scene the prediction ran on. When correction was
	// active its cube is the corrected one.
	Scene *scene.Scene

	// Correction holds the corrector diagnostics, nil when correction
	// was disabled
	Correction *contrast.Diagnostics

	// EnergyPerBand is the energy-per-band cube the prediction ran on
	EnergyPerBand *cube.Cube

	// Excitations is the predicted receptor excitation matrix,
	// classes x pixels
	Excitations *mat.Dense

	// MaxRelativeDeviation is the worst deviation the consistency gate
	// observed for this condition; zero when the gate was skipped
	MaxRelativeDeviation float64
}

// CalFormat returns the cal-format view of the energy cube the
// prediction ran on: rows are wavelength bands, columns are pixels.
func (e *Entry) CalFormat() *mat.Dense {
	return e.EnergyPerBand.CalFormat()
}

// Aggregate collects one entry per condition of a run. Each slot is
// written exactly once; distinct conditions own distinct slots, so
// parallel commits need no extra locking and the whole aggregate becomes
// safe to read once Run has returned.
type Aggregate struct {
	// RunID tags the run in logs, reports and persistence
	RunID string

	// Variant records the receptor complement the run resolved
	Variant excitation.Variant

	entries [][]*Entry
}

func newAggregate(phases, contrasts int, runID string, variant excitation.Variant) *Aggregate {
	entries := make([][]*Entry, phases)
	for p := range entries {
		entries[p] = make([]*Entry, contrasts)
	}
	return &Aggregate{RunID: runID, Variant: variant, entries: entries}
}

// commit stores the entry in its condition slot. Writing a slot twice or
// writing outside the grid is a programming error and is reported as one.
func (a *Aggregate) commit(e *Entry) error {
	ci := e.Condition
	if ci.Phase < 0 || ci.Phase >= len(a.entries) || ci.Contrast < 0 || ci.Contrast >= len(a.entries[0]) {
		return fmt.Errorf("pipeline: commit for condition (%s) outside %dx%d grid",
			ci, len(a.entries), len(a.entries[0]))
	}
	if a.entries[ci.Phase][ci.Contrast] != nil {
		return fmt.Errorf("pipeline: condition (%s) committed twice", ci)
	}
	a.entries[ci.Phase][ci.Contrast] = e
	return nil
}

// At returns the entry for a condition, if one was committed.
func (a *Aggregate) At(ci models.ConditionIndex) (*Entry, bool) {
	if ci.Phase < 0 || ci.Phase >= len(a.entries) || ci.Contrast < 0 || ci.Contrast >= len(a.entries[0]) {
		return nil, false
	}
	e := a.entries[ci.Phase][ci.Contrast]
	return e, e != nil
}

// NumPhases returns the phase-shift extent of the grid.
func (a *Aggregate) NumPhases() int {
	return len(a.entries)
}

// NumContrasts returns the contrast-point extent of the grid.
func (a *Aggregate) NumContrasts() int {
	return len(a.entries[0])
}

// Len counts the committed entries.
func (a *Aggregate) Len() int {
	n := 0
	for _, row := range a.entries {
		for _, e := range row {
			if e != nil {
				n++
			}
		}
	}
	return n
}

// Entries lists the committed entries in row-major condition order.
func (a *Aggregate) Entries() []*Entry {
	out := make([]*Entry, 0, a.Len())
	for _, row := range a.entries {
		for _, e := range row {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

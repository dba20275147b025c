// Package visualization renders run artifacts: per-condition contrast
// plots, a static HTML run report, and grayscale exports of radiance
// planes. Everything hangs off pipeline checkpoints so the core loop
// stays free of rendering concerns.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/pipeline"
	"stim2cone/pkg/scene"
)

// Plotter is a pipeline observer that records correction diagnostics and
// commit summaries during a run and renders them afterwards. It is safe
// for concurrent use, so it can watch parallel runs.
type Plotter struct {
	mu sync.Mutex

	diags    map[models.ConditionIndex]*contrast.Diagnostics
	geometry map[models.ConditionIndex]geometrySample
	commits  map[models.ConditionIndex]commitSummary

	runID     string
	variant   string
	phases    int
	contrasts int
}

type geometrySample struct {
	WidthMeters float64
	FOVDegrees  float64
}

type commitSummary struct {
	SceneName            string
	MaxRelativeDeviation float64
}

// NewPlotter creates an empty recorder. Attach it to a run through
// pipeline.Params.Observers, then call WritePlots or WriteReport once
// the run has finished.
func NewPlotter() *Plotter {
	return &Plotter{
		diags:    make(map[models.ConditionIndex]*contrast.Diagnostics),
		geometry: make(map[models.ConditionIndex]geometrySample),
		commits:  make(map[models.ConditionIndex]commitSummary),
	}
}

// SceneBuilt records the realized geometry of the condition's scene.
func (p *Plotter) SceneBuilt(ci models.ConditionIndex, sc *scene.Scene) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geometry[ci] = geometrySample{WidthMeters: sc.WidthMeters, FOVDegrees: sc.FOVDegrees}
}

// CorrectionApplied keeps the per-band diagnostics for plotting.
func (p *Plotter) CorrectionApplied(ci models.ConditionIndex, diag *contrast.Diagnostics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diags[ci] = diag
}

// ConditionCommitted records the commit summary.
func (p *Plotter) ConditionCommitted(ci models.ConditionIndex, entry *pipeline.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commits[ci] = commitSummary{
		SceneName:            entry.Scene.Name,
		MaxRelativeDeviation: entry.MaxRelativeDeviation,
	}
}

// RunCompleted captures the run identity for titles and file names.
func (p *Plotter) RunCompleted(agg *pipeline.Aggregate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = agg.RunID
	p.variant = agg.Variant.String()
	p.phases = agg.NumPhases()
	p.contrasts = agg.NumContrasts()
}

// sortedConditions returns the recorded commit conditions in row-major
// order so output files come out deterministic.
func (p *Plotter) sortedConditions() []models.ConditionIndex {
	out := make([]models.ConditionIndex, 0, len(p.commits))
	for ci := range p.commits {
		out = append(out, ci)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].Contrast < out[j].Contrast
	})
	return out
}

// WritePlots renders the recorded run into PNG files under outputDir:
// one contrast plot per corrected condition and, when the consistency
// gate ran, a deviation plot across the grid.
func (p *Plotter) WritePlots(outputDir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("visualization: creating output dir: %w", err)
	}

	for _, ci := range p.sortedConditions() {
		diag, ok := p.diags[ci]
		if !ok {
			continue
		}
		file := filepath.Join(outputDir, fmt.Sprintf("correction_p%02d_c%02d.png", ci.Phase, ci.Contrast))
		if err := saveCorrectionPlot(ci, diag, file); err != nil {
			return err
		}
	}

	if p.hasDeviations() {
		file := filepath.Join(outputDir, "deviations.png")
		if err := p.saveDeviationPlot(file); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plotter) hasDeviations() bool {
	for _, c := range p.commits {
		if c.MaxRelativeDeviation > 0 {
			return true
		}
	}
	return false
}

// saveCorrectionPlot draws contrast before, predicted and achieved over
// wavelength for one condition.
func saveCorrectionPlot(ci models.ConditionIndex, diag *contrast.Diagnostics, file string) error {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Contrast correction (phase %d, contrast point %d)", ci.Phase, ci.Contrast)
	pl.X.Label.Text = "Wavelength (nm)"
	pl.Y.Label.Text = "Michelson contrast"

	series := []struct {
		name   string
		values []float64
		color  color.RGBA
	}{
		{"before", diag.Before, color.RGBA{R: 70, G: 130, B: 180, A: 255}},
		{"predicted", diag.Predicted, color.RGBA{R: 220, G: 150, B: 30, A: 255}},
		{"achieved", diag.Achieved, color.RGBA{R: 60, G: 160, B: 70, A: 255}},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(diag.Wavelengths))
		for i, wl := range diag.Wavelengths {
			pts[i].X = wl
			pts[i].Y = s.values[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("visualization: building %s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		pl.Add(line)
		pl.Legend.Add(s.name, line)
	}
	pl.Legend.Top = true

	if err := pl.Save(8*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("visualization: saving %s: %w", file, err)
	}
	return nil
}

// saveDeviationPlot draws the per-condition consistency deviations in
// row-major condition order.
func (p *Plotter) saveDeviationPlot(file string) error {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Consistency deviations (run %s)", p.runID)
	pl.X.Label.Text = "Condition (row-major)"
	pl.Y.Label.Text = "Max relative deviation"

	conditions := p.sortedConditions()
	pts := make(plotter.XYs, len(conditions))
	for i, ci := range conditions {
		pts[i].X = float64(i)
		pts[i].Y = p.commits[ci].MaxRelativeDeviation
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("visualization: building deviation line: %w", err)
	}
	line.Color = color.RGBA{R: 180, G: 60, B: 60, A: 255}
	line.Width = vg.Points(1.5)
	pl.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("visualization: building deviation points: %w", err)
	}
	pl.Add(scatter)

	if err := pl.Save(8*vg.Inch, 4*vg.Inch, file); err != nil {
		return fmt.Errorf("visualization: saving %s: %w", file, err)
	}
	return nil
}

package visualization

import (
	"context"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/cube"
	"stim2cone/pkg/excitation"
	"stim2cone/pkg/pipeline"
	"stim2cone/pkg/scene"
)

func createTestCube(t *testing.T) *cube.Cube {
	t.Helper()
	c, err := cube.FromData([]float64{
		0, 0.5, 1, 0.25, // band 0
		2, 2, 2, 2, // band 1, uniform
	}, 2, 2, []float64{500, 510})
	require.NoError(t, err)
	return c
}

func TestViewerExtractPlane(t *testing.T) {
	v := NewViewer(createTestCube(t))

	img, err := v.ExtractPlane(0)
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, 2, bounds.Dx())
	assert.Equal(t, 2, bounds.Dy())

	gray, ok := img.(*image.Gray16)
	require.True(t, ok, "expected *image.Gray16, got %T", img)

	// The plane maximum maps to full white, zero to black.
	assert.Equal(t, uint16(65535), gray.Gray16At(0, 1).Y)
	assert.Equal(t, uint16(0), gray.Gray16At(0, 0).Y)
	half := float64(gray.Gray16At(1, 0).Y)
	assert.InDelta(t, 32767, half, 1.0, "half the maximum maps to mid gray")

	_, err = v.ExtractPlane(2)
	assert.Error(t, err)
	_, err = v.ExtractPlane(-1)
	assert.Error(t, err)
}

func TestViewerUniformPlane(t *testing.T) {
	v := NewViewer(createTestCube(t))

	img, err := v.ExtractPlane(1)
	require.NoError(t, err)

	gray := img.(*image.Gray16)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := gray.Gray16At(x, y).Y; got != 65535 {
				t.Errorf("Expected uniform plane to render full white, got %d at (%d,%d)", got, x, y)
			}
		}
	}
}

func TestViewerSavePlaneSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	outputDir := filepath.Join(t.TempDir(), "planes")
	v := NewViewer(createTestCube(t))

	require.NoError(t, v.SavePlaneSequence(outputDir))

	for _, name := range []string{"plane_000_500nm.jpg", "plane_001_510nm.jpg"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); os.IsNotExist(err) {
			t.Errorf("Expected plane file does not exist: %s", name)
		}
	}
}

func createTestDiagnostics() *contrast.Diagnostics {
	return &contrast.Diagnostics{
		Wavelengths: []float64{500, 510, 520},
		Gains:       []float64{0.5, 0.5, 0.5},
		Before:      []float64{0.8, 0.8, 0.8},
		Predicted:   []float64{0.4, 0.4, 0.4},
		Achieved:    []float64{0.4, 0.4, 0.4},
	}
}

func TestPlotterWritePlots(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	p := NewPlotter()
	ci := models.ConditionIndex{Phase: 0, Contrast: 1}
	p.SceneBuilt(ci, &scene.Scene{Name: "s", WidthMeters: 0.01, FOVDegrees: 1})
	p.CorrectionApplied(ci, createTestDiagnostics())
	p.ConditionCommitted(ci, &pipeline.Entry{
		Condition:            ci,
		Scene:                &scene.Scene{Name: "s"},
		MaxRelativeDeviation: 2e-6,
	})

	dir := t.TempDir()
	require.NoError(t, p.WritePlots(dir))

	if _, err := os.Stat(filepath.Join(dir, "correction_p00_c01.png")); os.IsNotExist(err) {
		t.Error("Expected correction plot was not written")
	}
	if _, err := os.Stat(filepath.Join(dir, "deviations.png")); os.IsNotExist(err) {
		t.Error("Expected deviation plot was not written")
	}
}

func TestPlotterWriteReport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	p := NewPlotter()
	ci := models.ConditionIndex{}
	p.CorrectionApplied(ci, createTestDiagnostics())
	p.ConditionCommitted(ci, &pipeline.Entry{
		Condition: ci,
		Scene:     &scene.Scene{Name: "s"},
	})

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, p.WriteReport(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "p0 c0")
}

// TestPlotterWatchesRealRun wires the plotter into an actual pipeline
// run so the observer contract stays honest.
func TestPlotterWatchesRealRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	gp := scene.DefaultGaborParams()
	gp.Size = 8
	gp.PhasesDeg = []float64{0}
	gp.Contrasts = []float64{0.5}
	set, err := scene.GaborSet(gp)
	require.NoError(t, err)

	wls := []float64{500, 510, 520}
	d := &scene.Display{
		Name:                  "unit",
		Wavelengths:           wls,
		SPD:                   []float64{1e10, 1e10, 1e10},
		PixelPitchMeters:      0.0005,
		ViewingDistanceMeters: 0.57,
	}
	width := float64(gp.Size) * d.PixelPitchMeters
	fov := 2 * math.Atan2(width/2, d.ViewingDistanceMeters) * 180 / math.Pi

	p := NewPlotter()
	params := &pipeline.Params{
		Stimuli:            set,
		Display:            d,
		Builder:            scene.NewSyntheticBuilder(),
		Receptors:          *excitation.GaussianReceptors(wls, false),
		MTFGains:           []float64{0.9, 0.9, 0.9},
		NominalWidthMeters: width,
		NominalFOVDegrees:  fov,
		Observers:          []pipeline.Observer{p},
	}

	it, err := pipeline.New(params)
	require.NoError(t, err)
	agg, err := it.Run(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, p.WriteReport(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), agg.RunID),
		"report must carry the run id in its subtitle")
}

package scene

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/cube"
)

func createTestDisplay() *Display {
	return &Display{
		Name:                  "test-display",
		Wavelengths:           []float64{500, 510},
		SPD:                   []float64{1e12, 2e12},
		PixelPitchMeters:      0.0005,
		ViewingDistanceMeters: 0.57,
	}
}

func createTestStimulus(t *testing.T) *models.StimulusImage {
	t.Helper()
	img, err := models.NewStimulusImage([]float64{0, 0.25, 0.5, 1}, 2, 2, 0.5, 0)
	require.NoError(t, err)
	return img
}

func TestDisplayValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Display)
		ok     bool
	}{
		{"valid", func(d *Display) {}, true},
		{"no sampling", func(d *Display) { d.Wavelengths = nil }, false},
		{"spd length mismatch", func(d *Display) { d.SPD = []float64{1} }, false},
		{"zero pitch", func(d *Display) { d.PixelPitchMeters = 0 }, false},
		{"negative distance", func(d *Display) { d.ViewingDistanceMeters = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := createTestDisplay()
			tt.mutate(d)
			err := d.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSyntheticBuilderRendersPhotons(t *testing.T) {
	b := NewSyntheticBuilder()
	d := createTestDisplay()
	stim := createTestStimulus(t)

	sc, err := b.Build(context.Background(), stim, d)
	require.NoError(t, err)
	require.NotNil(t, sc.Photons)

	assert.Equal(t, 2, sc.Photons.Bands())
	assert.Equal(t, 4, sc.Photons.Pixels())

	// Each plane is the settings image scaled by the display output.
	for band, spd := range d.SPD {
		for i, v := range stim.Settings {
			y, x := i/2, i%2
			assert.Equal(t, v*spd, sc.Photons.At(y, x, band),
				"band %d pixel %d", band, i)
		}
	}

	assert.InDelta(t, 2*d.PixelPitchMeters, sc.WidthMeters, 1e-12)
	assert.NotEmpty(t, sc.Name)
}

func TestSyntheticBuilderGeometry(t *testing.T) {
	// Two pixels of half a meter each put the patch edges at 45 degrees
	// when viewed from half a meter away.
	d := &Display{
		Name:                  "wide",
		Wavelengths:           []float64{550},
		SPD:                   []float64{1},
		PixelPitchMeters:      0.5,
		ViewingDistanceMeters: 0.5,
	}
	img, err := models.NewStimulusImage([]float64{1, 1}, 2, 1, 0, 0)
	require.NoError(t, err)

	sc, err := NewSyntheticBuilder().Build(context.Background(), img, d)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sc.WidthMeters, 1e-12)
	assert.InDelta(t, 90.0, sc.FOVDegrees, 1e-9)
}

func TestSyntheticBuilderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyntheticBuilder().Build(ctx, createTestStimulus(t), createTestDisplay())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticBuilderRejectsBadInput(t *testing.T) {
	b := NewSyntheticBuilder()
	ctx := context.Background()

	_, err := b.Build(ctx, nil, createTestDisplay())
	assert.Error(t, err)

	_, err = b.Build(ctx, createTestStimulus(t), nil)
	assert.Error(t, err)

	bad := createTestDisplay()
	bad.SPD = bad.SPD[:1]
	_, err = b.Build(ctx, createTestStimulus(t), bad)
	assert.Error(t, err)
}

func TestSceneEnergy(t *testing.T) {
	c, err := cube.FromData([]float64{1e12}, 1, 1, []float64{500})
	require.NoError(t, err)
	sc := &Scene{Photons: c}

	e := sc.Energy()
	want := 1e12 * cube.PlanckConstant * cube.SpeedOfLight / (500 * 1e-9)
	assert.InEpsilon(t, want, e.At(0, 0, 0), 1e-12)
	assert.Equal(t, 1e12, c.At(0, 0, 0), "photon cube must keep its units")
}

func TestCheckGeometry(t *testing.T) {
	sc := &Scene{WidthMeters: 0.1, FOVDegrees: 10}

	t.Run("within limit", func(t *testing.T) {
		assert.NoError(t, CheckGeometry(sc, 0.1005, 10.05, 0.01))
	})

	t.Run("width deviation beyond limit", func(t *testing.T) {
		err := CheckGeometry(sc, 0.1015228, 10, 0.01)
		require.Error(t, err)

		var gerr *GeometryError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "width", gerr.Axis)
		assert.Greater(t, gerr.Deviation, 0.01)
		assert.Contains(t, err.Error(), "%")
	})

	t.Run("fov deviation beyond limit", func(t *testing.T) {
		err := CheckGeometry(sc, 0.1, 10.2, 0.01)
		require.Error(t, err)

		var gerr *GeometryError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "fov", gerr.Axis)
	})

	t.Run("bad nominal", func(t *testing.T) {
		err := CheckGeometry(sc, 0, 10, 0.01)
		require.Error(t, err)
		var gerr *GeometryError
		assert.False(t, errors.As(err, &gerr),
			"a nonsense nominal is a configuration error, not a geometry deviation")
	})
}

func TestGaborSetGridShape(t *testing.T) {
	p := DefaultGaborParams()
	p.PhasesDeg = []float64{0, 90, 180}
	p.Contrasts = []float64{0.1, 0.5}

	set, err := GaborSet(p)
	require.NoError(t, err)

	assert.Equal(t, 3, set.NumPhases())
	assert.Equal(t, 2, set.NumContrasts())

	img, err := set.Take(models.ConditionIndex{Phase: 2, Contrast: 1})
	require.NoError(t, err)
	assert.Equal(t, p.Size, img.Width)
	assert.Equal(t, p.Size, img.Height)
	assert.Equal(t, 0.5, img.NominalContrast)
	assert.Equal(t, 180.0, img.PhaseDeg)
}

func TestGaborSettingsStayInRange(t *testing.T) {
	p := DefaultGaborParams()
	p.Contrasts = []float64{1}
	p.Background = 0.5

	set, err := GaborSet(p)
	require.NoError(t, err)

	img, err := set.Take(models.ConditionIndex{})
	require.NoError(t, err)
	for i, v := range img.Settings {
		if v < 0 || v > 1 {
			t.Fatalf("settings[%d] = %v outside [0, 1]", i, v)
		}
	}
}

func TestGaborZeroContrastIsUniform(t *testing.T) {
	p := DefaultGaborParams()
	p.Contrasts = []float64{0}
	p.PhasesDeg = []float64{45}

	set, err := GaborSet(p)
	require.NoError(t, err)

	img, err := set.Take(models.ConditionIndex{})
	require.NoError(t, err)

	for _, v := range img.Settings {
		require.Equal(t, p.Background, v)
	}
	assert.Zero(t, contrast.Michelson(img.Settings))
}

func TestGaborOpposedPhasesMirrorAboutBackground(t *testing.T) {
	p := DefaultGaborParams()
	p.PhasesDeg = []float64{0, 180}
	p.Contrasts = []float64{0.8}

	set, err := GaborSet(p)
	require.NoError(t, err)

	a, err := set.Take(models.ConditionIndex{Phase: 0})
	require.NoError(t, err)
	b, err := set.Take(models.ConditionIndex{Phase: 1})
	require.NoError(t, err)

	for i := range a.Settings {
		sum := a.Settings[i] + b.Settings[i]
		if math.Abs(sum-2*p.Background) > 1e-12 {
			t.Fatalf("pixel %d: phases 0 and 180 should mirror about the background, sum %v", i, sum)
		}
	}
}

func TestGaborParamValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GaborParams)
	}{
		{"zero size", func(p *GaborParams) { p.Size = 0 }},
		{"zero cycles", func(p *GaborParams) { p.Cycles = 0 }},
		{"zero sigma", func(p *GaborParams) { p.SigmaFraction = 0 }},
		{"background too high", func(p *GaborParams) { p.Background = 0.9 }},
		{"no phases", func(p *GaborParams) { p.PhasesDeg = nil }},
		{"no contrasts", func(p *GaborParams) { p.Contrasts = nil }},
		{"contrast above one", func(p *GaborParams) { p.Contrasts = []float64{1.2} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultGaborParams()
			tt.mutate(&p)
			_, err := GaborSet(p)
			assert.Error(t, err)
		})
	}
}

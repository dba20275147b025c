package contrast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stim2cone/pkg/cube"
)

// cubeFromPlanes builds a 1xN cube whose band planes are given explicitly.
func cubeFromPlanes(t *testing.T, wavelengths []float64, planes ...[]float64) *cube.Cube {
	t.Helper()
	require.Equal(t, len(wavelengths), len(planes))
	width := len(planes[0])
	data := make([]float64, 0, len(planes)*width)
	for _, p := range planes {
		require.Len(t, p, width)
		data = append(data, p...)
	}
	c, err := cube.FromData(data, 1, width, wavelengths)
	require.NoError(t, err)
	return c
}

func TestMichelson(t *testing.T) {
	tests := []struct {
		name  string
		field []float64
		want  float64
	}{
		{"uniform field", []float64{5, 5, 5, 5}, 0},
		{"two levels", []float64{1, 3, 1, 3}, 0.5},
		{"hot pixel on black", []float64{0, 0, 0, 1}, 1},
		{"full range", []float64{0, 10}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Michelson(tt.field), 1e-12)
		})
	}

	t.Run("degenerate inputs yield NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(Michelson(nil)))
		assert.True(t, math.IsNaN(Michelson([]float64{})))
		assert.True(t, math.IsNaN(Michelson([]float64{0, 0, 0})))
		assert.True(t, math.IsNaN(Michelson([]float64{1, math.NaN(), 3})))
	})
}

func TestCorrectorDisabledByEmptyProfile(t *testing.T) {
	c := cubeFromPlanes(t, []float64{500}, []float64{1, 2, 3, 4})
	k := NewCorrector(nil, nil)

	require.False(t, k.Enabled())

	out, diag := k.Apply(c)
	assert.Same(t, c, out, "disabled corrector must hand back the input cube")
	assert.Nil(t, diag)
}

func TestCorrectorLengthMismatchIsNoOp(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	k := NewCorrector([]float64{0.5, 0.6, 0.7}, zap.New(core))
	c := cubeFromPlanes(t, []float64{500, 510}, []float64{1, 2}, []float64{3, 4})

	out, diag := k.Apply(c)

	assert.Same(t, c, out)
	assert.Nil(t, diag)
	require.Equal(t, 1, logs.Len(), "mismatch must be logged once")
	assert.Contains(t, logs.All()[0].Message, "skipping correction")
}

func TestCorrectorPreservesPlaneMeans(t *testing.T) {
	c := cubeFromPlanes(t, []float64{480, 560},
		[]float64{0.2, 1.9, 7.3, 2.6},
		[]float64{11.0, 3.5, 5.25, 8.0})
	wantMeans := []float64{c.PlaneMean(0), c.PlaneMean(1)}

	out, diag := NewCorrector([]float64{1.8, 0.3}, nil).Apply(c)

	require.NotNil(t, diag)
	for b := range wantMeans {
		assert.InDelta(t, wantMeans[b], out.PlaneMean(b), 1e-10,
			"band %d mean must survive correction", b)
	}
}

func TestCorrectorAllOnesIsIdentity(t *testing.T) {
	c := cubeFromPlanes(t, []float64{500, 510},
		[]float64{0.25, 4.75, 2.5, 1.125},
		[]float64{9.0, 0.5, 3.25, 6.5})

	out, diag := NewCorrector([]float64{1, 1}, nil).Apply(c)

	require.NotNil(t, diag)
	require.NotSame(t, c, out, "an active corrector works on a copy")
	for i := range c.Data {
		assert.InDelta(t, c.Data[i], out.Data[i], 1e-12)
	}
}

func TestCorrectorGainMath(t *testing.T) {
	// Plane {0, 2} has mean 1 and Michelson contrast 1. A gain of 0.5
	// about that mean gives {0.5, 1.5} and halves the contrast.
	c := cubeFromPlanes(t, []float64{550}, []float64{0, 2})

	out, diag := NewCorrector([]float64{0.5}, nil).Apply(c)

	assert.InDelta(t, 0.5, out.At(0, 0, 0), 1e-12)
	assert.InDelta(t, 1.5, out.At(0, 1, 0), 1e-12)

	require.NotNil(t, diag)
	assert.InDelta(t, 1.0, diag.Before[0], 1e-12)
	assert.InDelta(t, 0.5, diag.Predicted[0], 1e-12)
	assert.InDelta(t, 0.5, diag.Achieved[0], 1e-12)
}

func TestCorrectorLeavesInputUntouched(t *testing.T) {
	c := cubeFromPlanes(t, []float64{550}, []float64{0, 2, 0, 2})
	before := append([]float64(nil), c.Data...)

	NewCorrector([]float64{0.25}, nil).Apply(c)

	assert.Equal(t, before, c.Data)
}

func TestCorrectorDiagnosticsPerBand(t *testing.T) {
	// Symmetric two-level planes keep mean == midrange, so the achieved
	// contrast matches the linear prediction exactly.
	c := cubeFromPlanes(t, []float64{480, 560},
		[]float64{1, 3},
		[]float64{2, 6})

	_, diag := NewCorrector([]float64{0.5, 2.0}, nil).Apply(c)

	require.NotNil(t, diag)
	assert.Equal(t, []float64{480, 560}, diag.Wavelengths)
	assert.InDelta(t, 0.5, diag.Before[0], 1e-12)
	assert.InDelta(t, 0.25, diag.Achieved[0], 1e-12)
	assert.InDelta(t, 0.5, diag.Before[1], 1e-12)
	assert.InDelta(t, 1.0, diag.Achieved[1], 1e-12)
	for b := range diag.Predicted {
		assert.InDelta(t, diag.Predicted[b], diag.Achieved[b], 1e-12)
	}
}

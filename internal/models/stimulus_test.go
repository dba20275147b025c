package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeImage(t *testing.T, size int) *StimulusImage {
	t.Helper()
	img, err := NewStimulusImage(make([]float64, size*size), size, size, 0.5, 0)
	require.NoError(t, err)
	return img
}

func makeSet(t *testing.T, phases, contrasts int) *StimulusSet {
	t.Helper()
	images := make([][]*StimulusImage, phases)
	for p := range images {
		images[p] = make([]*StimulusImage, contrasts)
		for c := range images[p] {
			images[p][c] = makeImage(t, 4)
		}
	}
	set, err := NewStimulusSet(images)
	require.NoError(t, err)
	return set
}

func TestNewStimulusImageValidatesShape(t *testing.T) {
	_, err := NewStimulusImage(make([]float64, 5), 2, 2, 0.5, 0)
	assert.Error(t, err)

	_, err = NewStimulusImage(nil, 0, 4, 0.5, 0)
	assert.Error(t, err)

	img, err := NewStimulusImage(make([]float64, 6), 3, 2, 0.25, 90)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, 0.25, img.NominalContrast)
	assert.Equal(t, 90.0, img.PhaseDeg)
}

func TestNewStimulusSetRejectsBadGrids(t *testing.T) {
	_, err := NewStimulusSet(nil)
	assert.Error(t, err)

	_, err = NewStimulusSet([][]*StimulusImage{{}})
	assert.Error(t, err)

	ragged := [][]*StimulusImage{
		{makeImage(t, 4), makeImage(t, 4)},
		{makeImage(t, 4)},
	}
	_, err = NewStimulusSet(ragged)
	assert.Error(t, err)

	hole := [][]*StimulusImage{{makeImage(t, 4), nil}}
	_, err = NewStimulusSet(hole)
	assert.Error(t, err)
}

func TestConditionsRowMajorOrder(t *testing.T) {
	set := makeSet(t, 2, 3)

	assert.Equal(t, 2, set.NumPhases())
	assert.Equal(t, 3, set.NumContrasts())

	want := []ConditionIndex{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 1}, {1, 2},
	}
	assert.Equal(t, want, set.Conditions())
}

func TestTakeTransfersOwnership(t *testing.T) {
	set := makeSet(t, 2, 2)
	ci := ConditionIndex{Phase: 1, Contrast: 0}

	img, err := set.Take(ci)
	require.NoError(t, err)
	require.NotNil(t, img)

	_, err = set.Take(ci)
	assert.Error(t, err, "a condition can be taken once")

	_, err = set.Take(ConditionIndex{Phase: 5, Contrast: 0})
	assert.Error(t, err)
}

func TestCloneSharesImagesNotSlots(t *testing.T) {
	set := makeSet(t, 1, 2)
	clone := set.Clone()

	ci := ConditionIndex{Phase: 0, Contrast: 1}
	orig, err := set.Take(ci)
	require.NoError(t, err)

	fromClone, err := clone.Take(ci)
	require.NoError(t, err, "taking from the original must not empty the clone")
	assert.Same(t, orig, fromClone, "clones share image pointers")
}

func TestConditionIndexString(t *testing.T) {
	assert.Equal(t, "phase 2, contrast 7", ConditionIndex{Phase: 2, Contrast: 7}.String())
}

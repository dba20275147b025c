// Package pipeline drives the condition loop of a verification run: for
// every phase shift and contrast point it builds the scene, checks its
// geometry, optionally corrects its contrast, predicts receptor
// excitations and gates them against a reference before committing the
// result to the aggregate.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/cube"
	"stim2cone/pkg/excitation"
	"stim2cone/pkg/scene"
)

const (
	// DefaultTolerance is the excitation consistency threshold
	DefaultTolerance = excitation.DefaultTolerance

	// DefaultGeometryTolerance is the permitted relative deviation of
	// realized scene width and field of view from their nominal values
	DefaultGeometryTolerance = 0.01
)

// State names the stage a condition is in. A condition moves NotStarted
// through BuildingScene, Correcting (only when a gain profile is
// supplied) and Validating to Committed, or ends in Failed. The first
// failure aborts the whole run.
type State int

const (
	NotStarted State = iota
	BuildingScene
	Correcting
	Validating
	Committed
	Failed
)

// String returns the stage name used in logs and error messages.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case BuildingScene:
		return "building-scene"
	case Correcting:
		return "correcting"
	case Validating:
		return "validating"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConditionError wraps a condition failure with where it happened, so a
// run abort can be traced to a grid position and pipeline stage.
type ConditionError struct {
	// Condition is the grid position that failed
	Condition models.ConditionIndex

	// State is the stage the failure occurred in
	State State

	// Err is the underlying failure
	Err error
}

// Error formats the failure with its condition and stage.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("pipeline: condition (%s) failed while %s: %v", e.Condition, e.State, e.Err)
}

// Unwrap exposes the underlying failure for errors.Is and errors.As.
func (e *ConditionError) Unwrap() error {
	return e.Err
}

// Params holds the complete configuration of a run. It replaces any
// ambient toggles: everything a run needs arrives here, once.
type Params struct {
	// Stimuli is the pre-rendered condition grid. Its shape fixes the
	// number of phase shifts and contrast points. The run consumes it:
	// each image is taken from the set when its condition starts.
	Stimuli *models.StimulusSet

	// Display is the display model scenes are rendered through
	Display *scene.Display

	// Builder produces a scene for each stimulus image
	Builder scene.Builder

	// Receptors supplies the sensitivity tabulations. The variant is
	// resolved once in New, so every condition sees the same receptor
	// complement.
	Receptors excitation.Source

	// References holds the expected excitation matrix per condition.
	// Required when the consistency gate will run, which is whenever
	// correction is disabled.
	References References

	// MTFGains is the per-wavelength gain profile. Empty disables
	// correction, which also arms the consistency gate.
	MTFGains []float64

	// NominalWidthMeters is the physical width every scene is checked
	// against
	NominalWidthMeters float64

	// NominalFOVDegrees is the field of view every scene is checked
	// against
	NominalFOVDegrees float64

	// Tolerance is the consistency threshold for relative excitation
	// deviations; zero or negative selects DefaultTolerance
	Tolerance float64

	// GeometryTolerance is the permitted relative geometry deviation;
	// zero or negative selects DefaultGeometryTolerance
	GeometryTolerance float64

	// Workers caps how many conditions run at once. Values below 2 run
	// the grid sequentially in row-major order.
	Workers int

	// Observers receive checkpoint notifications. They must be safe for
	// concurrent use when Workers > 1.
	Observers []Observer

	// Logger receives structured progress logs; nil keeps the run silent
	Logger *zap.Logger
}

// Iterator walks the condition grid and assembles the result aggregate.
type Iterator struct {
	params    *Params
	sens      *excitation.Sensitivities
	corrector *contrast.Corrector
	tolerance float64
	geomTol   float64
	logger    *zap.Logger
}

// New validates the run parameters and resolves the receptor variant.
// Validation is strict so a run cannot fail halfway for a reason that
// was knowable up front: the display, the nominal geometry and, when
// the consistency gate will run, reference coverage of the whole grid
// are all checked here.
func New(params *Params) (*Iterator, error) {
	return newIterator(params, true)
}

func newIterator(params *Params, requireReferences bool) (*Iterator, error) {
	if params == nil {
		return nil, fmt.Errorf("pipeline: nil params")
	}
	if params.Stimuli == nil {
		return nil, fmt.Errorf("pipeline: stimulus set is required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("pipeline: scene builder is required")
	}
	if params.Display == nil {
		return nil, fmt.Errorf("pipeline: display is required")
	}
	if err := params.Display.Validate(); err != nil {
		return nil, err
	}
	if params.NominalWidthMeters <= 0 {
		return nil, fmt.Errorf("pipeline: nominal width must be positive, got %g", params.NominalWidthMeters)
	}
	if params.NominalFOVDegrees <= 0 {
		return nil, fmt.Errorf("pipeline: nominal field of view must be positive, got %g", params.NominalFOVDegrees)
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sens, err := params.Receptors.Resolve()
	if err != nil {
		return nil, err
	}

	tolerance := params.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	geomTol := params.GeometryTolerance
	if geomTol <= 0 {
		geomTol = DefaultGeometryTolerance
	}

	corrector := contrast.NewCorrector(params.MTFGains, logger)
	if requireReferences && !corrector.Enabled() {
		// The gate runs on every condition, so every condition needs a
		// reference before the run starts.
		for _, ci := range params.Stimuli.Conditions() {
			if params.References[ci] == nil {
				return nil, fmt.Errorf("pipeline: no reference excitations for condition (%s)", ci)
			}
		}
	}

	logger.Info("pipeline ready",
		zap.Int("phases", params.Stimuli.NumPhases()),
		zap.Int("contrastPoints", params.Stimuli.NumContrasts()),
		zap.Stringer("receptors", sens.Variant),
		zap.Strings("classes", sens.Classes),
		zap.Bool("correctionEnabled", corrector.Enabled()))

	return &Iterator{
		params:    params,
		sens:      sens,
		corrector: corrector,
		tolerance: tolerance,
		geomTol:   geomTol,
		logger:    logger,
	}, nil
}

// Sensitivities exposes the receptor matrix the run resolved.
func (it *Iterator) Sensitivities() *excitation.Sensitivities {
	return it.sens
}

// Run executes every condition of the grid and returns the populated
// aggregate. The default is sequential row-major order; Workers > 1
// runs conditions concurrently with identical per-condition semantics.
// The first fatal error cancels outstanding work and Run returns it
// with a nil aggregate; partial results are never handed out.
func (it *Iterator) Run(ctx context.Context) (*Aggregate, error) {
	workers := it.params.Workers
	if workers < 1 {
		workers = 1
	}

	agg := newAggregate(it.params.Stimuli.NumPhases(), it.params.Stimuli.NumContrasts(),
		uuid.New().String(), it.sens.Variant)

	start := time.Now()
	it.logger.Info("run starting",
		zap.String("runID", agg.RunID),
		zap.Int("workers", workers))

	var err error
	if workers > 1 {
		err = it.runParallel(ctx, agg)
	} else {
		err = it.runSequential(ctx, agg)
	}
	if err != nil {
		it.logger.Error("run aborted",
			zap.String("runID", agg.RunID),
			zap.Stringer("state", Failed),
			zap.Error(err))
		return nil, err
	}

	it.notifyRunCompleted(agg)
	it.logger.Info("run complete",
		zap.String("runID", agg.RunID),
		zap.Int("conditions", agg.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return agg, nil
}

func (it *Iterator) runSequential(ctx context.Context, agg *Aggregate) error {
	for _, ci := range it.params.Stimuli.Conditions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.processCondition(ctx, ci, agg); err != nil {
			return err
		}
	}
	return nil
}

func (it *Iterator) runParallel(ctx context.Context, agg *Aggregate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(it.params.Workers)

	for _, ci := range it.params.Stimuli.Conditions() {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return it.processCondition(gctx, ci, agg)
		})
	}
	return g.Wait()
}

// processCondition runs one condition end to end: build and predict,
// gate against the reference unless correction is active, then commit.
func (it *Iterator) processCondition(ctx context.Context, ci models.ConditionIndex, agg *Aggregate) error {
	entry, err := it.buildAndPredict(ctx, ci)
	if err != nil {
		return err
	}

	if it.corrector.Enabled() {
		it.logger.Debug("consistency gate skipped while correction is active",
			zap.Int("phase", ci.Phase),
			zap.Int("contrastPoint", ci.Contrast))
	} else {
		maxRel, err := excitation.CompareToReference(entry.Excitations, it.params.References[ci], it.tolerance)
		if err != nil {
			return &ConditionError{Condition: ci, State: Validating, Err: err}
		}
		entry.MaxRelativeDeviation = maxRel
	}

	if err := agg.commit(entry); err != nil {
		return &ConditionError{Condition: ci, State: Committed, Err: err}
	}
	it.logger.Info("condition committed",
		zap.Int("phase", ci.Phase),
		zap.Int("contrastPoint", ci.Contrast),
		zap.Float64("maxRelativeDeviation", entry.MaxRelativeDeviation),
		zap.Stringer("state", Committed))
	it.notifyConditionCommitted(ci, entry)
	return nil
}

// buildAndPredict walks one condition from stimulus image to predicted
// excitations. The consistency gate and the commit are left to the
// caller, so the same path serves verification runs and reference
// generation.
func (it *Iterator) buildAndPredict(ctx context.Context, ci models.ConditionIndex) (*Entry, error) {
	log := it.logger.With(
		zap.Int("phase", ci.Phase),
		zap.Int("contrastPoint", ci.Contrast))

	log.Debug("condition state", zap.Stringer("state", BuildingScene))
	img, err := it.params.Stimuli.Take(ci)
	if err != nil {
		return nil, &ConditionError{Condition: ci, State: BuildingScene, Err: err}
	}
	sc, err := it.params.Builder.Build(ctx, img, it.params.Display)
	if err != nil {
		return nil, &ConditionError{Condition: ci, State: BuildingScene, Err: fmt.Errorf("scene build: %w", err)}
	}
	it.notifySceneBuilt(ci, sc)

	// Geometry gates the run before any correction or prediction is
	// paid for.
	if err := scene.CheckGeometry(sc, it.params.NominalWidthMeters, it.params.NominalFOVDegrees, it.geomTol); err != nil {
		return nil, &ConditionError{Condition: ci, State: BuildingScene, Err: err}
	}

	var diag *contrast.Diagnostics
	if it.corrector.Enabled() {
		log.Debug("condition state", zap.Stringer("state", Correcting))
		corrected, d := it.corrector.Apply(sc.Photons)
		sc.Photons = corrected
		if d != nil {
			diag = d
			it.notifyCorrectionApplied(ci, d)
		}
	}

	log.Debug("condition state", zap.Stringer("state", Validating))
	binWidth, err := cube.BinWidth(sc.Photons.Wavelengths)
	if err != nil {
		return nil, &ConditionError{Condition: ci, State: Validating, Err: err}
	}
	perBand := sc.Energy().Scale(binWidth)
	pred, err := excitation.Predict(perBand, it.sens)
	if err != nil {
		return nil, &ConditionError{Condition: ci, State: Validating, Err: err}
	}

	return &Entry{
		Condition:     ci,
		Scene:         sc,
		Correction:    diag,
		EnergyPerBand: perBand,
		Excitations:   pred,
	}, nil
}

package pipeline

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"stim2cone/internal/models"
)

// References maps each condition to the excitation matrix a
// verification run checks against. Lookups during a run are read-only,
// so a single map serves concurrent conditions.
type References map[models.ConditionIndex]*mat.Dense

// GenerateReferences runs the build and prediction steps for every
// condition without gating or committing and returns the predicted
// excitations keyed by condition. This is how a reference set is
// bootstrapped: generate once against a trusted configuration, then
// let later runs verify against it.
//
// Correction never applies here: references describe the uncorrected
// path. The stimulus set inside params is consumed, so pass a clone
// when the same set feeds the verification run afterwards.
func GenerateReferences(ctx context.Context, params *Params) (References, error) {
	p := *params
	p.MTFGains = nil
	p.References = nil
	p.Observers = nil

	it, err := newIterator(&p, false)
	if err != nil {
		return nil, err
	}

	refs := make(References, p.Stimuli.NumPhases()*p.Stimuli.NumContrasts())
	for _, ci := range p.Stimuli.Conditions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := it.buildAndPredict(ctx, ci)
		if err != nil {
			return nil, err
		}
		refs[ci] = entry.Excitations
	}

	it.logger.Info("reference set generated", zap.Int("conditions", len(refs)))
	return refs, nil
}

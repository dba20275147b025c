package pipeline

import (
	"stim2cone/internal/models"
	"stim2cone/pkg/contrast"
	"stim2cone/pkg/scene"
)

// Observer receives checkpoint notifications as conditions move through
// the pipeline. Visualization and persistence hang off these hooks so
// the core loop stays free of rendering and storage concerns.
// Implementations must be safe for concurrent use when the run is
// parallel; callbacks for one condition arrive in order, callbacks for
// different conditions may interleave.
type Observer interface {
	// SceneBuilt fires after the scene collaborator returned a scene,
	// before any correction
	SceneBuilt(ci models.ConditionIndex, sc *scene.Scene)

	// CorrectionApplied fires after the contrast correction ran,
	// carrying its per-band diagnostics
	CorrectionApplied(ci models.ConditionIndex, diag *contrast.Diagnostics)

	// ConditionCommitted fires after the entry landed in the aggregate
	ConditionCommitted(ci models.ConditionIndex, entry *Entry)

	// RunCompleted fires once after every condition committed
	RunCompleted(agg *Aggregate)
}

func (it *Iterator) notifySceneBuilt(ci models.ConditionIndex, sc *scene.Scene) {
	for _, o := range it.params.Observers {
		o.SceneBuilt(ci, sc)
	}
}

func (it *Iterator) notifyCorrectionApplied(ci models.ConditionIndex, diag *contrast.Diagnostics) {
	for _, o := range it.params.Observers {
		o.CorrectionApplied(ci, diag)
	}
}

func (it *Iterator) notifyConditionCommitted(ci models.ConditionIndex, entry *Entry) {
	for _, o := range it.params.Observers {
		o.ConditionCommitted(ci, entry)
	}
}

func (it *Iterator) notifyRunCompleted(agg *Aggregate) {
	for _, o := range it.params.Observers {
		o.RunCompleted(agg)
	}
}

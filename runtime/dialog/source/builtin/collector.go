package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/resolve"
)

// DataCompleteTrigger is the transition trigger fired when a state's
// required data is fully collected.
const DataCompleteTrigger = "data_complete"

// DataCollector proposes the data_complete transition once every required
// field is present in the frozen snapshot. It reads the snapshot only, so
// data updates proposed earlier in the same turn never satisfy the
// requirements.
type DataCollector struct {
	conds *conditions.Registry
}

// NewDataCollector returns a collector. The condition registry is optional
// and only consulted for conditional data_complete transitions.
func NewDataCollector(conds *conditions.Registry) *DataCollector {
	return &DataCollector{conds: conds}
}

// Name implements source.Source.
func (c *DataCollector) Name() string { return NameDataCollector }

// ShouldContribute fires when the state requires data and defines a
// data_complete transition.
func (c *DataCollector) ShouldContribute(snap *blackboard.Snapshot) bool {
	cfg := snap.StateConfig()
	if cfg == nil || len(cfg.RequiredData) == 0 {
		return false
	}
	_, ok := snap.Transition(DataCompleteTrigger)
	return ok
}

// Contribute proposes the transition when all required data is collected.
func (c *DataCollector) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	if !snap.HasAllRequiredData() {
		return nil
	}
	tr, ok := snap.Transition(DataCompleteTrigger)
	if !ok {
		return nil
	}
	target, ok := tr.Resolve(conditionEval(c.conds, snap))
	if !ok || target == "" {
		return nil
	}
	p := proposal.NewTransition(target, proposal.Normal, DataCompleteTrigger, c.Name()).
		WithMetadata(map[string]any{
			resolve.MetaTrigger: DataCompleteTrigger,
			resolve.MetaHandler: HandlerPhaseProgress,
		})
	return bb.ProposeTransition(p)
}

// conditionEval adapts the registry to the flow's condition callback. A nil
// registry or unknown condition evaluates to false, sending conditional
// forms to their else branch.
func conditionEval(reg *conditions.Registry, snap *blackboard.Snapshot) func(string) bool {
	if reg == nil {
		return nil
	}
	cctx := snap.ConditionContext()
	return func(cond string) bool {
		ok, err := reg.Eval(cond, cctx)
		return err == nil && ok
	}
}

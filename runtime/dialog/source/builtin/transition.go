package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/resolve"
)

// hardNoIntents escalate their transitions to high priority so a firm
// refusal beats routine progress proposals.
var hardNoIntents = map[string]bool{
	"rejection":              true,
	"hard_no":                true,
	"end_conversation":       true,
	"explicit_close_request": true,
}

// TransitionResolver maps the current intent to a target through the
// state's transition table, resolving conditional forms. data_complete and
// any are excluded: the first belongs to DataCollector, the second is the
// resolver-level fallback.
type TransitionResolver struct {
	conds *conditions.Registry
}

// NewTransitionResolver returns a resolver. The condition registry is
// optional.
func NewTransitionResolver(conds *conditions.Registry) *TransitionResolver {
	return &TransitionResolver{conds: conds}
}

// Name implements source.Source.
func (r *TransitionResolver) Name() string { return NameTransitionResolver }

// ShouldContribute fires when the state maps the intent to a transition.
func (r *TransitionResolver) ShouldContribute(snap *blackboard.Snapshot) bool {
	intent := snap.Intent()
	if intent == "" || intent == DataCompleteTrigger || intent == resolve.AnyTrigger {
		return false
	}
	_, ok := snap.Transition(intent)
	return ok
}

// Contribute proposes the resolved transition.
func (r *TransitionResolver) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	intent := snap.Intent()
	tr, ok := snap.Transition(intent)
	if !ok {
		return nil
	}
	target, ok := tr.Resolve(conditionEval(r.conds, snap))
	if !ok || target == "" {
		return nil
	}
	pri := proposal.Normal
	if hardNoIntents[intent] {
		pri = proposal.High
	}
	p := proposal.NewTransition(target, pri, intent, r.Name()).
		WithMetadata(map[string]any{
			resolve.MetaTrigger:        intent,
			resolve.MetaUseTransitions: true,
		})
	return bb.ProposeTransition(p)
}

package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/resolve"
)

// blockingActions are rule actions that must suppress any concurrent
// transition when they win.
var blockingActions = map[string]bool{
	"handle_rejection":   true,
	"emergency_escalate": true,
	"end_conversation":   true,
}

// IntentProcessor resolves the state-local rules table for the current
// intent. Rules are plain actions, conditional {when, then} forms or chains;
// conditions run through the registry.
type IntentProcessor struct {
	conds *conditions.Registry
}

// NewIntentProcessor returns a processor. The condition registry is
// optional; without it conditional rules fall through to their else branch.
func NewIntentProcessor(conds *conditions.Registry) *IntentProcessor {
	return &IntentProcessor{conds: conds}
}

// Name implements source.Source.
func (p *IntentProcessor) Name() string { return NameIntentProcessor }

// ShouldContribute fires when the state defines a rule for the intent.
func (p *IntentProcessor) ShouldContribute(snap *blackboard.Snapshot) bool {
	cfg := snap.StateConfig()
	if cfg == nil {
		return false
	}
	_, ok := cfg.Rules[snap.Intent()]
	return ok
}

// Contribute proposes the resolved action.
func (p *IntentProcessor) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	cfg := snap.StateConfig()
	if cfg == nil {
		return nil
	}
	rule, ok := cfg.Rules[snap.Intent()]
	if !ok {
		return nil
	}
	action, ok := rule.Resolve(conditionEval(p.conds, snap))
	if !ok || action == "" {
		return nil
	}
	pr := proposal.NewAction(action, proposal.Normal, !blockingActions[action], "rule_"+snap.Intent(), p.Name()).
		WithMetadata(map[string]any{resolve.MetaSource: "rules"})
	return bb.ProposeAction(pr)
}

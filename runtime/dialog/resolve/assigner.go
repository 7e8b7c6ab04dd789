package resolve

import (
	"errors"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// Proposal metadata keys the assigner matches definitions against. Sources
// set them when they create proposals.
const (
	// MetaHandler names the producing handler (phase_progress_handler,
	// circular_flow_handler).
	MetaHandler = "handler"
	// MetaSource marks rule-derived proposals ("rules").
	MetaSource = "source"
	// MetaUseTransitions marks intent-driven transition proposals.
	MetaUseTransitions = "use_transitions"
	// MetaTrigger names the flow trigger a transition was derived from.
	MetaTrigger = "trigger"
)

// AssignerOptions configures a priority assigner.
type AssignerOptions struct {
	// Defs are the declarative priority definitions from the flow. Optional.
	Defs []flow.PriorityDef
	// Conditions evaluates definition conditions. Required when any
	// definition carries one.
	Conditions *conditions.Registry
}

// Assigner writes tie-break ranks into proposals from the flow's declarative
// priority definitions. The Priority enum of a proposal is never changed.
type Assigner struct {
	defs     []flow.PriorityDef
	registry *conditions.Registry

	// catCache memoizes intent-category membership per category name.
	catCache map[string]map[string]bool
}

// NewAssigner builds an assigner over the given definitions.
func NewAssigner(opts AssignerOptions) (*Assigner, error) {
	for _, def := range opts.Defs {
		if def.Condition != "" && opts.Conditions == nil {
			return nil, errors.New("conditions registry is required when definitions use conditions")
		}
	}
	return &Assigner{
		defs:     opts.Defs,
		registry: opts.Conditions,
		catCache: make(map[string]map[string]bool),
	}, nil
}

// Assign writes the rank of the best-matching definition into each proposal,
// in place. Proposals with no matching definition keep their rank.
func (a *Assigner) Assign(proposals []proposal.Proposal, snap *blackboard.Snapshot) {
	if len(a.defs) == 0 || snap == nil {
		return
	}
	condCtx := snap.ConditionContext()
	for i := range proposals {
		if def, ok := a.match(&proposals[i], snap, condCtx); ok {
			proposals[i].Rank = def.Priority
		}
	}
}

// match returns the gating definition with the lowest numeric priority.
func (a *Assigner) match(p *proposal.Proposal, snap *blackboard.Snapshot, condCtx conditions.Context) (flow.PriorityDef, bool) {
	var (
		best  flow.PriorityDef
		found bool
	)
	for _, def := range a.defs {
		if found && def.Priority >= best.Priority {
			continue
		}
		if a.applies(def, p, snap, condCtx) {
			best = def
			found = true
		}
	}
	return best, found
}

func (a *Assigner) applies(def flow.PriorityDef, p *proposal.Proposal, snap *blackboard.Snapshot, condCtx conditions.Context) bool {
	if def.FeatureFlag != "" && !snap.TenantFeatureEnabled(def.FeatureFlag) {
		return false
	}
	if len(def.Intents) > 0 && !contains(def.Intents, snap.Intent()) {
		return false
	}
	if def.IntentCategory != "" && !a.inCategory(snap.Intent(), def.IntentCategory) {
		return false
	}
	if def.Trigger != "" {
		if p.Kind != proposal.KindTransition {
			return false
		}
		if p.MetaString(MetaTrigger) != def.Trigger && p.Reason != def.Trigger {
			return false
		}
	}
	if def.Action != "" && (p.Kind != proposal.KindAction || p.Value != def.Action) {
		return false
	}
	if def.Handler != "" && p.MetaString(MetaHandler) != def.Handler {
		return false
	}
	if def.Source != "" && p.MetaString(MetaSource) != def.Source {
		return false
	}
	if def.UseTransitions && !p.MetaBool(MetaUseTransitions) {
		return false
	}
	if def.UseResolver && p.Kind != proposal.KindTransition {
		return false
	}
	if def.Condition != "" {
		ok, err := a.registry.Eval(def.Condition, condCtx)
		if err != nil || !ok {
			// The else arm rescues intent-driven transition proposals,
			// except inside autonomous states.
			if def.Else != "use_transitions" || !p.MetaBool(MetaUseTransitions) {
				return false
			}
			if cfg := snap.StateConfig(); cfg != nil && cfg.Autonomous {
				return false
			}
		}
	}
	return true
}

// inCategory memoizes category membership per category name.
func (a *Assigner) inCategory(intent, cat string) bool {
	members, ok := a.catCache[cat]
	if !ok {
		members = make(map[string]bool)
		a.catCache[cat] = members
	}
	in, ok := members[intent]
	if !ok {
		in = state.Category(intent) == cat
		members[intent] = in
	}
	return in
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

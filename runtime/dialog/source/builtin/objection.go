package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// ObjectionGuard compares the objection counters against the persona limit
// and forces a soft close once either is exceeded. The _objection_limit_final
// flag makes the soft-close state final so the dialog cannot be argued back
// open.
type ObjectionGuard struct{}

// NewObjectionGuard returns the objection guard.
func NewObjectionGuard() *ObjectionGuard { return &ObjectionGuard{} }

// Name implements source.Source.
func (g *ObjectionGuard) Name() string { return NameObjectionGuard }

// ShouldContribute fires on objection intents.
func (g *ObjectionGuard) ShouldContribute(snap *blackboard.Snapshot) bool {
	return state.Category(snap.Intent()) == "objection"
}

// Contribute proposes the limit action, the soft-close transition and the
// final flag once a counter reaches the persona limit.
func (g *ObjectionGuard) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	limit := snap.PersonaLimit()
	if snap.ObjectionConsecutive() < limit.Consecutive && snap.ObjectionTotal() < limit.Total {
		return nil
	}
	if err := bb.ProposeAction(proposal.NewAction(
		ActionObjectionLimitReached, proposal.Critical, true, "objection_limit_reached", g.Name())); err != nil {
		return err
	}
	if err := bb.ProposeTransition(proposal.NewTransition(
		state.SoftCloseState, proposal.Critical, "objection_limit_reached", g.Name())); err != nil {
		return err
	}
	return bb.ProposeDataUpdate(state.ObjectionLimitFinalFlag, true)
}

// positiveIntents resolve an objection streak and allow returning to the
// interrupted state.
var positiveIntents = map[string]bool{
	"agreement":         true,
	"acceptance":        true,
	"positive_response": true,
	"interest_shown":    true,
}

// PositiveIntent reports whether the intent signals agreement or acceptance.
// The orchestrator uses it to clear the saved objection return point.
func PositiveIntent(intent string) bool { return positiveIntents[intent] }

// ObjectionReturn routes the dialog out of handle_objection once the user
// turns positive or asks a follow-up question: back to the saved state when
// it carries a phase, otherwise to the flow's entry state.
type ObjectionReturn struct{}

// NewObjectionReturn returns the objection return source.
func NewObjectionReturn() *ObjectionReturn { return &ObjectionReturn{} }

// Name implements source.Source.
func (r *ObjectionReturn) Name() string { return NameObjectionReturn }

// ShouldContribute fires inside handle_objection on positive or question
// intents.
func (r *ObjectionReturn) ShouldContribute(snap *blackboard.Snapshot) bool {
	if snap.State() != state.HandleObjectionState {
		return false
	}
	intent := snap.Intent()
	if positiveIntents[intent] {
		return true
	}
	cat := state.Category(intent)
	return cat == "question" || cat == "price"
}

// Contribute proposes the return transition.
func (r *ObjectionReturn) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	if saved := snap.StateBeforeObjection(); saved != "" && snap.PhaseOf(saved) != "" {
		return bb.ProposeTransition(proposal.NewTransition(
			saved, proposal.High, "objection_resolved_return", r.Name()))
	}
	if entry := r.entryState(snap); entry != "" {
		return bb.ProposeTransition(proposal.NewTransition(
			entry, proposal.Normal, "objection_resolved_entry", r.Name()))
	}
	return nil
}

// entryState resolves the fallback return target: the state's entry_state
// parameter, then the flow's entry_state constant. The target must be a
// defined state other than the detour itself.
func (r *ObjectionReturn) entryState(snap *blackboard.Snapshot) string {
	candidate := ""
	if cfg := snap.StateConfig(); cfg != nil {
		candidate = cfg.Param("entry_state")
	}
	if candidate == "" {
		candidate, _ = snap.Flow().Constants()["entry_state"].(string)
	}
	if candidate == "" || candidate == state.HandleObjectionState {
		return ""
	}
	if _, ok := snap.Flow().State(candidate); !ok {
		return ""
	}
	return candidate
}

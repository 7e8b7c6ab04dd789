package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// progressed reports whether the turn shows forward movement: data was
// extracted or the momentum estimate is positive.
func progressed(snap *blackboard.Snapshot) bool {
	if len(snap.Extracted()) > 0 {
		return true
	}
	env := snap.Envelope()
	return env != nil && env.Momentum > 0
}

// sameStateTurns returns how many turns the dialog has spent in the current
// state, this one included.
func sameStateTurns(snap *blackboard.Snapshot) int {
	if env := snap.Envelope(); env != nil {
		return env.ConsecutiveSameState
	}
	return 0
}

// PhaseExhausted offers options in the window between the state's exhaust
// threshold and the stall guard's soft tier, when the turn shows no
// progress. A zero threshold disables the source for the state.
type PhaseExhausted struct{}

// NewPhaseExhausted returns the phase exhausted source.
func NewPhaseExhausted() *PhaseExhausted { return &PhaseExhausted{} }

// Name implements source.Source.
func (e *PhaseExhausted) Name() string { return NamePhaseExhausted }

// ShouldContribute fires inside the exclusive window
// [phase_exhaust_threshold, stall_soft).
func (e *PhaseExhausted) ShouldContribute(snap *blackboard.Snapshot) bool {
	cfg := snap.StateConfig()
	if cfg == nil || cfg.PhaseExhaustThreshold <= 0 {
		return false
	}
	turns := sameStateTurns(snap)
	return turns >= cfg.PhaseExhaustThreshold && turns < cfg.StallSoft()
}

// Contribute proposes offer_options when nothing progressed this turn.
func (e *PhaseExhausted) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	if progressed(snap) {
		return nil
	}
	return bb.ProposeAction(proposal.NewAction(
		ActionOfferOptions, proposal.Normal, true, "phase_exhausted", e.Name()))
}

// StallGuard is the two-tier safety net above PhaseExhausted: a soft nudge
// once the soft threshold passes without progress, and a hard eject once
// max_turns_in_state is reached regardless of progress.
type StallGuard struct{}

// NewStallGuard returns the stall guard.
func NewStallGuard() *StallGuard { return &StallGuard{} }

// Name implements source.Source.
func (g *StallGuard) Name() string { return NameStallGuard }

// ShouldContribute fires once either tier's threshold is reached. States
// without max_turns_in_state opt out.
func (g *StallGuard) ShouldContribute(snap *blackboard.Snapshot) bool {
	cfg := snap.StateConfig()
	if cfg == nil || cfg.MaxTurnsInState <= 0 {
		return false
	}
	turns := sameStateTurns(snap)
	return turns >= cfg.MaxTurnsInState || turns >= cfg.StallSoft()
}

// Contribute proposes the tier's action plus a transition to the eject
// target.
func (g *StallGuard) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	cfg := snap.StateConfig()
	if cfg == nil {
		return nil
	}
	turns := sameStateTurns(snap)

	var (
		action string
		pri    proposal.Priority
		reason string
	)
	switch {
	case turns >= cfg.MaxTurnsInState:
		action, pri, reason = ActionStallGuardEject, proposal.High, "stall_guard_hard"
	case turns >= cfg.StallSoft() && !progressed(snap):
		action, pri, reason = ActionStallGuardNudge, proposal.Normal, "stall_guard_soft"
	default:
		return nil
	}

	if err := bb.ProposeAction(proposal.NewAction(action, pri, true, reason, g.Name())); err != nil {
		return err
	}
	return bb.ProposeTransition(proposal.NewTransition(g.ejectTarget(snap, cfg), pri, reason, g.Name()))
}

// ejectTarget picks where a stalled dialog goes: the saved detour return
// state when stuck in handle_objection, soft_close for states that list
// terminal states, the configured max_turns_fallback, and close as the last
// resort.
func (g *StallGuard) ejectTarget(snap *blackboard.Snapshot, cfg *flow.State) string {
	if snap.State() == state.HandleObjectionState {
		if saved := snap.StateBeforeObjection(); saved != "" {
			return saved
		}
	}
	if len(cfg.TerminalStates) > 0 {
		return state.SoftCloseState
	}
	if cfg.MaxTurnsFallback != "" {
		return cfg.MaxTurnsFallback
	}
	return state.CloseState
}

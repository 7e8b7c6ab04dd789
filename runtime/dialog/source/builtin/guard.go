package builtin

import (
	"context"
	"fmt"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// Guard tiers, increasing severity. TierNone means the conversation is
// healthy.
const (
	TierNone = iota
	TierRephrase
	TierOfferOptions
	TierSkipPhase
	TierSoftClose
)

type (
	// Assessment is the guard analyser's verdict for one turn.
	Assessment struct {
		// Tier is the recommended recovery tier, TierNone through
		// TierSoftClose.
		Tier int
		// Rationale is free text explaining the verdict.
		Rationale string
		// SkipTarget optionally names the state to skip to at
		// TierSkipPhase. Ignored unless it is a defined state.
		SkipTarget string
	}

	// Analyzer scores conversation health. Implementations typically call
	// an external service, so Assess takes a context.
	Analyzer interface {
		Assess(ctx context.Context, snap *blackboard.Snapshot) (Assessment, error)
	}

	// GuardOptions configures the conversation guard.
	GuardOptions struct {
		// Analyzer produces the per-turn assessment. Required.
		Analyzer Analyzer
	}

	// ConversationGuard turns analyser tiers into recovery proposals:
	// rephrase, offer options, skip the phase or soft-close the dialog.
	ConversationGuard struct {
		analyzer Analyzer
	}
)

// NewConversationGuard returns a guard bound to the given analyser.
func NewConversationGuard(opts GuardOptions) (*ConversationGuard, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("conversation guard: analyzer is required")
	}
	return &ConversationGuard{analyzer: opts.Analyzer}, nil
}

// Name implements source.Source.
func (g *ConversationGuard) Name() string { return NameConversationGuard }

// ShouldContribute is always true; the analyser decides per turn.
func (g *ConversationGuard) ShouldContribute(*blackboard.Snapshot) bool { return true }

// Contribute maps the assessment tier to proposals. A tier-3 verdict with no
// usable skip target degrades to tier 2.
func (g *ConversationGuard) Contribute(ctx context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	assessment, err := g.analyzer.Assess(ctx, snap)
	if err != nil {
		return fmt.Errorf("guard assessment: %w", err)
	}

	tier := assessment.Tier
	if tier == TierSkipPhase && g.skipTarget(snap, assessment) == "" {
		tier = TierOfferOptions
	}

	switch tier {
	case TierRephrase:
		return bb.ProposeAction(proposal.NewAction(
			ActionGuardRephrase, proposal.Normal, true, "conversation_guard_tier1", g.Name()))
	case TierOfferOptions:
		return bb.ProposeAction(proposal.NewAction(
			ActionGuardOfferOptions, proposal.High, false, "conversation_guard_tier2", g.Name()))
	case TierSkipPhase:
		target := g.skipTarget(snap, assessment)
		if err := bb.ProposeAction(proposal.NewAction(
			ActionGuardSkipPhase, proposal.High, true, "conversation_guard_tier3", g.Name())); err != nil {
			return err
		}
		return bb.ProposeTransition(proposal.NewTransition(
			target, proposal.High, "conversation_guard_tier3", g.Name()))
	case TierSoftClose:
		if err := bb.ProposeAction(proposal.NewAction(
			ActionGuardSoftClose, proposal.Critical, true, "conversation_guard_tier4", g.Name())); err != nil {
			return err
		}
		return bb.ProposeTransition(proposal.NewTransition(
			state.SoftCloseState, proposal.Critical, "conversation_guard_tier4", g.Name()))
	}
	return nil
}

// skipTarget picks the state a tier-3 skip lands on: the analyser suggestion
// when it names a defined state other than the current one, else the state's
// skip_target parameter.
func (g *ConversationGuard) skipTarget(snap *blackboard.Snapshot, a Assessment) string {
	valid := func(target string) bool {
		if target == "" || target == snap.State() {
			return false
		}
		_, ok := snap.Flow().State(target)
		return ok
	}
	if valid(a.SkipTarget) {
		return a.SkipTarget
	}
	if cfg := snap.StateConfig(); cfg != nil {
		if t := cfg.Param("skip_target"); valid(t) {
			return t
		}
	}
	return ""
}

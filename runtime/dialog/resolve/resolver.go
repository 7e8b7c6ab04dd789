// Package resolve turns the proposals accumulated on the blackboard into a
// single decision: ranking by the priority assigner, structural checks by
// the validator, conflict arbitration by the resolver and a final next-state
// sanitation pass.
package resolve

import (
	"fmt"
	"sort"

	"goa.design/parley/runtime/dialog/decision"
	"goa.design/parley/runtime/dialog/proposal"
)

// AnyTrigger is the wildcard transition trigger whose target serves as the
// resolver-level fallback.
const AnyTrigger = "any"

// FallbackAnyTransition is appended to the reason codes when the "any"
// fallback transition rescued a turn that would otherwise stay put.
const FallbackAnyTransition = "fallback_any_transition"

// ResolverOptions configures a resolver.
type ResolverOptions struct {
	// DefaultAction is used when no action proposal wins. Defaults to
	// "continue".
	DefaultAction string
}

// Resolver arbitrates between competing proposals. It is a pure function of
// its inputs: same proposals, same decision.
type Resolver struct {
	defaultAction string
}

// NewResolver builds a resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	action := opts.DefaultAction
	if action == "" {
		action = "continue"
	}
	return &Resolver{defaultAction: action}
}

// Resolve partitions the proposals by kind, ranks each side by (priority,
// rank, insertion order) and combines the winners. A non-combinable winning
// action blocks every transition and pins the dialog to the current state.
func (r *Resolver) Resolve(proposals []proposal.Proposal, currentState string, dataUpdates, flags map[string]any) *decision.Decision {
	actions, transitions := partition(proposals)
	rank(actions)
	rank(transitions)

	trace := &decision.Trace{
		ActionRanking:     rankingOf(actions),
		TransitionRanking: rankingOf(transitions),
	}
	d := &decision.Decision{
		Action:      r.defaultAction,
		NextState:   currentState,
		DataUpdates: dataUpdates,
		FlagsToSet:  flags,
		Trace:       trace,
	}

	var winAction *proposal.Proposal
	if len(actions) > 0 {
		winAction = &actions[0]
	}

	if winAction != nil && !winAction.Combinable {
		trace.Mode = decision.ModeBlocked
		trace.WinningAction = winAction.Value
		trace.BlockReason = fmt.Sprintf("action %q from %s is not combinable", winAction.Value, winAction.Source)
		d.Action = winAction.Value
		d.ReasonCodes = append(d.ReasonCodes, winAction.Reason)
		reject(d, actions[1:], "lower_priority_action")
		reject(d, transitions, "blocked_by_non_combinable_action")
		return d
	}

	switch {
	case len(transitions) > 0:
		winTransition := &transitions[0]
		if winAction != nil {
			trace.Mode = decision.ModeMerged
			trace.WinningAction = winAction.Value
			d.Action = winAction.Value
			d.ReasonCodes = append(d.ReasonCodes, winAction.Reason)
			reject(d, actions[1:], "lower_priority_action")
		} else {
			trace.Mode = decision.ModeTransitionOnly
		}
		trace.WinningTransition = winTransition.Value
		d.NextState = winTransition.Value
		d.ReasonCodes = append(d.ReasonCodes, winTransition.Reason)
		reject(d, transitions[1:], "lower_priority_transition")
	case winAction != nil:
		trace.Mode = decision.ModeActionOnly
		trace.WinningAction = winAction.Value
		d.Action = winAction.Value
		d.ReasonCodes = append(d.ReasonCodes, winAction.Reason)
		reject(d, actions[1:], "lower_priority_action")
	default:
		trace.Mode = decision.ModeNoProposals
	}
	return d
}

// ResolveWithFallback resolves and, when the decision would stay in the
// current state without a blocking action, redirects it to the fallback
// transition (the state's "any" target).
func (r *Resolver) ResolveWithFallback(proposals []proposal.Proposal, currentState, fallback string, dataUpdates, flags map[string]any) *decision.Decision {
	d := r.Resolve(proposals, currentState, dataUpdates, flags)
	if fallback == "" || d.NextState != currentState || d.Trace.Mode == decision.ModeBlocked {
		return d
	}
	d.NextState = fallback
	d.AddReason(FallbackAnyTransition)
	return d
}

func partition(proposals []proposal.Proposal) (actions, transitions []proposal.Proposal) {
	for _, p := range proposals {
		switch p.Kind {
		case proposal.KindAction:
			actions = append(actions, p)
		case proposal.KindTransition:
			transitions = append(transitions, p)
		}
	}
	return actions, transitions
}

// rank orders proposals by priority then rank; the stable sort keeps
// insertion order as the final tie-break.
func rank(ps []proposal.Proposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority < ps[j].Priority
		}
		return ps[i].Rank < ps[j].Rank
	})
}

func rankingOf(ps []proposal.Proposal) []decision.Ranked {
	if len(ps) == 0 {
		return nil
	}
	out := make([]decision.Ranked, len(ps))
	for i, p := range ps {
		out[i] = decision.Ranked{
			Value:    p.Value,
			Priority: p.Priority,
			Rank:     p.Rank,
			Source:   p.Source,
		}
	}
	return out
}

func reject(d *decision.Decision, ps []proposal.Proposal, reason string) {
	for _, p := range ps {
		d.Rejected = append(d.Rejected, decision.Rejection{Proposal: p, Reason: reason})
	}
}

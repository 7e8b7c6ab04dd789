package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// Escalation trigger defaults.
const (
	DefaultFrustrationThreshold = 0.7
	DefaultUnclearThreshold     = 3
)

// explicitEscalationIntents are direct requests for a human.
var explicitEscalationIntents = map[string]bool{
	"escalate_to_human": true,
	"request_human":     true,
	"human_handoff":     true,
	"speak_to_agent":    true,
}

// sensitiveIntents always warrant a human regardless of explicit request.
var sensitiveIntents = map[string]bool{
	"legal_question":        true,
	"complaint":             true,
	"sensitive_topic":       true,
	"data_deletion_request": true,
}

type (
	// EscalationOptions tunes the behavioral escalation triggers.
	EscalationOptions struct {
		// FrustrationThreshold escalates once the frustration estimate
		// reaches it. Zero means DefaultFrustrationThreshold.
		FrustrationThreshold float64
		// UnclearThreshold escalates once the unclear streak reaches it.
		// Zero means DefaultUnclearThreshold.
		UnclearThreshold int
	}

	// Escalation hands the dialog to a human on explicit request,
	// sensitive topics or behavioral distress signals. The action is never
	// combinable: once escalation wins, nothing else moves the dialog.
	Escalation struct {
		frustration float64
		unclear     int
	}
)

// NewEscalation returns an escalation source with the given thresholds.
func NewEscalation(opts EscalationOptions) *Escalation {
	if opts.FrustrationThreshold == 0 {
		opts.FrustrationThreshold = DefaultFrustrationThreshold
	}
	if opts.UnclearThreshold == 0 {
		opts.UnclearThreshold = DefaultUnclearThreshold
	}
	return &Escalation{frustration: opts.FrustrationThreshold, unclear: opts.UnclearThreshold}
}

// escalationOptionsFrom reads threshold overrides out of a per-source
// configuration map.
func escalationOptionsFrom(cfg map[string]any) EscalationOptions {
	var opts EscalationOptions
	if v, ok := cfg["frustration_threshold"].(float64); ok {
		opts.FrustrationThreshold = v
	}
	switch v := cfg["unclear_threshold"].(type) {
	case int:
		opts.UnclearThreshold = v
	case float64:
		opts.UnclearThreshold = int(v)
	}
	return opts
}

// Name implements source.Source.
func (e *Escalation) Name() string { return NameEscalation }

// ShouldContribute fires on any escalation trigger.
func (e *Escalation) ShouldContribute(snap *blackboard.Snapshot) bool {
	return e.reason(snap) != ""
}

// Contribute proposes escalate_to_human plus a transition to the escalation
// entry point, falling back to soft_close.
func (e *Escalation) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	reason := e.reason(snap)
	if reason == "" {
		return nil
	}

	pri := proposal.High
	if reason == "escalation_requested" || reason == "escalation_sensitive_topic" {
		pri = proposal.Critical
	}
	target := snap.Flow().EntryPoint("escalation")
	if target == "" {
		target = state.SoftCloseState
	}

	if err := bb.ProposeAction(proposal.NewAction(
		ActionEscalateToHuman, pri, false, reason, e.Name())); err != nil {
		return err
	}
	return bb.ProposeTransition(proposal.NewTransition(target, pri, reason, e.Name()))
}

// reason classifies the strongest active trigger, or "" when none fires.
func (e *Escalation) reason(snap *blackboard.Snapshot) string {
	intent := snap.Intent()
	switch {
	case explicitEscalationIntents[intent]:
		return "escalation_requested"
	case sensitiveIntents[intent]:
		return "escalation_sensitive_topic"
	case snap.FrustrationLevel() >= e.frustration:
		return "escalation_frustration"
	}
	env := snap.Envelope()
	if env == nil {
		return ""
	}
	switch {
	case env.UnclearStreak >= e.unclear:
		return "escalation_unclear_streak"
	case env.HighValueLead && env.ComplexQuestion:
		return "escalation_high_value_lead"
	}
	return ""
}

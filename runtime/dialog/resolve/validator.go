package resolve

import (
	"fmt"

	"goa.design/parley/runtime/dialog/proposal"
)

// Severity grades a validation issue.
type Severity string

const (
	// SeverityError marks issues that block resolution.
	SeverityError Severity = "error"
	// SeverityWarning marks issues worth logging but not blocking.
	SeverityWarning Severity = "warning"
)

// Issue is one validator finding.
type Issue struct {
	Proposal proposal.Proposal `json:"proposal"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Severity Severity          `json:"severity"`
}

// ValidatorOptions configures a proposal validator. All sets are optional;
// an empty set skips its check.
type ValidatorOptions struct {
	// KnownActions is the closed set of action names, when enforced.
	KnownActions []string
	// KnownStates is the closed set of state names, when enforced.
	KnownStates []string
	// DocumentedReasons is the documented reason-code set, when enforced.
	DocumentedReasons []string
	// Strict elevates unknown actions from warning to error.
	Strict bool
}

// Validator checks proposals for structural and referential problems before
// resolution.
type Validator struct {
	actions map[string]bool
	states  map[string]bool
	reasons map[string]bool
	strict  bool
}

// NewValidator builds a validator.
func NewValidator(opts ValidatorOptions) *Validator {
	return &Validator{
		actions: toSet(opts.KnownActions),
		states:  toSet(opts.KnownStates),
		reasons: toSet(opts.DocumentedReasons),
		strict:  opts.Strict,
	}
}

// Validate checks every proposal and returns the issues found, in proposal
// order.
func (v *Validator) Validate(proposals []proposal.Proposal) []Issue {
	var issues []Issue
	for _, p := range proposals {
		issues = append(issues, v.check(p)...)
	}
	return issues
}

func (v *Validator) check(p proposal.Proposal) []Issue {
	var issues []Issue
	add := func(code, msg string, sev Severity) {
		issues = append(issues, Issue{Proposal: p, Code: code, Message: msg, Severity: sev})
	}

	if !p.Kind.Valid() {
		add("unknown_kind", fmt.Sprintf("unknown proposal kind %q", p.Kind), SeverityError)
	}
	if p.Value == "" {
		add("empty_value", "proposal value is empty", SeverityError)
	}
	if p.Source == "" {
		add("missing_source", "proposal has no source name", SeverityError)
	}

	switch p.Kind {
	case proposal.KindAction:
		if p.Value != "" && len(v.actions) > 0 && !v.actions[p.Value] {
			sev := SeverityWarning
			if v.strict {
				sev = SeverityError
			}
			add("unknown_action", fmt.Sprintf("action %q is not a known action", p.Value), sev)
		}
		if !p.Combinable && p.Priority == proposal.Low {
			add("low_priority_blocking_action", fmt.Sprintf("non-combinable action %q must not be low priority", p.Value), SeverityWarning)
		}
	case proposal.KindTransition:
		if p.Value != "" && len(v.states) > 0 && !v.states[p.Value] {
			add("unknown_state", fmt.Sprintf("transition target %q is not a known state", p.Value), SeverityError)
		}
		if !p.Combinable {
			add("non_combinable_transition", fmt.Sprintf("transition to %q must be combinable", p.Value), SeverityError)
		}
	}

	if p.Reason != "" && len(v.reasons) > 0 && !v.reasons[p.Reason] {
		add("undocumented_reason", fmt.Sprintf("reason code %q is not documented", p.Reason), SeverityWarning)
	}
	return issues
}

// HasBlocking reports whether any issue is an error.
func HasBlocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func toSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

package resolve

import "goa.design/parley/runtime/dialog/decision"

// Sanitation is the outcome of checking a decision's next state against the
// known state set. The sanitizer never mutates the decision; the caller
// applies EffectiveState.
type Sanitation struct {
	RequestedState string         `json:"requested_state"`
	EffectiveState string         `json:"effective_state"`
	Valid          bool           `json:"is_valid"`
	Sanitized      bool           `json:"sanitized"`
	ReasonCode     string         `json:"reason_code,omitempty"`
	Diagnostic     map[string]any `json:"diagnostic,omitempty"`
}

// SanitizeNextState validates a requested next state. An empty request or an
// empty known set passes through; an unknown target is rewritten to the
// current state.
func SanitizeNextState(requested, current string, known []string) Sanitation {
	s := Sanitation{RequestedState: requested, EffectiveState: requested, Valid: true}
	if requested == "" {
		s.EffectiveState = current
		return s
	}
	if len(known) == 0 {
		return s
	}
	for _, k := range known {
		if k == requested {
			return s
		}
	}
	s.Valid = false
	s.Sanitized = true
	s.EffectiveState = current
	s.ReasonCode = decision.ReasonSanitized
	s.Diagnostic = map[string]any{
		"requested_state": requested,
		"current_state":   current,
	}
	return s
}

// Package decision defines the resolved outcome of one dialog turn: the
// winning action and next state, the audit trail of rejected proposals and
// the resolution trace, plus the enrichment fields the orchestrator fills
// for external consumers.
package decision

import (
	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

type (
	// Mode describes how the resolver combined the winning proposals.
	Mode string

	// Ranked is one proposal as seen by the resolver's ordering.
	Ranked struct {
		Value    string            `json:"value"`
		Priority proposal.Priority `json:"priority"`
		Rank     int               `json:"rank"`
		Source   string            `json:"source"`
	}

	// Trace records how the resolver ranked and combined proposals.
	Trace struct {
		ActionRanking     []Ranked `json:"action_ranking,omitempty"`
		TransitionRanking []Ranked `json:"transition_ranking,omitempty"`
		WinningAction     string   `json:"winning_action,omitempty"`
		WinningTransition string   `json:"winning_transition,omitempty"`
		Mode              Mode     `json:"merge_decision"`
		BlockReason       string   `json:"block_reason,omitempty"`
		// SanitizerDiagnostic is set when the orchestrator had to rewrite
		// an invalid next state.
		SanitizerDiagnostic map[string]any `json:"sanitizer_diagnostic,omitempty"`
	}

	// Rejection pairs a losing proposal with the reason it lost.
	Rejection struct {
		Proposal proposal.Proposal `json:"proposal"`
		Reason   string            `json:"reason"`
	}

	// ObjectionStats summarizes objection pressure for external consumers.
	ObjectionStats struct {
		Consecutive    int  `json:"consecutive"`
		Total          int  `json:"total"`
		MaxConsecutive int  `json:"max_consecutive"`
		MaxTotal       int  `json:"max_total"`
		LimitReached   bool `json:"limit_reached"`
	}

	// Decision is the outcome of one turn. The resolver fills the core
	// fields; the orchestrator enriches the rest after commit.
	Decision struct {
		Action      string         `json:"action"`
		NextState   string         `json:"next_state"`
		ReasonCodes []string       `json:"reason_codes"`
		Rejected    []Rejection    `json:"rejected_proposals,omitempty"`
		DataUpdates map[string]any `json:"data_updates,omitempty"`
		FlagsToSet  map[string]any `json:"flags_to_set,omitempty"`
		Trace       *Trace         `json:"resolution_trace,omitempty"`

		// Enrichment filled by the orchestrator after commit.
		PrevState              string               `json:"prev_state,omitempty"`
		Goal                   string               `json:"goal,omitempty"`
		CollectedData          map[string]any       `json:"collected_data,omitempty"`
		MissingData            []string             `json:"missing_data,omitempty"`
		OptionalData           []string             `json:"optional_data,omitempty"`
		Final                  bool                 `json:"is_final"`
		Phase                  string               `json:"spin_phase,omitempty"`
		PrevPhase              string               `json:"prev_phase,omitempty"`
		Circular               *state.CircularStats `json:"circular_flow,omitempty"`
		Objections             *ObjectionStats      `json:"objection_flow,omitempty"`
		DisambiguationOptions  []envelope.Option    `json:"disambiguation_options,omitempty"`
		DisambiguationQuestion string               `json:"disambiguation_question,omitempty"`
	}
)

const (
	// ModeBlocked means a non-combinable action suppressed all transitions.
	ModeBlocked Mode = "BLOCKED"
	// ModeMerged means the winning action and winning transition combined.
	ModeMerged Mode = "MERGED"
	// ModeTransitionOnly means a transition won with no action proposed.
	ModeTransitionOnly Mode = "TRANSITION_ONLY"
	// ModeActionOnly means an action won with no transition proposed.
	ModeActionOnly Mode = "ACTION_ONLY"
	// ModeNoProposals means nothing was proposed and defaults applied.
	ModeNoProposals Mode = "NO_PROPOSALS"
)

// Fallback reason codes used when the pipeline cannot resolve normally.
const (
	ReasonFallbackValidation = "fallback_validation_error"
	ReasonFallbackProcessing = "fallback_processing_error"
	// ReasonSanitized is appended when an invalid next state was rewritten.
	ReasonSanitized = "invalid_next_state_sanitized"
	// FallbackAction keeps the dialog on its current goal.
	FallbackAction = "continue_current_goal"
)

// Fallback builds the safe decision used when validation or processing
// fails: stay in the current state and continue its goal. Two calls with the
// same inputs produce equal values.
func Fallback(currentState, reason string) *Decision {
	return &Decision{
		Action:      FallbackAction,
		NextState:   currentState,
		ReasonCodes: []string{reason},
	}
}

// HasReason reports whether the decision carries the given reason code.
func (d *Decision) HasReason(code string) bool {
	for _, c := range d.ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}

// AddReason appends a reason code unless already present.
func (d *Decision) AddReason(code string) {
	if !d.HasReason(code) {
		d.ReasonCodes = append(d.ReasonCodes, code)
	}
}

// Transitioned reports whether the decision moves the dialog to a new state.
func (d *Decision) Transitioned() bool {
	return d.NextState != "" && d.NextState != d.PrevState
}

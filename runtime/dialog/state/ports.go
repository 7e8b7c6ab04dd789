// Package state defines the ports through which the engine mutates durable
// dialog state (the state machine, the intent tracker and the circular-flow
// counters) together with in-memory implementations used by tests, the demo
// and session hydration.
package state

import (
	"strings"

	"goa.design/parley/runtime/dialog/flow"
)

// Well-known states and flags the built-in knowledge sources depend on.
const (
	// SoftCloseState is the graceful end-of-dialog state guards eject to.
	SoftCloseState = "soft_close"
	// CloseState is the last-resort eject target.
	CloseState = "close"
	// HandleObjectionState is the detour state objections route through.
	HandleObjectionState = "handle_objection"
	// ObjectionLimitFinalFlag forces IsFinal once the objection limit fires.
	ObjectionLimitFinalFlag = "_objection_limit_final"
)

// Machine is the state-machine port the blackboard and engine consume. The
// engine mutates it only through UpdateData and TransitionTo; everything else
// is read access.
type Machine interface {
	// State returns the current dialog state.
	State() string
	// CollectedData returns the live collected-data map.
	CollectedData() map[string]any
	// UpdateData merges the given fields into the collected data.
	UpdateData(data map[string]any)
	// CurrentPhase returns the phase recorded for the current state.
	CurrentPhase() string
	// LastAction returns the action committed by the previous turn.
	LastAction() string
	// StateBeforeObjection returns the saved detour return point, if any.
	StateBeforeObjection() string
	// SetStateBeforeObjection saves the detour return point.
	SetStateBeforeObjection(state string)
	// ClearStateBeforeObjection clears the saved return point.
	ClearStateBeforeObjection()
	// Circular exposes the go-back counters.
	Circular() CircularFlow
	// Intents exposes the intent tracker.
	Intents() Tracker
	// IsFinal reports whether the dialog has reached a terminal state,
	// honoring the objection-limit override.
	IsFinal() bool
	// TransitionTo atomically updates state, phase and last action. With
	// validate set, unknown target states are refused and false is returned.
	TransitionTo(next, action, phase, source string, validate bool) bool
	// SyncPhaseFromState realigns the phase with the current state's mapping.
	SyncPhaseFromState()
}

// CircularFlow tracks go-back usage for one dialog.
type CircularFlow interface {
	// GoBackCount returns how many go-backs were taken.
	GoBackCount() int
	// MaxGoBacks returns the configured ceiling.
	MaxGoBacks() int
	// Stats returns the counters as one value.
	Stats() CircularStats
	// GoBackTarget resolves the go-back destination from a state's
	// transitions, empty when none is configured.
	GoBackTarget(state string, transitions map[string]flow.Transition) string
	// LimitReached reports whether the ceiling was hit.
	LimitReached() bool
	// Remaining returns how many go-backs are left.
	Remaining() int
	// History returns the recorded hops, oldest first.
	History() []GoBackHop
	// RecordGoBack appends a hop and advances the counter.
	RecordGoBack(from, to string)
}

// CircularStats is the exported view of the go-back counters.
type CircularStats struct {
	GoBackCount  int  `json:"goback_count"`
	MaxGoBacks   int  `json:"max_gobacks"`
	Remaining    int  `json:"remaining"`
	LimitReached bool `json:"limit_reached"`
}

// GoBackHop records one go-back movement.
type GoBackHop struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Tracker observes the intent stream of one dialog.
type Tracker interface {
	// TurnNumber returns the current turn, starting at 0 before the first
	// AdvanceTurn.
	TurnNumber() int
	// PrevIntent returns the most recently recorded intent.
	PrevIntent() string
	// Record notes an intent observed in a state.
	Record(intent, state string)
	// AdvanceTurn increments the turn counter.
	AdvanceTurn()
	// ObjectionConsecutive returns the current objection streak.
	ObjectionConsecutive() int
	// ObjectionTotal returns the dialog-wide objection count.
	ObjectionTotal() int
	// TotalCount returns how often the intent was recorded.
	TotalCount(intent string) int
	// CategoryTotal returns how often the category was recorded.
	CategoryTotal(cat string) int
	// CategoryStreak returns the current consecutive run of the category.
	CategoryStreak(cat string) int
	// IntentsByCategory returns the distinct intents recorded under cat.
	IntentsByCategory(cat string) []string
	// RecentIntents returns up to limit most recent intents, newest last.
	RecentIntents(limit int) []string
}

// Category buckets an intent for streak and limit accounting.
func Category(intent string) string {
	switch {
	case strings.HasPrefix(intent, "objection_"):
		return "objection"
	case intent == "price_question", intent == "discount_request",
		intent == "payment_terms_question", intent == "price_comparison",
		intent == "budget_concern":
		return "price"
	case intent == "question" || strings.HasSuffix(intent, "_question"):
		return "question"
	case intent == "greeting", intent == "goodbye", intent == "smalltalk":
		return "social"
	case intent == "go_back":
		return "navigation"
	default:
		return "general"
	}
}

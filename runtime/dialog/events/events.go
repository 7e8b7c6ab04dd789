// Package events implements the typed event bus the orchestrator publishes
// turn lifecycle events on. The bus runs in sync mode (handlers called on the
// emitting goroutine) or async mode (one worker draining a FIFO queue) and
// keeps a bounded ring of recent events for diagnostics.
package events

import (
	"time"
)

// Kind identifies a turn lifecycle event.
type Kind string

const (
	// TurnStarted fires after the blackboard froze the turn snapshot.
	TurnStarted Kind = "turn_started"
	// SourceContributed fires after each knowledge source ran.
	SourceContributed Kind = "source_contributed"
	// ProposalValidated fires after the validator checked all proposals.
	ProposalValidated Kind = "proposal_validated"
	// ConflictResolved fires after the resolver produced a decision.
	ConflictResolved Kind = "conflict_resolved"
	// DecisionCommitted fires after the decision was committed.
	DecisionCommitted Kind = "decision_committed"
	// StateTransitioned fires when the committed decision changed state.
	StateTransitioned Kind = "state_transitioned"
	// ErrorOccurred fires when a source or the pipeline failed.
	ErrorOccurred Kind = "error_occurred"
)

// Event is one bus message. Data carries kind-specific fields.
type Event struct {
	Kind       Kind           `json:"kind"`
	Timestamp  time.Time      `json:"timestamp"`
	TurnNumber int            `json:"turn_number"`
	Data       map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(kind Kind, turn int, data map[string]any) Event {
	return Event{
		Kind:       kind,
		Timestamp:  time.Now(),
		TurnNumber: turn,
		Data:       data,
	}
}

// ring is a fixed-capacity event buffer discarding the oldest entry on
// overflow.
type ring struct {
	buf   []Event
	start int
	n     int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Event, size)}
}

func (r *ring) add(e Event) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) list() []Event {
	out := make([]Event, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *ring) clear() {
	r.start, r.n = 0, 0
}

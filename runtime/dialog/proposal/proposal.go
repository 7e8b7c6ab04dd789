// Package proposal defines the immutable value objects knowledge sources write
// to the blackboard: typed proposals carrying a priority, a tie-break rank and
// the combinable flag the conflict resolver arbitrates on.
package proposal

import (
	"errors"
	"fmt"
)

// Priority orders proposals during conflict resolution. Lower numeric values
// are stronger: a Critical proposal always outranks a High one.
type Priority int

const (
	// Critical is reserved for safety and limit enforcement (escalation,
	// objection limits, soft close).
	Critical Priority = 0
	// High marks proposals that should win over routine flow progression.
	High Priority = 1
	// Normal is the default strength for flow-driven proposals.
	Normal Priority = 2
	// Low marks best-effort suggestions.
	Low Priority = 3
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether the priority is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= Critical && p <= Low
}

// Kind identifies what a proposal asks the engine to do.
type Kind string

const (
	// KindAction proposes a named response directive.
	KindAction Kind = "action"
	// KindTransition proposes a state change.
	KindTransition Kind = "transition"
	// KindDataUpdate proposes a collected-data mutation.
	KindDataUpdate Kind = "data_update"
	// KindFlagSet proposes setting a named flag.
	KindFlagSet Kind = "flag_set"
)

// Valid reports whether the kind is recognized.
func (k Kind) Valid() bool {
	switch k {
	case KindAction, KindTransition, KindDataUpdate, KindFlagSet:
		return true
	default:
		return false
	}
}

// DefaultRank is the sentinel tie-break rank assigned to proposals no priority
// definition matched. It sorts after every configured rank.
const DefaultRank = 10000

// Proposal is an immutable suggestion produced by a knowledge source. Sources
// build proposals through the New* constructors and never mutate them after
// appending them to the blackboard; only the priority assigner rewrites Rank
// before resolution.
type Proposal struct {
	// Kind identifies the proposal type.
	Kind Kind
	// Value holds the action name for KindAction, the target state for
	// KindTransition, and the field or flag name otherwise.
	Value string
	// Priority is the resolution strength.
	Priority Priority
	// Rank breaks ties within a priority level, ascending. DefaultRank when no
	// priority definition matched.
	Rank int
	// Combinable reports whether the proposal tolerates a concurrent state
	// transition. Always true for transitions; false on an action blocks every
	// transition in the turn.
	Combinable bool
	// Reason is a short stable identifier recorded on the decision for audit.
	Reason string
	// Source names the producing knowledge source.
	Source string
	// Metadata carries opaque source data (option indices, deferred-increment
	// markers and the like).
	Metadata map[string]any
}

// NewAction builds an action proposal with the default rank sentinel.
func NewAction(action string, pri Priority, combinable bool, reason, source string) Proposal {
	return Proposal{
		Kind:       KindAction,
		Value:      action,
		Priority:   pri,
		Rank:       DefaultRank,
		Combinable: combinable,
		Reason:     reason,
		Source:     source,
	}
}

// NewTransition builds a transition proposal. Transitions are combinable by
// contract.
func NewTransition(target string, pri Priority, reason, source string) Proposal {
	return Proposal{
		Kind:       KindTransition,
		Value:      target,
		Priority:   pri,
		Rank:       DefaultRank,
		Combinable: true,
		Reason:     reason,
		Source:     source,
	}
}

// WithMetadata returns a copy of the proposal with the given metadata map
// attached. The map is stored as provided; callers must not mutate it after.
func (p Proposal) WithMetadata(md map[string]any) Proposal {
	p.Metadata = md
	return p
}

// Meta returns the metadata value for key, or nil when absent.
func (p Proposal) Meta(key string) any {
	if p.Metadata == nil {
		return nil
	}
	return p.Metadata[key]
}

// MetaBool returns the boolean metadata value for key, false when absent or of
// another type.
func (p Proposal) MetaBool(key string) bool {
	b, _ := p.Meta(key).(bool)
	return b
}

// MetaString returns the string metadata value for key, empty when absent or
// of another type.
func (p Proposal) MetaString(key string) string {
	s, _ := p.Meta(key).(string)
	return s
}

// Validate checks the structural invariants every proposal must satisfy before
// it is appended to the blackboard.
func (p Proposal) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown proposal kind %q", string(p.Kind))
	}
	if p.Value == "" {
		return errors.New("proposal value is required")
	}
	if p.Source == "" {
		return errors.New("proposal source is required")
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("unknown priority %d", int(p.Priority))
	}
	if p.Kind == KindTransition && !p.Combinable {
		return errors.New("transition proposals must be combinable")
	}
	if p.Kind == KindAction && !p.Combinable && p.Priority == Low {
		return errors.New("blocking actions must not have low priority")
	}
	return nil
}

// Package blackboard implements the shared working memory of one dialog
// turn: a frozen context snapshot, append-only proposal lists and the
// write-once decision region. One blackboard serves one dialog; turns must
// be serialized by the caller.
package blackboard

import (
	"errors"
	"fmt"

	"goa.design/parley/runtime/dialog/decision"
	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
	"goa.design/parley/runtime/dialog/tenant"
)

var (
	// ErrNoTurn is returned when the blackboard is read before BeginTurn.
	ErrNoTurn = errors.New("blackboard: no active turn")
	// ErrCommitted is returned when a second decision is committed in the
	// same turn.
	ErrCommitted = errors.New("blackboard: decision already committed this turn")
)

// Options configures a blackboard.
type Options struct {
	// Machine is the dialog state machine. Required.
	Machine state.Machine
	// Flow is the dialog flow configuration. Required.
	Flow flow.Config
	// Tenant scopes features and persona limits. The zero value is valid.
	Tenant tenant.Config
	// Persona selects the objection-limit profile. Defaults to "default".
	Persona string
}

// Blackboard is the per-dialog working memory.
type Blackboard struct {
	machine state.Machine
	flow    flow.Config
	tenant  tenant.Config
	persona string

	snap        *Snapshot
	proposals   []proposal.Proposal
	dataUpdates map[string]any
	flags       map[string]any
	decision    *decision.Decision
}

// New builds a blackboard bound to one dialog's machine and flow.
func New(opts Options) (*Blackboard, error) {
	if opts.Machine == nil {
		return nil, errors.New("machine is required")
	}
	if opts.Flow == nil {
		return nil, errors.New("flow is required")
	}
	persona := opts.Persona
	if persona == "" {
		persona = "default"
	}
	return &Blackboard{
		machine: opts.Machine,
		flow:    opts.Flow,
		tenant:  opts.Tenant,
		persona: persona,
	}, nil
}

// BeginTurn opens a new turn: it records the intent (skipping objections once
// the persona limit is reached, so the counters stop growing), advances the
// turn counter, merges the non-empty extracted values into the collected
// data, freezes a fresh snapshot and clears the proposal and decision
// regions. The returned snapshot is what every source will see this turn.
func (b *Blackboard) BeginTurn(intent string, extracted map[string]any, env *envelope.Envelope, userMessage string, frustration float64) *Snapshot {
	tracker := b.machine.Intents()
	prevIntent := tracker.PrevIntent()

	if state.Category(intent) != "objection" || !b.objectionLimitReached(tracker) {
		tracker.Record(intent, b.machine.State())
	}
	tracker.AdvanceTurn()

	merged := make(map[string]any)
	for k, v := range extracted {
		if !present(v) {
			continue
		}
		merged[k] = v
	}
	if len(merged) > 0 {
		b.machine.UpdateData(merged)
	}

	if env == nil {
		env = &envelope.Envelope{}
	}
	collected := make(map[string]any, len(b.machine.CollectedData()))
	for k, v := range b.machine.CollectedData() {
		collected[k] = v
	}
	st := b.machine.State()
	stateCfg, _ := b.flow.State(st)
	b.snap = &Snapshot{
		st:                   st,
		intent:               intent,
		prevIntent:           prevIntent,
		turn:                 tracker.TurnNumber(),
		persona:              b.persona,
		tenant:               b.tenant,
		collected:            collected,
		extracted:            merged,
		stateCfg:             stateCfg,
		flowCfg:              b.flow,
		env:                  env,
		message:              userMessage,
		frustration:          frustration,
		lastAction:           b.machine.LastAction(),
		stateBeforeObjection: b.machine.StateBeforeObjection(),
		circular:             b.machine.Circular().Stats(),
		objectionConsecutive: tracker.ObjectionConsecutive(),
		objectionTotal:       tracker.ObjectionTotal(),
	}

	b.proposals = nil
	b.dataUpdates = make(map[string]any)
	b.flags = make(map[string]any)
	b.decision = nil
	return b.snap
}

func (b *Blackboard) objectionLimitReached(tracker state.Tracker) bool {
	limit := b.tenant.LimitFor(b.persona)
	return tracker.ObjectionConsecutive() >= limit.Consecutive ||
		tracker.ObjectionTotal() >= limit.Total
}

// ProposeAction appends an action proposal to the turn.
func (b *Blackboard) ProposeAction(p proposal.Proposal) error {
	if b.snap == nil {
		return ErrNoTurn
	}
	if p.Kind != proposal.KindAction {
		return fmt.Errorf("propose action: got kind %q", p.Kind)
	}
	b.proposals = append(b.proposals, p)
	return nil
}

// ProposeTransition appends a transition proposal to the turn.
func (b *Blackboard) ProposeTransition(p proposal.Proposal) error {
	if b.snap == nil {
		return ErrNoTurn
	}
	if p.Kind != proposal.KindTransition {
		return fmt.Errorf("propose transition: got kind %q", p.Kind)
	}
	b.proposals = append(b.proposals, p)
	return nil
}

// ProposeDataUpdate stages a collected-data write applied at commit time.
// Later writes to the same field win.
func (b *Blackboard) ProposeDataUpdate(field string, value any) error {
	if b.snap == nil {
		return ErrNoTurn
	}
	if field == "" {
		return errors.New("propose data update: field is required")
	}
	b.dataUpdates[field] = value
	return nil
}

// ProposeFlagSet stages a flag applied after the state transition.
func (b *Blackboard) ProposeFlagSet(flag string, value any) error {
	if b.snap == nil {
		return ErrNoTurn
	}
	if flag == "" {
		return errors.New("propose flag set: flag is required")
	}
	b.flags[flag] = value
	return nil
}

// Context returns the frozen snapshot of the active turn.
func (b *Blackboard) Context() (*Snapshot, error) {
	if b.snap == nil {
		return nil, ErrNoTurn
	}
	return b.snap, nil
}

// CurrentIntent returns the intent of the active turn.
func (b *Blackboard) CurrentIntent() (string, error) {
	if b.snap == nil {
		return "", ErrNoTurn
	}
	return b.snap.Intent(), nil
}

// Proposals returns a copy of every action and transition proposal in
// insertion order.
func (b *Blackboard) Proposals() []proposal.Proposal {
	out := make([]proposal.Proposal, len(b.proposals))
	copy(out, b.proposals)
	return out
}

// ProposalCount returns how many proposals were appended so far.
func (b *Blackboard) ProposalCount() int { return len(b.proposals) }

// ProposalsFrom returns a copy of the proposals appended at or after the
// given insertion index. The engine uses it to attribute proposals to the
// source that just ran.
func (b *Blackboard) ProposalsFrom(start int) []proposal.Proposal {
	if start < 0 || start >= len(b.proposals) {
		return nil
	}
	out := make([]proposal.Proposal, len(b.proposals)-start)
	copy(out, b.proposals[start:])
	return out
}

// ActionProposals returns the action proposals in insertion order.
func (b *Blackboard) ActionProposals() []proposal.Proposal {
	return b.filter(proposal.KindAction)
}

// TransitionProposals returns the transition proposals in insertion order.
func (b *Blackboard) TransitionProposals() []proposal.Proposal {
	return b.filter(proposal.KindTransition)
}

func (b *Blackboard) filter(kind proposal.Kind) []proposal.Proposal {
	var out []proposal.Proposal
	for _, p := range b.proposals {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// DataUpdates returns a copy of the staged data updates.
func (b *Blackboard) DataUpdates() map[string]any {
	out := make(map[string]any, len(b.dataUpdates))
	for k, v := range b.dataUpdates {
		out[k] = v
	}
	return out
}

// FlagsToSet returns a copy of the staged flags.
func (b *Blackboard) FlagsToSet() map[string]any {
	out := make(map[string]any, len(b.flags))
	for k, v := range b.flags {
		out[k] = v
	}
	return out
}

// Decision returns the committed decision, nil before commit.
func (b *Blackboard) Decision() *decision.Decision { return b.decision }

// CommitDecision stores the turn's decision and applies both its data
// updates and the staged ones to the state machine. Flags stay staged; the
// orchestrator applies them after the transition.
func (b *Blackboard) CommitDecision(d *decision.Decision) error {
	if b.snap == nil {
		return ErrNoTurn
	}
	if d == nil {
		return errors.New("commit decision: decision is required")
	}
	if b.decision != nil {
		return ErrCommitted
	}
	b.decision = d
	if len(b.dataUpdates) > 0 {
		b.machine.UpdateData(b.dataUpdates)
	}
	if len(d.DataUpdates) > 0 {
		b.machine.UpdateData(d.DataUpdates)
	}
	return nil
}

package state

import (
	"errors"

	"goa.design/parley/runtime/dialog/flow"
)

// MachineOptions configures an in-memory dialog machine.
type MachineOptions struct {
	// Flow provides state validation and phase mapping. Required.
	Flow flow.Config
	// Start is the initial state. Required.
	Start string
	// MaxGoBacks bounds the circular-flow counter. Defaults to 3.
	MaxGoBacks int
	// Collected seeds the collected data.
	Collected map[string]any
}

// DialogMachine is the in-memory Machine implementation. One instance per
// dialog; turns must be serialized by the caller.
type DialogMachine struct {
	flow                 flow.Config
	state                string
	phase                string
	lastAction           string
	stateBeforeObjection string
	collected            map[string]any
	circular             *Circular
	intents              *IntentLog
}

// NewMachine builds a DialogMachine positioned at the start state.
func NewMachine(opts MachineOptions) (*DialogMachine, error) {
	if opts.Flow == nil {
		return nil, errors.New("flow is required")
	}
	if opts.Start == "" {
		return nil, errors.New("start state is required")
	}
	if _, ok := opts.Flow.State(opts.Start); !ok {
		return nil, errors.New("start state is not defined by the flow")
	}
	maxGoBacks := opts.MaxGoBacks
	if maxGoBacks <= 0 {
		maxGoBacks = 3
	}
	collected := make(map[string]any, len(opts.Collected))
	for k, v := range opts.Collected {
		collected[k] = v
	}
	return &DialogMachine{
		flow:      opts.Flow,
		state:     opts.Start,
		phase:     opts.Flow.PhaseFor(opts.Start),
		collected: collected,
		circular:  NewCircular(maxGoBacks),
		intents:   NewIntentLog(),
	}, nil
}

// State implements Machine.
func (m *DialogMachine) State() string { return m.state }

// CollectedData implements Machine. The returned map is the live store;
// callers treat it as read-only and mutate through UpdateData.
func (m *DialogMachine) CollectedData() map[string]any { return m.collected }

// UpdateData implements Machine.
func (m *DialogMachine) UpdateData(data map[string]any) {
	for k, v := range data {
		m.collected[k] = v
	}
}

// CurrentPhase implements Machine.
func (m *DialogMachine) CurrentPhase() string { return m.phase }

// LastAction implements Machine.
func (m *DialogMachine) LastAction() string { return m.lastAction }

// StateBeforeObjection implements Machine.
func (m *DialogMachine) StateBeforeObjection() string { return m.stateBeforeObjection }

// SetStateBeforeObjection implements Machine.
func (m *DialogMachine) SetStateBeforeObjection(state string) { m.stateBeforeObjection = state }

// ClearStateBeforeObjection implements Machine.
func (m *DialogMachine) ClearStateBeforeObjection() { m.stateBeforeObjection = "" }

// Circular implements Machine.
func (m *DialogMachine) Circular() CircularFlow { return m.circular }

// Intents implements Machine.
func (m *DialogMachine) Intents() Tracker { return m.intents }

// IsFinal implements Machine. A soft close becomes terminal once the
// objection limit flag was set, even when the state itself is not final.
func (m *DialogMachine) IsFinal() bool {
	if s, ok := m.flow.State(m.state); ok && s.Final {
		return true
	}
	if m.state == SoftCloseState {
		if v, _ := m.collected[ObjectionLimitFinalFlag].(bool); v {
			return true
		}
	}
	return false
}

// TransitionTo implements Machine. State, phase and last action move as one
// unit; a validation failure leaves all three untouched.
func (m *DialogMachine) TransitionTo(next, action, phase, source string, validate bool) bool {
	if next == "" {
		return false
	}
	if validate {
		if _, ok := m.flow.State(next); !ok {
			return false
		}
	}
	if phase == "" {
		phase = m.flow.PhaseFor(next)
	}
	m.state = next
	m.phase = phase
	if action != "" {
		m.lastAction = action
	}
	return true
}

// SyncPhaseFromState implements Machine.
func (m *DialogMachine) SyncPhaseFromState() {
	m.phase = m.flow.PhaseFor(m.state)
}

// Export captures the machine into a serializable form for session storage.
func (m *DialogMachine) Export() Export {
	collected := make(map[string]any, len(m.collected))
	for k, v := range m.collected {
		collected[k] = v
	}
	return Export{
		State:                m.state,
		Phase:                m.phase,
		LastAction:           m.lastAction,
		StateBeforeObjection: m.stateBeforeObjection,
		Collected:            collected,
		GoBacks:              m.circular.History(),
		MaxGoBacks:           m.circular.MaxGoBacks(),
		Turn:                 m.intents.TurnNumber(),
		Intents:              m.intents.Records(),
	}
}

// Import restores a machine from a previously exported form. The flow bound
// at construction stays in place; only dialog state is replaced.
func (m *DialogMachine) Import(e Export) error {
	if e.State == "" {
		return errors.New("export state is required")
	}
	if _, ok := m.flow.State(e.State); !ok {
		return errors.New("export state is not defined by the flow")
	}
	m.state = e.State
	m.phase = e.Phase
	if m.phase == "" {
		m.phase = m.flow.PhaseFor(e.State)
	}
	m.lastAction = e.LastAction
	m.stateBeforeObjection = e.StateBeforeObjection
	m.collected = make(map[string]any, len(e.Collected))
	for k, v := range e.Collected {
		m.collected[k] = v
	}
	maxGoBacks := e.MaxGoBacks
	if maxGoBacks <= 0 {
		maxGoBacks = m.circular.MaxGoBacks()
	}
	m.circular = restoreCircular(maxGoBacks, e.GoBacks)
	m.intents = restoreIntentLog(e.Turn, e.Intents)
	return nil
}

// Export is the serializable snapshot of a dialog machine.
type Export struct {
	State                string         `json:"state"`
	Phase                string         `json:"phase,omitempty"`
	LastAction           string         `json:"last_action,omitempty"`
	StateBeforeObjection string         `json:"state_before_objection,omitempty"`
	Collected            map[string]any `json:"collected,omitempty"`
	GoBacks              []GoBackHop    `json:"gobacks,omitempty"`
	MaxGoBacks           int            `json:"max_gobacks,omitempty"`
	Turn                 int            `json:"turn"`
	Intents              []IntentRecord `json:"intents,omitempty"`
}

package blackboard

import (
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/state"
	"goa.design/parley/runtime/dialog/tenant"
)

// Snapshot is the frozen per-turn context every knowledge source reads.
// It is built once by BeginTurn and never mutated afterwards; proposals made
// during the turn are not reflected back into it.
type Snapshot struct {
	st         string
	intent     string
	prevIntent string
	turn       int
	persona    string
	tenant     tenant.Config

	collected map[string]any
	extracted map[string]any

	stateCfg *flow.State
	flowCfg  flow.Config

	env        *envelope.Envelope
	message    string
	frustration float64

	lastAction           string
	stateBeforeObjection string
	circular             state.CircularStats
	objectionConsecutive int
	objectionTotal       int
}

// State returns the dialog state the turn started in.
func (s *Snapshot) State() string { return s.st }

// Intent returns the classified intent of the turn.
func (s *Snapshot) Intent() string { return s.intent }

// PrevIntent returns the intent recorded before this turn.
func (s *Snapshot) PrevIntent() string { return s.prevIntent }

// TurnNumber returns the turn counter after BeginTurn advanced it.
func (s *Snapshot) TurnNumber() int { return s.turn }

// Persona returns the active persona.
func (s *Snapshot) Persona() string { return s.persona }

// TenantID returns the tenant identifier.
func (s *Snapshot) TenantID() string { return s.tenant.ID }

// CollectedData returns the frozen collected-data view. Callers must not
// mutate it.
func (s *Snapshot) CollectedData() map[string]any { return s.collected }

// Collected looks up one collected field.
func (s *Snapshot) Collected(field string) (any, bool) {
	v, ok := s.collected[field]
	return v, ok
}

// Extracted returns the data extracted and merged this turn.
func (s *Snapshot) Extracted() map[string]any { return s.extracted }

// StateConfig returns the flow configuration of the current state, nil when
// the state is not defined by the flow.
func (s *Snapshot) StateConfig() *flow.State { return s.stateCfg }

// Flow returns the read-only flow configuration.
func (s *Snapshot) Flow() flow.Config { return s.flowCfg }

// Phase returns the phase of the current state.
func (s *Snapshot) Phase() string { return s.flowCfg.PhaseFor(s.st) }

// PhaseOf returns the phase mapped to an arbitrary state.
func (s *Snapshot) PhaseOf(state string) string { return s.flowCfg.PhaseFor(state) }

// Envelope returns the behavioral-signal bundle, never nil.
func (s *Snapshot) Envelope() *envelope.Envelope { return s.env }

// UserMessage returns the raw user message of the turn.
func (s *Snapshot) UserMessage() string { return s.message }

// FrustrationLevel returns the upstream frustration estimate in [0, 1].
func (s *Snapshot) FrustrationLevel() float64 { return s.frustration }

// LastAction returns the action committed by the previous turn.
func (s *Snapshot) LastAction() string { return s.lastAction }

// StateBeforeObjection returns the saved objection-detour return point.
func (s *Snapshot) StateBeforeObjection() string { return s.stateBeforeObjection }

// Circular returns the go-back counters frozen at turn start.
func (s *Snapshot) Circular() state.CircularStats { return s.circular }

// ObjectionConsecutive returns the objection streak frozen at turn start.
func (s *Snapshot) ObjectionConsecutive() int { return s.objectionConsecutive }

// ObjectionTotal returns the objection total frozen at turn start.
func (s *Snapshot) ObjectionTotal() int { return s.objectionTotal }

// PersonaLimit resolves the objection limit for the active persona.
func (s *Snapshot) PersonaLimit() tenant.PersonaLimit {
	return s.tenant.LimitFor(s.persona)
}

// TenantFeatureEnabled reports whether a tenant feature is on.
func (s *Snapshot) TenantFeatureEnabled(name string) bool {
	return s.tenant.FeatureEnabled(name)
}

// Transition returns the current state's transition for a trigger.
func (s *Snapshot) Transition(trigger string) (flow.Transition, bool) {
	if s.stateCfg == nil {
		return flow.Transition{}, false
	}
	return s.stateCfg.Transition(trigger)
}

// MissingRequiredData lists the required fields not yet collected. A field
// counts as missing when absent, nil or the empty string.
func (s *Snapshot) MissingRequiredData() []string {
	if s.stateCfg == nil {
		return nil
	}
	var missing []string
	for _, f := range s.stateCfg.RequiredData {
		if !present(s.collected[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// HasAllRequiredData reports whether every required field is collected.
func (s *Snapshot) HasAllRequiredData() bool {
	if s.stateCfg == nil {
		return true
	}
	for _, f := range s.stateCfg.RequiredData {
		if !present(s.collected[f]) {
			return false
		}
	}
	return true
}

// ConditionContext builds the evaluation context used by the condition
// registry for this turn.
func (s *Snapshot) ConditionContext() conditions.Context {
	var required []string
	if s.stateCfg != nil {
		required = s.stateCfg.RequiredData
	}
	return conditions.Context{
		State:                s.st,
		Phase:                s.Phase(),
		Intent:               s.intent,
		Turn:                 s.turn,
		Persona:              s.persona,
		CollectedData:        s.collected,
		RequiredData:         required,
		FrustrationLevel:     s.frustration,
		ConsecutiveSameState: s.env.ConsecutiveSameState,
		Metadata:             s.env.Metadata,
	}
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if str, ok := v.(string); ok && str == "" {
		return false
	}
	return true
}

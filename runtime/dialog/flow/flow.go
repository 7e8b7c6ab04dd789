// Package flow defines the dialog flow configuration consumed by the engine:
// per-state goals, rules, transitions and data requirements, the declarative
// priority definitions used for tie-breaking, and the YAML loader that builds
// them. Unknown configuration fields are tolerated for forward compatibility.
package flow

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the read-only view of a flow the engine and knowledge sources
// consume.
type Config interface {
	// Name identifies the flow (e.g. "spin_selling", "autonomous").
	Name() string
	// State returns the configuration of the named state.
	State(name string) (*State, bool)
	// StateNames returns every configured state name, sorted.
	StateNames() []string
	// Constants returns the flow-wide constants map.
	Constants() map[string]any
	// Priorities returns the declarative priority definitions.
	Priorities() []PriorityDef
	// PhaseFor returns the phase mapped to a state, empty when unmapped.
	PhaseFor(state string) string
	// StateToPhase returns the full state-to-phase mapping.
	StateToPhase() map[string]string
	// IsPhaseState reports whether the state belongs to a phase.
	IsPhaseState(state string) bool
	// OnEnterFlags returns the flags to set when entering a state.
	OnEnterFlags(state string) map[string]any
	// EntryPoint resolves a named entry point (e.g. "escalation").
	EntryPoint(name string) string
}

// State configures one dialog state. Field names follow the flow file schema.
type State struct {
	// Goal describes what the state tries to achieve.
	Goal string `yaml:"goal"`
	// Rules maps intents to response actions.
	Rules map[string]Rule `yaml:"rules"`
	// Transitions maps triggers (intents plus data_complete, any, go_back) to
	// target states.
	Transitions map[string]Transition `yaml:"transitions"`
	// RequiredData lists fields that must be collected before data_complete.
	RequiredData []string `yaml:"required_data"`
	// OptionalData lists fields worth collecting but not required.
	OptionalData []string `yaml:"optional_data"`
	// Phase names the conversation phase this state belongs to.
	Phase string `yaml:"phase"`
	// SpinPhase is the legacy alias for Phase; normalized at load time.
	SpinPhase string `yaml:"spin_phase"`
	// Final marks terminal states.
	Final bool `yaml:"is_final"`
	// Autonomous marks states driven by the autonomous decision source.
	Autonomous bool `yaml:"autonomous"`
	// OnEnter lists flags to set when the state is entered.
	OnEnter map[string]any `yaml:"on_enter"`
	// MaxTurnsInState bounds consecutive turns before the stall guard ejects.
	// Zero disables the hard tier.
	MaxTurnsInState int `yaml:"max_turns_in_state"`
	// PhaseExhaustThreshold opens the offer-options window. Zero disables it.
	PhaseExhaustThreshold int `yaml:"phase_exhaust_threshold"`
	// MaxTurnsFallback overrides the stall eject target.
	MaxTurnsFallback string `yaml:"max_turns_fallback"`
	// TerminalStates lists the terminal states reachable from here.
	TerminalStates []string `yaml:"terminal_states"`
	// TerminalStateRequirements maps terminal states to the fields they need.
	TerminalStateRequirements map[string][]string `yaml:"terminal_state_requirements"`
	// Parameters carries state-specific tuning values.
	Parameters map[string]any `yaml:"parameters"`
}

// Transition returns the transition configured for a trigger.
func (s *State) Transition(trigger string) (Transition, bool) {
	t, ok := s.Transitions[trigger]
	return t, ok
}

// StallSoft computes the soft stall boundary: max_turns_in_state-1, floored
// at 3.
func (s *State) StallSoft() int {
	if n := s.MaxTurnsInState - 1; n > 3 {
		return n
	}
	return 3
}

// Param returns a parameter value as a string, empty when absent.
func (s *State) Param(name string) string {
	v, _ := s.Parameters[name].(string)
	return v
}

// Rule is a state-local intent rule. It takes one of three YAML shapes: a bare
// action string, a conditional {when, then} mapping, or a chain list whose
// first resolving link wins.
type Rule struct {
	// Action is the resolved action for the simple form.
	Action string
	// When names the condition guarding the conditional form.
	When string
	// Then is the action taken when the condition holds.
	Then string
	// Chain holds the links of the chain form.
	Chain []Rule
}

// UnmarshalYAML accepts the scalar, mapping and sequence rule forms.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&r.Action)
	case yaml.MappingNode:
		var m struct {
			When string `yaml:"when"`
			Then string `yaml:"then"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		if m.Then == "" {
			return fmt.Errorf("line %d: conditional rule requires then", value.Line)
		}
		r.When, r.Then = m.When, m.Then
		return nil
	case yaml.SequenceNode:
		return value.Decode(&r.Chain)
	default:
		return fmt.Errorf("line %d: unsupported rule form", value.Line)
	}
}

// Resolve evaluates the rule against eval, returning the action and whether
// any form resolved. A conditional with an unmet condition does not resolve.
func (r Rule) Resolve(eval func(cond string) bool) (string, bool) {
	switch {
	case r.Action != "":
		return r.Action, true
	case r.Then != "":
		if r.When == "" || (eval != nil && eval(r.When)) {
			return r.Then, true
		}
		return "", false
	case len(r.Chain) > 0:
		for _, link := range r.Chain {
			if action, ok := link.Resolve(eval); ok {
				return action, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// Transition is a state-transition target. It takes a bare target string or a
// conditional {when, then, else} mapping.
type Transition struct {
	// Target is the destination for the simple form.
	Target string
	// When names the condition guarding the conditional form.
	When string
	// Then is the destination when the condition holds.
	Then string
	// Else is the destination when the condition fails, optional.
	Else string
}

// UnmarshalYAML accepts the scalar and mapping transition forms.
func (t *Transition) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&t.Target)
	case yaml.MappingNode:
		var m struct {
			When string `yaml:"when"`
			Then string `yaml:"then"`
			Else string `yaml:"else"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		if m.Then == "" {
			return fmt.Errorf("line %d: conditional transition requires then", value.Line)
		}
		t.When, t.Then, t.Else = m.When, m.Then, m.Else
		return nil
	default:
		return fmt.Errorf("line %d: unsupported transition form", value.Line)
	}
}

// Resolve evaluates the transition against eval, returning the target state
// and whether any form resolved.
func (t Transition) Resolve(eval func(cond string) bool) (string, bool) {
	switch {
	case t.Target != "":
		return t.Target, true
	case t.Then != "":
		if t.When == "" || (eval != nil && eval(t.When)) {
			return t.Then, true
		}
		if t.Else != "" {
			return t.Else, true
		}
		return "", false
	default:
		return "", false
	}
}

// PriorityDef is one declarative tie-break definition from the flow's
// priorities list. The assigner picks, per proposal, the matching definition
// with the lowest Priority and writes it into the proposal rank.
type PriorityDef struct {
	// Name identifies the definition for diagnostics.
	Name string `yaml:"name"`
	// Priority is the rank written into matching proposals. Lower wins.
	Priority int `yaml:"priority"`
	// Intents gates on the current intent, when non-empty.
	Intents []string `yaml:"intents"`
	// IntentCategory gates on the current intent's category.
	IntentCategory string `yaml:"intent_category"`
	// Condition gates on a registered condition.
	Condition string `yaml:"condition"`
	// FeatureFlag gates on a tenant feature.
	FeatureFlag string `yaml:"feature_flag"`
	// Trigger matches transition proposals by trigger: data_complete or any.
	Trigger string `yaml:"trigger"`
	// Action matches action proposals by name.
	Action string `yaml:"action"`
	// Handler matches proposals by producing handler: phase_progress_handler
	// or circular_flow_handler.
	Handler string `yaml:"handler"`
	// UseTransitions matches intent-driven transition proposals.
	UseTransitions bool `yaml:"use_transitions"`
	// UseResolver matches transition-resolver proposals.
	UseResolver bool `yaml:"use_resolver"`
	// Source matches rule-derived proposals ("rules").
	Source string `yaml:"source"`
	// Else rescues intent-transition proposals when Condition fails; the only
	// supported value is "use_transitions".
	Else string `yaml:"else"`
}

// Definition is a YAML-loaded flow implementing Config.
type Definition struct {
	FlowName     string                `yaml:"name"`
	StateConfigs map[string]*State     `yaml:"states"`
	ConstantsMap map[string]any        `yaml:"constants"`
	PriorityDefs []PriorityDef         `yaml:"priorities"`
	PhaseMapping map[string][]string   `yaml:"phase_mapping"`
	EntryPoints  map[string]string     `yaml:"entry_points"`

	stateToPhase map[string]string
	stateNames   []string
}

// Name implements Config.
func (d *Definition) Name() string { return d.FlowName }

// State implements Config.
func (d *Definition) State(name string) (*State, bool) {
	s, ok := d.StateConfigs[name]
	return s, ok
}

// StateNames implements Config.
func (d *Definition) StateNames() []string { return d.stateNames }

// Constants implements Config.
func (d *Definition) Constants() map[string]any { return d.ConstantsMap }

// Priorities implements Config.
func (d *Definition) Priorities() []PriorityDef { return d.PriorityDefs }

// PhaseFor implements Config.
func (d *Definition) PhaseFor(state string) string { return d.stateToPhase[state] }

// StateToPhase implements Config.
func (d *Definition) StateToPhase() map[string]string { return d.stateToPhase }

// IsPhaseState implements Config.
func (d *Definition) IsPhaseState(state string) bool { return d.stateToPhase[state] != "" }

// OnEnterFlags implements Config.
func (d *Definition) OnEnterFlags(state string) map[string]any {
	if s, ok := d.StateConfigs[state]; ok {
		return s.OnEnter
	}
	return nil
}

// EntryPoint implements Config.
func (d *Definition) EntryPoint(name string) string { return d.EntryPoints[name] }

// normalize resolves aliases and derives the indexes Config methods serve
// from. Called once at load time.
func (d *Definition) normalize() error {
	if len(d.StateConfigs) == 0 {
		return fmt.Errorf("flow %q defines no states", d.FlowName)
	}
	d.stateToPhase = make(map[string]string, len(d.StateConfigs))
	d.stateNames = make([]string, 0, len(d.StateConfigs))
	for name, s := range d.StateConfigs {
		if s == nil {
			s = &State{}
			d.StateConfigs[name] = s
		}
		if s.Phase == "" {
			s.Phase = s.SpinPhase
		}
		if s.Phase != "" {
			d.stateToPhase[name] = s.Phase
		}
		d.stateNames = append(d.stateNames, name)
	}
	for phase, states := range d.PhaseMapping {
		for _, name := range states {
			if d.stateToPhase[name] == "" {
				d.stateToPhase[name] = phase
			}
		}
	}
	sort.Strings(d.stateNames)
	return nil
}

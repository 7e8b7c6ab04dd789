// Package conditions hosts the registry of named predicates referenced by flow
// configuration: rule guards ({when, then}) and priority-definition gates both
// resolve through it.
package conditions

import (
	"fmt"
	"strings"
	"sync"
)

// Context is the snapshot-derived view a condition evaluates against. It is
// built per turn by the caller and never retained by the registry.
type Context struct {
	// State is the current dialog state.
	State string
	// Phase is the phase mapped to the current state, if any.
	Phase string
	// Intent is the refined intent for this turn.
	Intent string
	// Turn is the current turn number.
	Turn int
	// Persona is the dialog persona.
	Persona string
	// CollectedData is the frozen collected-data view.
	CollectedData map[string]any
	// RequiredData lists the current state's required fields.
	RequiredData []string
	// FrustrationLevel is the behavioral frustration estimate for the turn.
	FrustrationLevel float64
	// ConsecutiveSameState counts turns spent in the current state.
	ConsecutiveSameState int
	// Flags is the flag view accumulated on the state machine.
	Flags map[string]any
	// Metadata carries free-form evaluation inputs.
	Metadata map[string]any
}

// HasField reports whether the named collected field is present and non-empty.
func (c Context) HasField(field string) bool {
	v, ok := c.CollectedData[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

// HasAllRequired reports whether every required field is collected.
func (c Context) HasAllRequired() bool {
	for _, f := range c.RequiredData {
		if !c.HasField(f) {
			return false
		}
	}
	return true
}

// Func is a named predicate over the evaluation context.
type Func func(Context) bool

// Registry maps condition names to predicates. Registration happens during
// initialization; evaluation is read-only and safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry pre-loaded with the built-in conditions.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	registerBuiltins(r)
	return r
}

// Register installs a predicate under name. Re-registering a name is an error;
// flows depend on condition semantics staying stable once loaded.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("condition name is required")
	}
	if fn == nil {
		return fmt.Errorf("condition %q: func is required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("condition %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Has reports whether the named condition resolves.
func (r *Registry) Has(name string) bool {
	if strings.HasPrefix(name, "has:") {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Eval evaluates the named condition. Names of the form "has:<field>" check
// the collected data directly; everything else must be registered. An unknown
// name evaluates to false with an error so callers can apply their failure
// policy (the priority assigner treats it as a failed gate).
func (r *Registry) Eval(name string, ctx Context) (bool, error) {
	if field, ok := strings.CutPrefix(name, "has:"); ok {
		return ctx.HasField(field), nil
	}
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("unknown condition %q", name)
	}
	return fn(ctx), nil
}

// registerBuiltins installs the conditions every flow can reference without
// registration.
func registerBuiltins(r *Registry) {
	r.funcs["data_complete"] = func(c Context) bool { return c.HasAllRequired() }
	r.funcs["missing_required_data"] = func(c Context) bool { return !c.HasAllRequired() }
	r.funcs["high_frustration"] = func(c Context) bool { return c.FrustrationLevel >= 0.7 }
	r.funcs["first_turn"] = func(c Context) bool { return c.Turn <= 1 }
	r.funcs["stalled"] = func(c Context) bool { return c.ConsecutiveSameState >= 3 }
}

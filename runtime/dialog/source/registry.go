package source

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultPriorityOrder is used when a registration does not set one.
// Lower values contribute earlier.
const DefaultPriorityOrder = 100

type (
	// Registration describes one source the registry can instantiate.
	Registration struct {
		// Name is the unique source name. Required.
		Name string
		// Factory builds the source. Required.
		Factory Factory
		// PriorityOrder controls contribution order, ascending.
		// Zero means DefaultPriorityOrder.
		PriorityOrder int
		// DisabledByDefault skips the source unless configuration
		// enables it.
		DisabledByDefault bool
		// ConfigKey overrides the key used to look up per-source
		// configuration. Defaults to Name.
		ConfigKey string
		// Description is free text for operators.
		Description string
	}

	// Registry holds source registrations. Once frozen it rejects any
	// change until Reset.
	Registry struct {
		mu     sync.RWMutex
		regs   map[string]Registration
		frozen bool
	}
)

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{regs: make(map[string]Registration)}
}

// Register adds or replaces a registration. Frozen registries reject all
// changes.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("source registration requires a name")
	}
	if reg.Factory == nil {
		return fmt.Errorf("source %q registration requires a factory", reg.Name)
	}
	if reg.PriorityOrder == 0 {
		reg.PriorityOrder = DefaultPriorityOrder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("source registry is frozen, cannot register %q", reg.Name)
	}
	r.regs[reg.Name] = reg
	return nil
}

// Unregister removes a registration by name. Removing an unknown name is a
// no-op; frozen registries reject the call.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("source registry is frozen, cannot unregister %q", name)
	}
	delete(r.regs, name)
	return nil
}

// Freeze forbids further registry changes until Reset.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry is frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Reset unfreezes the registry and drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.regs = make(map[string]Registration)
	r.frozen = false
	r.mu.Unlock()
}

// ListRegistered returns the registered names ordered by priority order
// ascending, ties broken by name. The order is the contribution order.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	regs := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()
	sortRegistrations(regs)
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[name]
	return reg, ok
}

// CreateSources instantiates every enabled registration in contribution
// order. global carries engine-wide toggles of the form
// sources.<name>.enabled; per carries per-source configuration keyed by
// ConfigKey. A factory error aborts the whole call.
func (r *Registry) CreateSources(global map[string]any, per map[string]map[string]any) ([]Source, error) {
	r.mu.RLock()
	regs := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()
	sortRegistrations(regs)

	sources := make([]Source, 0, len(regs))
	for _, reg := range regs {
		if !enabled(global, reg) {
			continue
		}
		key := reg.ConfigKey
		if key == "" {
			key = reg.Name
		}
		src, err := reg.Factory(reg.Name, per[key])
		if err != nil {
			return nil, fmt.Errorf("create source %q: %w", reg.Name, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func sortRegistrations(regs []Registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].PriorityOrder != regs[j].PriorityOrder {
			return regs[i].PriorityOrder < regs[j].PriorityOrder
		}
		return regs[i].Name < regs[j].Name
	})
}

// enabled resolves sources.<name>.enabled from the global configuration,
// falling back to the registration default.
func enabled(global map[string]any, reg Registration) bool {
	def := !reg.DisabledByDefault
	if global == nil {
		return def
	}
	node, ok := global["sources"].(map[string]any)
	if !ok {
		return def
	}
	entry, ok := node[reg.Name].(map[string]any)
	if !ok {
		return def
	}
	on, ok := entry["enabled"].(bool)
	if !ok {
		return def
	}
	return on
}

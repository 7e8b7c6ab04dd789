// Package tenant holds per-customer configuration: feature toggles, bot
// identity and persona-specific objection limits.
package tenant

// PersonaLimit bounds how many objections a persona tolerates before the
// objection guard forces a soft close.
type PersonaLimit struct {
	// Consecutive is the maximum run of back-to-back objection intents.
	Consecutive int
	// Total is the maximum number of objection intents over the dialog.
	Total int
}

// Config scopes the engine to one customer. The zero value is a valid tenant
// with every feature disabled and default persona limits.
type Config struct {
	// ID identifies the tenant.
	ID string
	// BotName is the assistant identity shown to users.
	BotName string
	// Tone selects the response style handed to the response layer.
	Tone string
	// Features toggles named engine capabilities (autonomous_flow,
	// disambiguation, ...).
	Features map[string]bool
	// PersonaLimits overrides the default objection limits per persona.
	PersonaLimits map[string]PersonaLimit
}

// defaultPersonaLimits is consulted when the tenant provides no override for a
// persona. The "default" entry backs unknown personas.
var defaultPersonaLimits = map[string]PersonaLimit{
	"default":    {Consecutive: 3, Total: 5},
	"analytical": {Consecutive: 4, Total: 6},
	"driver":     {Consecutive: 2, Total: 3},
	"amiable":    {Consecutive: 4, Total: 7},
	"expressive": {Consecutive: 3, Total: 5},
}

// FeatureEnabled reports whether the named feature is on for this tenant.
func (c Config) FeatureEnabled(name string) bool {
	return c.Features[name]
}

// LimitFor resolves the objection limit for a persona: tenant override first,
// then the built-in table, then the built-in "default" entry.
func (c Config) LimitFor(persona string) PersonaLimit {
	if l, ok := c.PersonaLimits[persona]; ok {
		return l
	}
	if l, ok := c.PersonaLimits["default"]; ok {
		return l
	}
	if l, ok := defaultPersonaLimits[persona]; ok {
		return l
	}
	return defaultPersonaLimits["default"]
}

// DefaultLimit returns the built-in limit for a persona, ignoring tenant
// overrides. Exposed for tests and diagnostics.
func DefaultLimit(persona string) PersonaLimit {
	if l, ok := defaultPersonaLimits[persona]; ok {
		return l
	}
	return defaultPersonaLimits["default"]
}

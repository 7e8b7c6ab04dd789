// Package refine implements the classification refinement pipeline: a
// priority-ordered chain of layers that post-processes a raw intent
// classification into the refined intent/confidence/metadata triple the
// knowledge sources consume. Layers are independent; each one either refines
// the working classification, passes it through untouched or is skipped, and
// a failing layer never breaks the chain.
package refine

import (
	"context"
	"fmt"
	"sort"

	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/telemetry"
	"goa.design/parley/runtime/dialog/tenant"
)

// Layer priorities. Higher runs earlier.
const (
	PriorityHighest  = 110
	PriorityCritical = 100
	PriorityHigh     = 75
	PriorityNormal   = 50
	PriorityLow      = 25
)

// Decision states what a layer did with the classification.
type Decision string

const (
	// Refined means the layer changed the intent or confidence.
	Refined Decision = "refined"
	// PassedThrough means the layer ran and left the classification as is.
	PassedThrough Decision = "pass_through"
	// Skipped means the layer did not run (feature off or not applicable).
	Skipped Decision = "skipped"
)

type (
	// Context is the per-message working state threaded through the chain.
	// Layers read it freely; the chain applies refined results back onto it
	// between layers.
	Context struct {
		// Message is the raw user utterance.
		Message string
		// Intent is the working intent classification.
		Intent string
		// Confidence is the working classification confidence in [0, 1].
		Confidence float64
		// State is the current dialog state, when known.
		State string
		// Phase is the current flow phase, when known.
		Phase string
		// LastAction is the action committed by the previous turn.
		LastAction string
		// LastBotMessage is the previous assistant utterance.
		LastBotMessage string
		// ExtractedData holds entity values pulled from the message.
		ExtractedData map[string]any
		// InDisambiguation marks that the previous turn asked a
		// clarification question.
		InDisambiguation bool
		// DisambiguationOptions are the choices currently on offer.
		DisambiguationOptions []envelope.Option
		// ExpectsDataType names the data type the last bot prompt asked for.
		ExpectsDataType string
		// Metadata is the shared metadata bag layers read and extend.
		Metadata map[string]any
	}

	// Result is one layer's verdict.
	Result struct {
		// Decision states what the layer did.
		Decision Decision
		// Intent is the resulting intent.
		Intent string
		// Confidence is the resulting confidence.
		Confidence float64
		// OriginalIntent is the pre-layer intent when the layer refined.
		OriginalIntent string
		// Reason is a stable audit code explaining the refinement.
		Reason string
		// SecondarySignals are artifacts detected without changing the
		// primary intent.
		SecondarySignals []envelope.Signal
		// Metadata is merged into the chain context after the layer runs.
		Metadata map[string]any
		// Layer names the producing layer.
		Layer string
	}

	// Layer is one refinement stage.
	Layer interface {
		// Name identifies the layer in traces and logs.
		Name() string
		// Priority orders the layer in the chain; higher runs earlier.
		Priority() int
		// FeatureFlag names the tenant feature gating the layer. Empty
		// means always eligible; Applies then decides alone.
		FeatureFlag() string
		// Applies reports whether the layer wants to inspect this message.
		// Must be cheap.
		Applies(rc *Context) bool
		// Refine inspects the message and returns the layer's verdict.
		Refine(ctx context.Context, rc *Context) (Result, error)
	}

	// ChainOptions configures a chain.
	ChainOptions struct {
		// Tenant gates feature-flagged layers.
		Tenant tenant.Config
		// Log reports layer failures. Defaults to a noop logger.
		Log telemetry.Logger
	}

	// Chain runs layers in priority order. It is immutable after
	// construction and safe to share across dialogs.
	Chain struct {
		layers []Layer
		tenant tenant.Config
		log    telemetry.Logger
	}

	// Output is the chain's final verdict for one message.
	Output struct {
		// Intent is the refined intent.
		Intent string
		// Confidence is the refined confidence, never negative.
		Confidence float64
		// OriginalIntent is the pre-chain intent when any layer refined.
		OriginalIntent string
		// Refined reports whether any layer changed the classification.
		Refined bool
		// SecondarySignals aggregates signals from all layers.
		SecondarySignals []envelope.Signal
		// Metadata is the final metadata bag.
		Metadata map[string]any
		// Steps records every layer verdict in execution order.
		Steps []Result
	}
)

// NewChain builds a chain from the given layers, ordered by priority
// descending with registration order breaking ties.
func NewChain(opts ChainOptions, layers ...Layer) *Chain {
	log := opts.Log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	ordered := append([]Layer(nil), layers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return &Chain{layers: ordered, tenant: opts.Tenant, log: log}
}

// Layers returns the layer names in execution order.
func (c *Chain) Layers() []string {
	out := make([]string, len(c.layers))
	for i, l := range c.layers {
		out[i] = l.Name()
	}
	return out
}

// Run threads the message through every layer and returns the refined
// classification. rc is mutated in place: refined intents and confidences are
// applied before the next layer, layer metadata is merged into rc.Metadata.
func (c *Chain) Run(ctx context.Context, rc *Context) Output {
	if rc.Metadata == nil {
		rc.Metadata = make(map[string]any)
	}
	out := Output{
		Intent:         rc.Intent,
		Confidence:     rc.Confidence,
		OriginalIntent: rc.Intent,
		Steps:          make([]Result, 0, len(c.layers)),
	}
	for _, layer := range c.layers {
		res := c.runLayer(ctx, layer, rc)
		if res.Decision == Refined {
			if res.Confidence < 0 {
				res.Confidence = 0
			}
			rc.Intent = res.Intent
			rc.Confidence = res.Confidence
			out.Refined = true
		}
		mergeMeta(rc.Metadata, res.Metadata)
		out.SecondarySignals = append(out.SecondarySignals, res.SecondarySignals...)
		out.Steps = append(out.Steps, res)
	}
	out.Intent = rc.Intent
	out.Confidence = rc.Confidence
	out.Metadata = rc.Metadata
	return out
}

// runLayer applies the gate order from the chain contract: feature flag, then
// Applies, then the layer itself with error and panic isolation.
func (c *Chain) runLayer(ctx context.Context, layer Layer, rc *Context) Result {
	if flag := layer.FeatureFlag(); flag != "" && !c.tenant.FeatureEnabled(flag) {
		return Result{Decision: Skipped, Intent: rc.Intent, Confidence: rc.Confidence, Layer: layer.Name()}
	}
	if !layer.Applies(rc) {
		return PassThrough(rc, layer.Name())
	}
	res, err := c.refine(ctx, layer, rc)
	if err != nil {
		c.log.Warn(ctx, "refinement layer failed", "layer", layer.Name(), "err", err)
		return PassThrough(rc, layer.Name())
	}
	if res.Layer == "" {
		res.Layer = layer.Name()
	}
	return res
}

func (c *Chain) refine(ctx context.Context, layer Layer, rc *Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("layer %s panicked: %v", layer.Name(), r)
		}
	}()
	return layer.Refine(ctx, rc)
}

// PassThrough builds the verdict that preserves the working classification
// bit-for-bit.
func PassThrough(rc *Context, layer string) Result {
	return Result{
		Decision:   PassedThrough,
		Intent:     rc.Intent,
		Confidence: rc.Confidence,
		Layer:      layer,
	}
}

// Refine builds a refined verdict over the working classification.
func Refine(rc *Context, layer, intent string, confidence float64, reason string) Result {
	return Result{
		Decision:       Refined,
		Intent:         intent,
		Confidence:     confidence,
		OriginalIntent: rc.Intent,
		Reason:         reason,
		Layer:          layer,
	}
}

// MetaBool reads a boolean metadata entry, false when absent or mistyped.
func (rc *Context) MetaBool(key string) bool {
	v, ok := rc.Metadata[key].(bool)
	return ok && v
}

// MetaString reads a string metadata entry, empty when absent or mistyped.
func (rc *Context) MetaString(key string) string {
	v, _ := rc.Metadata[key].(string)
	return v
}

// Alternatives returns the classifier's alternative distribution when the
// upstream classifier supplied one under the "alternatives" metadata key.
func (rc *Context) Alternatives() map[string]float64 {
	switch v := rc.Metadata["alternatives"].(type) {
	case map[string]float64:
		return v
	case map[string]any:
		out := make(map[string]float64, len(v))
		for k, raw := range v {
			if f, ok := toFloat(raw); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func mergeMeta(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/model"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// AutonomousFlowName is the flow the autonomous source activates in.
const AutonomousFlowName = "autonomous"

// FeatureAutonomousFlow is the tenant feature gating the autonomous source.
const FeatureAutonomousFlow = "autonomous_flow"

// autonomousSchema constrains the LLM reply. The action is pinned so the
// model cannot invent one.
const autonomousSchema = `{
	"type": "object",
	"required": ["next_state", "action", "reasoning", "should_transition"],
	"properties": {
		"next_state": {"type": "string", "minLength": 1},
		"action": {"const": "autonomous_respond"},
		"reasoning": {"type": "string"},
		"should_transition": {"type": "boolean"}
	}
}`

type (
	// AutonomousOptions configures the autonomous decision source.
	AutonomousOptions struct {
		// Client is the LLM client. Required.
		Client model.Client
		// Model names the model for each call. Required.
		Model string
		// Temperature for the decision calls. Zero means 0.2.
		Temperature float32
		// MaxTokens bounds the reply. Zero means 512.
		MaxTokens int
	}

	// DecisionRecord is one remembered decision.
	DecisionRecord struct {
		Turn         int
		State        string
		Target       string
		Transitioned bool
		Reasoning    string
		Overridden   bool
	}

	// AutonomousDecision asks an LLM to pick the next state inside the
	// autonomous flow. It keeps a per-dialog decision history and, once the
	// stay-streak in a state reaches the phase exhaust threshold, forces a
	// transition without consulting the LLM at all.
	AutonomousDecision struct {
		client      model.Client
		model       string
		temperature float32
		maxTokens   int
		schema      *jsonschema.Schema
		history     []DecisionRecord
	}

	// autonomousReply is the parsed LLM decision.
	autonomousReply struct {
		NextState        string `json:"next_state"`
		Action           string `json:"action"`
		Reasoning        string `json:"reasoning"`
		ShouldTransition bool   `json:"should_transition"`
	}
)

// NewAutonomousDecision returns an autonomous source bound to a model
// client.
func NewAutonomousDecision(opts AutonomousOptions) (*AutonomousDecision, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("autonomous decision: client is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("autonomous decision: model is required")
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 512
	}
	schema, err := compileAutonomousSchema()
	if err != nil {
		return nil, err
	}
	return &AutonomousDecision{
		client:      opts.Client,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		schema:      schema,
	}, nil
}

// autonomousOptionsFrom reads tuning overrides out of a per-source
// configuration map. Client and model are bound by the caller.
func autonomousOptionsFrom(cfg map[string]any) AutonomousOptions {
	var opts AutonomousOptions
	if v, ok := cfg["temperature"].(float64); ok {
		opts.Temperature = float32(v)
	}
	switch v := cfg["max_tokens"].(type) {
	case int:
		opts.MaxTokens = v
	case float64:
		opts.MaxTokens = int(v)
	}
	return opts
}

func compileAutonomousSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(autonomousSchema), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal decision schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("decision.json", doc); err != nil {
		return nil, fmt.Errorf("add decision schema: %w", err)
	}
	schema, err := c.Compile("decision.json")
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	return schema, nil
}

// Name implements source.Source.
func (a *AutonomousDecision) Name() string { return NameAutonomousDecision }

// ShouldContribute fires only inside the autonomous flow with the feature
// enabled for the tenant.
func (a *AutonomousDecision) ShouldContribute(snap *blackboard.Snapshot) bool {
	return snap.Flow().Name() == AutonomousFlowName &&
		snap.TenantFeatureEnabled(FeatureAutonomousFlow) &&
		snap.StateConfig() != nil
}

// Contribute proposes autonomous_respond plus a transition: forced by the
// override once the stay-streak exhausts the phase, otherwise the LLM's
// choice when allowed, else a self-loop so no inherited transition wins by
// default.
func (a *AutonomousDecision) Contribute(ctx context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	cfg := snap.StateConfig()
	if cfg == nil {
		return nil
	}

	if threshold := cfg.PhaseExhaustThreshold; threshold > 0 && a.stayStreak(snap.State()) >= threshold {
		return a.contributeOverride(bb, snap, cfg)
	}

	reply, err := a.decide(ctx, snap, cfg)
	if err != nil {
		return err
	}

	target := snap.State()
	transitioned := false
	if reply.ShouldTransition && a.allowedTargets(snap, cfg)[reply.NextState] {
		target = reply.NextState
		transitioned = target != snap.State()
	}

	md := map[string]any{"reasoning": reply.Reasoning}
	if err := bb.ProposeAction(proposal.NewAction(
		ActionAutonomousRespond, proposal.Normal, true, "autonomous_decision", a.Name()).
		WithMetadata(md)); err != nil {
		return err
	}
	if err := bb.ProposeTransition(proposal.NewTransition(
		target, proposal.Normal, "autonomous_decision", a.Name()).
		WithMetadata(md)); err != nil {
		return err
	}

	a.remember(DecisionRecord{
		Turn:         snap.TurnNumber(),
		State:        snap.State(),
		Target:       target,
		Transitioned: transitioned,
		Reasoning:    reply.Reasoning,
	})
	return nil
}

// contributeOverride forces a transition without calling the LLM.
func (a *AutonomousDecision) contributeOverride(bb *blackboard.Blackboard, snap *blackboard.Snapshot, cfg *flow.State) error {
	target := a.overrideTarget(snap, cfg)
	if err := bb.ProposeAction(proposal.NewAction(
		ActionAutonomousRespond, proposal.Normal, true, "autonomous_hard_override", a.Name())); err != nil {
		return err
	}
	if err := bb.ProposeTransition(proposal.NewTransition(
		target, proposal.High, "autonomous_hard_override", a.Name())); err != nil {
		return err
	}
	a.remember(DecisionRecord{
		Turn:         snap.TurnNumber(),
		State:        snap.State(),
		Target:       target,
		Transitioned: target != snap.State(),
		Overridden:   true,
	})
	return nil
}

// overrideTarget picks where the forced transition goes: soft_close for
// objection-driven streaks, the first terminal state whose requirements are
// already collected, soft_close when terminal states exist but none
// qualify, else the state's next_phase_state parameter or max_turns
// fallback.
func (a *AutonomousDecision) overrideTarget(snap *blackboard.Snapshot, cfg *flow.State) string {
	if snap.ObjectionConsecutive() > 0 || state.Category(snap.Intent()) == "objection" {
		return state.SoftCloseState
	}
	if len(cfg.TerminalStates) > 0 {
		for _, ts := range cfg.TerminalStates {
			if a.requirementsMet(snap, cfg.TerminalStateRequirements[ts]) {
				return ts
			}
		}
		return state.SoftCloseState
	}
	if next := cfg.Param("next_phase_state"); next != "" {
		return next
	}
	if cfg.MaxTurnsFallback != "" {
		return cfg.MaxTurnsFallback
	}
	return state.SoftCloseState
}

func (a *AutonomousDecision) requirementsMet(snap *blackboard.Snapshot, fields []string) bool {
	for _, f := range fields {
		v, ok := snap.Collected(f)
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr && s == "" {
			return false
		}
	}
	return true
}

// decide runs the LLM call and validates the reply against the schema.
func (a *AutonomousDecision) decide(ctx context.Context, snap *blackboard.Snapshot, cfg *flow.State) (autonomousReply, error) {
	var reply autonomousReply

	resp, err := a.client.Complete(ctx, model.Request{
		Model:       a.model,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Messages: []*model.Message{
			{Role: model.RoleSystem, Content: autonomousSystemPrompt},
			{Role: model.RoleUser, Content: a.prompt(snap, cfg)},
		},
	})
	if err != nil {
		return reply, fmt.Errorf("autonomous decision call: %w", err)
	}

	raw := extractJSON(resp.Text())
	if raw == "" {
		return reply, fmt.Errorf("autonomous decision: no JSON object in reply")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return reply, fmt.Errorf("autonomous decision: unmarshal reply: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return reply, fmt.Errorf("autonomous decision: invalid reply: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return reply, fmt.Errorf("autonomous decision: decode reply: %w", err)
	}
	return reply, nil
}

const autonomousSystemPrompt = "You drive a dialog state machine. Reply with a " +
	"single JSON object {\"next_state\", \"action\", \"reasoning\", " +
	"\"should_transition\"}. The action is always \"autonomous_respond\". Pick " +
	"next_state from the allowed states only."

// prompt renders the snapshot for the model.
func (a *AutonomousDecision) prompt(snap *blackboard.Snapshot, cfg *flow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current state: %s\n", snap.State())
	if cfg.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", cfg.Goal)
	}
	fmt.Fprintf(&b, "Turn: %d\n", snap.TurnNumber())
	fmt.Fprintf(&b, "User intent: %s\n", snap.Intent())
	if msg := snap.UserMessage(); msg != "" {
		fmt.Fprintf(&b, "User message: %s\n", msg)
	}
	if missing := snap.MissingRequiredData(); len(missing) > 0 {
		fmt.Fprintf(&b, "Missing data: %s\n", strings.Join(missing, ", "))
	}
	allowed := a.allowedTargets(snap, cfg)
	names := make([]string, 0, len(allowed))
	for name := range allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&b, "Allowed states: %s\n", strings.Join(names, ", "))
	if n := len(a.history); n > 0 {
		last := a.history[n-1]
		fmt.Fprintf(&b, "Previous decision: stayed=%v target=%s\n", !last.Transitioned, last.Target)
	}
	return b.String()
}

// allowedTargets is the closed set the LLM may pick from: every transition
// branch target, the terminal states and the current state itself.
func (a *AutonomousDecision) allowedTargets(snap *blackboard.Snapshot, cfg *flow.State) map[string]bool {
	allowed := map[string]bool{snap.State(): true}
	for _, tr := range cfg.Transitions {
		for _, t := range []string{tr.Target, tr.Then, tr.Else} {
			if t != "" {
				allowed[t] = true
			}
		}
	}
	for _, ts := range cfg.TerminalStates {
		allowed[ts] = true
	}
	return allowed
}

// stayStreak counts the trailing decisions that stayed in cur.
func (a *AutonomousDecision) stayStreak(cur string) int {
	streak := 0
	for i := len(a.history) - 1; i >= 0; i-- {
		r := a.history[i]
		if r.State != cur || r.Transitioned {
			break
		}
		streak++
	}
	return streak
}

func (a *AutonomousDecision) remember(r DecisionRecord) {
	a.history = append(a.history, r)
}

// History returns a copy of the decision history, newest last.
func (a *AutonomousDecision) History() []DecisionRecord {
	out := make([]DecisionRecord, len(a.history))
	copy(out, a.history)
	return out
}

// extractJSON returns the outermost JSON object embedded in s, tolerating
// prose or code fences around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

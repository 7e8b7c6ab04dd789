// Package engine runs the per-turn decision pipeline: freeze a context
// snapshot, let each knowledge source contribute proposals, rank and validate
// them, resolve conflicts into a single decision, sanitize its next state,
// commit it and apply its side effects to the state machine. One orchestrator
// serves one dialog; callers serialize its turns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/decision"
	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/events"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/resolve"
	"goa.design/parley/runtime/dialog/source"
	"goa.design/parley/runtime/dialog/source/builtin"
	"goa.design/parley/runtime/dialog/state"
	"goa.design/parley/runtime/dialog/telemetry"
	"goa.design/parley/runtime/dialog/tenant"
)

// componentName identifies the pipeline itself in error events; individual
// sources appear under their own names.
const componentName = "DialogueOrchestrator"

type (
	// TurnInput is one classified user turn.
	TurnInput struct {
		// Intent is the classified intent of the message.
		Intent string
		// Extracted holds entity values pulled from the message. Empty
		// values are dropped before they reach the collected data.
		Extracted map[string]any
		// Envelope carries the behavioral signals computed upstream. Nil
		// means no signals.
		Envelope *envelope.Envelope
		// UserMessage is the raw user utterance.
		UserMessage string
		// Frustration is the upstream frustration estimate in [0, 1].
		Frustration float64
	}

	// Options configures an orchestrator.
	Options struct {
		// Machine is the dialog state machine. Required.
		Machine state.Machine
		// Flow is the dialog flow configuration. Required.
		Flow flow.Config
		// Sources are the knowledge sources in invocation order, typically
		// the output of Registry.CreateSources.
		Sources []source.Source
		// Bus publishes turn lifecycle events. Optional.
		Bus *events.Bus
		// Tenant scopes features and persona limits.
		Tenant tenant.Config
		// Persona selects the objection-limit profile. Defaults to
		// "default".
		Persona string
		// DialogID tags log lines and event payloads. Optional.
		DialogID string
		// Conditions evaluates priority-definition and wildcard-transition
		// conditions. Required when the flow uses any.
		Conditions *conditions.Registry
		// DefaultAction wins when no action proposal does. Defaults to
		// "continue".
		DefaultAction string
		// KnownActions is the closed action set handed to the validator.
		// Defaults to the builtin catalog plus every rule action the flow
		// defines.
		KnownActions []string
		// DocumentedReasons is the documented reason-code set, when
		// enforced.
		DocumentedReasons []string
		// StrictValidation makes unknown actions blocking and adds the
		// flow's state set to the validator. Off by default so the decision
		// sanitizer stays the single enforcement point for state names and
		// one stray transition proposal cannot abort the whole turn.
		StrictValidation bool
		// Log defaults to a noop logger.
		Log telemetry.Logger
		// Metrics defaults to noop metrics.
		Metrics telemetry.Metrics
		// Tracer defaults to a noop tracer.
		Tracer telemetry.Tracer
	}

	// Orchestrator coordinates one dialog's turns. It owns the blackboard
	// and holds non-owning references to the machine and flow.
	Orchestrator struct {
		machine   state.Machine
		flow      flow.Config
		board     *blackboard.Blackboard
		sources   []source.Source
		bus       *events.Bus
		assigner  *resolve.Assigner
		validator *resolve.Validator
		resolver  *resolve.Resolver
		conds     *conditions.Registry
		dialogID  string
		log       telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
	}
)

// New builds an orchestrator for one dialog.
func New(opts Options) (*Orchestrator, error) {
	if opts.Machine == nil {
		return nil, errors.New("machine is required")
	}
	if opts.Flow == nil {
		return nil, errors.New("flow is required")
	}
	board, err := blackboard.New(blackboard.Options{
		Machine: opts.Machine,
		Flow:    opts.Flow,
		Tenant:  opts.Tenant,
		Persona: opts.Persona,
	})
	if err != nil {
		return nil, err
	}
	assigner, err := resolve.NewAssigner(resolve.AssignerOptions{
		Defs:       opts.Flow.Priorities(),
		Conditions: opts.Conditions,
	})
	if err != nil {
		return nil, err
	}
	actions := opts.KnownActions
	if actions == nil {
		actions = knownActions(opts.Flow)
	}
	vopts := resolve.ValidatorOptions{
		KnownActions:      actions,
		DocumentedReasons: opts.DocumentedReasons,
	}
	if opts.StrictValidation {
		vopts.KnownStates = opts.Flow.StateNames()
		vopts.Strict = true
	}
	log := opts.Log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Orchestrator{
		machine:   opts.Machine,
		flow:      opts.Flow,
		board:     board,
		sources:   opts.Sources,
		bus:       opts.Bus,
		assigner:  assigner,
		validator: resolve.NewValidator(vopts),
		resolver:  resolve.NewResolver(resolve.ResolverOptions{DefaultAction: opts.DefaultAction}),
		conds:     opts.Conditions,
		dialogID:  opts.DialogID,
		log:       log,
		metrics:   metrics,
		tracer:    tracer,
	}, nil
}

// Board exposes the blackboard, mainly for tests and diagnostics.
func (o *Orchestrator) Board() *blackboard.Blackboard { return o.board }

// ProcessTurn runs the decision pipeline for one user turn. It never returns
// nil: blocking validation issues and processing failures degrade to a
// fallback decision that keeps the dialog in its current state.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (d *decision.Decision) {
	prev := o.machine.State()
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "dialog.turn")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			o.log.Error(ctx, "turn processing panicked",
				"dialog_id", o.dialogID, "state", prev, "err", err)
			span.RecordError(err)
			o.metrics.IncCounter("dialog.turn_failures", 1)
			o.emit(ctx, events.ErrorOccurred, o.machine.Intents().TurnNumber(), map[string]any{
				"component": componentName,
				"error":     err.Error(),
			})
			d = decision.Fallback(prev, decision.ReasonFallbackProcessing)
		}
		o.metrics.RecordTimer("dialog.turn", time.Since(started))
	}()

	snap := o.board.BeginTurn(in.Intent, in.Extracted, in.Envelope, in.UserMessage, in.Frustration)
	o.metrics.IncCounter("dialog.turns", 1)
	o.emit(ctx, events.TurnStarted, snap.TurnNumber(), map[string]any{
		"state":  snap.State(),
		"intent": in.Intent,
	})

	o.runSources(ctx, snap)

	proposals := o.board.Proposals()
	o.assigner.Assign(proposals, snap)

	issues := o.validator.Validate(proposals)
	blocking := resolve.HasBlocking(issues)
	o.emit(ctx, events.ProposalValidated, snap.TurnNumber(), map[string]any{
		"proposals": len(proposals),
		"issues":    len(issues),
		"blocking":  blocking,
	})
	if blocking {
		o.log.Warn(ctx, "proposals failed validation",
			"dialog_id", o.dialogID, "turn", snap.TurnNumber(), "issues", issueCodes(issues))
		o.metrics.IncCounter("dialog.fallbacks", 1, "reason", decision.ReasonFallbackValidation)
		return decision.Fallback(snap.State(), decision.ReasonFallbackValidation)
	}

	d = o.resolver.ResolveWithFallback(proposals, snap.State(), o.anyTarget(snap),
		o.board.DataUpdates(), o.board.FlagsToSet())
	o.emit(ctx, events.ConflictResolved, snap.TurnNumber(), map[string]any{
		"mode":       string(d.Trace.Mode),
		"action":     d.Action,
		"next_state": d.NextState,
	})

	if s := resolve.SanitizeNextState(d.NextState, snap.State(), o.flow.StateNames()); s.Sanitized {
		o.log.Warn(ctx, "next state sanitized",
			"dialog_id", o.dialogID, "requested", s.RequestedState, "effective", s.EffectiveState)
		d.NextState = s.EffectiveState
		d.AddReason(decision.ReasonSanitized)
		if d.Trace != nil {
			d.Trace.SanitizerDiagnostic = s.Diagnostic
		}
	}

	if err := o.board.CommitDecision(d); err != nil {
		o.log.Error(ctx, "decision commit failed", "dialog_id", o.dialogID, "err", err)
		o.emit(ctx, events.ErrorOccurred, snap.TurnNumber(), map[string]any{
			"component": componentName,
			"error":     err.Error(),
		})
		o.metrics.IncCounter("dialog.fallbacks", 1, "reason", decision.ReasonFallbackProcessing)
		return decision.Fallback(snap.State(), decision.ReasonFallbackProcessing)
	}
	committed := map[string]any{
		"action":     d.Action,
		"prev_state": snap.State(),
		"next_state": d.NextState,
		"reasons":    append([]string(nil), d.ReasonCodes...),
	}
	if d.Trace != nil {
		committed["mode"] = string(d.Trace.Mode)
	}
	o.emit(ctx, events.DecisionCommitted, snap.TurnNumber(), committed)
	if d.NextState != snap.State() {
		o.emit(ctx, events.StateTransitioned, snap.TurnNumber(), map[string]any{
			"from": snap.State(),
			"to":   d.NextState,
		})
	}

	o.applySideEffects(ctx, snap, d)
	o.enrich(snap, d)
	span.AddEvent("decision", "action", d.Action, "next_state", d.NextState)
	o.log.Info(ctx, "turn decided",
		"dialog_id", o.dialogID, "turn", snap.TurnNumber(),
		"action", d.Action, "state", d.NextState, "mode", string(d.Trace.Mode))
	return d
}

// runSources invokes every source in order. A failing or panicking source is
// logged and skipped; its partial proposals stay on the board.
func (o *Orchestrator) runSources(ctx context.Context, snap *blackboard.Snapshot) {
	for _, src := range o.sources {
		if !src.ShouldContribute(snap) {
			o.log.Debug(ctx, "source skipped",
				"dialog_id", o.dialogID, "source", src.Name(), "state", snap.State())
			continue
		}
		mark := o.board.ProposalCount()
		srcStarted := time.Now()
		err := o.contribute(ctx, src)
		elapsed := time.Since(srcStarted)
		if err != nil {
			o.log.Warn(ctx, "source contribution failed",
				"dialog_id", o.dialogID, "source", src.Name(), "err", err)
			o.metrics.IncCounter("dialog.source_failures", 1, "source", src.Name())
			o.emit(ctx, events.ErrorOccurred, snap.TurnNumber(), map[string]any{
				"component": src.Name(),
				"error":     err.Error(),
			})
			continue
		}
		o.metrics.RecordTimer("dialog.source", elapsed, "source", src.Name())
		o.emit(ctx, events.SourceContributed, snap.TurnNumber(), map[string]any{
			"source":     src.Name(),
			"elapsed_ms": float64(elapsed.Nanoseconds()) / 1e6,
			"proposals":  o.board.ProposalsFrom(mark),
		})
	}
}

func (o *Orchestrator) contribute(ctx context.Context, src source.Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Contribute(ctx, o.board)
}

// anyTarget resolves the current state's wildcard transition, the resolver's
// stay-put rescue.
func (o *Orchestrator) anyTarget(snap *blackboard.Snapshot) string {
	tr, ok := snap.Transition(resolve.AnyTrigger)
	if !ok {
		return ""
	}
	target, ok := tr.Resolve(o.conditionEval(snap))
	if !ok {
		return ""
	}
	return target
}

func (o *Orchestrator) conditionEval(snap *blackboard.Snapshot) func(string) bool {
	if o.conds == nil {
		return nil
	}
	condCtx := snap.ConditionContext()
	return func(cond string) bool {
		ok, err := o.conds.Eval(cond, condCtx)
		return err == nil && ok
	}
}

// applySideEffects moves the machine and applies the decision's deferred
// effects: the go-back counter increment, the objection return point and the
// on-enter plus staged flags.
func (o *Orchestrator) applySideEffects(ctx context.Context, snap *blackboard.Snapshot, d *decision.Decision) {
	prev := snap.State()
	if !o.machine.TransitionTo(d.NextState, d.Action, "", "orchestrator", true) {
		o.log.Error(ctx, "state machine refused transition",
			"dialog_id", o.dialogID, "next", d.NextState)
		return
	}
	cur := o.machine.State()

	if d.Action == builtin.ActionAcknowledgeGoBack {
		o.recordGoBack(prev, cur)
	}

	switch {
	case cur == state.HandleObjectionState && prev != state.HandleObjectionState:
		o.machine.SetStateBeforeObjection(prev)
	case prev == state.HandleObjectionState && cur != state.HandleObjectionState:
		o.machine.ClearStateBeforeObjection()
	case builtin.PositiveIntent(snap.Intent()) && o.machine.StateBeforeObjection() != "":
		o.machine.ClearStateBeforeObjection()
	}

	if cur != prev {
		if flags := o.flow.OnEnterFlags(cur); len(flags) > 0 {
			o.machine.UpdateData(flags)
		}
	}
	if len(d.FlagsToSet) > 0 {
		o.machine.UpdateData(d.FlagsToSet)
	}
}

// recordGoBack applies the deferred counter increment, but only when the
// machine actually landed on the target the winning proposal named.
func (o *Orchestrator) recordGoBack(prev, cur string) {
	for _, p := range o.board.ActionProposals() {
		if p.Value != builtin.ActionAcknowledgeGoBack || !p.MetaBool(builtin.MetaPendingGoBackIncrement) {
			continue
		}
		to := p.MetaString(builtin.MetaToState)
		if to == "" || cur != to {
			return
		}
		from := p.MetaString(builtin.MetaFromState)
		if from == "" {
			from = prev
		}
		o.machine.Circular().RecordGoBack(from, to)
		return
	}
}

// enrich fills the compatibility fields external consumers read: a post-commit
// copy of the collected data, the landed state's goal and data lists, phase
// names, circular and objection stats and the disambiguation payload.
func (o *Orchestrator) enrich(snap *blackboard.Snapshot, d *decision.Decision) {
	prev := snap.State()
	cur := o.machine.State()
	d.PrevState = prev
	cfg, _ := o.flow.State(cur)
	if cfg != nil {
		d.Goal = cfg.Goal
		d.OptionalData = append([]string(nil), cfg.OptionalData...)
	}
	collected := o.machine.CollectedData()
	cp := make(map[string]any, len(collected))
	for k, v := range collected {
		cp[k] = v
	}
	d.CollectedData = cp
	d.MissingData = missingRequired(cfg, collected)
	d.Final = o.machine.IsFinal()
	d.Phase = o.machine.CurrentPhase()
	d.PrevPhase = o.flow.PhaseFor(prev)
	stats := o.machine.Circular().Stats()
	d.Circular = &stats
	limit := snap.PersonaLimit()
	d.Objections = &decision.ObjectionStats{
		Consecutive:    snap.ObjectionConsecutive(),
		Total:          snap.ObjectionTotal(),
		MaxConsecutive: limit.Consecutive,
		MaxTotal:       limit.Total,
		LimitReached: snap.ObjectionConsecutive() >= limit.Consecutive ||
			snap.ObjectionTotal() >= limit.Total,
	}
	if d.Action == builtin.ActionAskClarification {
		env := snap.Envelope()
		d.DisambiguationOptions = append([]envelope.Option(nil), env.DisambiguationOptions...)
		d.DisambiguationQuestion = env.DisambiguationQuestion
	}
}

func (o *Orchestrator) emit(ctx context.Context, kind events.Kind, turn int, data map[string]any) {
	if o.bus == nil {
		return
	}
	if o.dialogID != "" {
		data["dialog_id"] = o.dialogID
	}
	o.bus.Emit(ctx, events.New(kind, turn, data))
}

// knownActions is the default validator action set: the builtin catalog plus
// every action reachable through the flow's rules.
func knownActions(cfg flow.Config) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	for _, a := range builtin.Actions() {
		add(a)
	}
	for _, name := range cfg.StateNames() {
		st, ok := cfg.State(name)
		if !ok {
			continue
		}
		for _, r := range st.Rules {
			ruleActions(r, add)
		}
	}
	return out
}

func ruleActions(r flow.Rule, add func(string)) {
	add(r.Action)
	add(r.Then)
	for _, link := range r.Chain {
		ruleActions(link, add)
	}
}

func missingRequired(cfg *flow.State, collected map[string]any) []string {
	if cfg == nil {
		return nil
	}
	var missing []string
	for _, f := range cfg.RequiredData {
		if !fieldPresent(collected[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

func fieldPresent(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

func issueCodes(issues []resolve.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

// Package builtin provides the stock knowledge sources: guards, question
// answerers, data collection, objection handling, rule and transition
// resolution, stall recovery, escalation and the autonomous LLM source.
// RegisterCatalog installs them on a source registry in their canonical
// priority order.
package builtin

import (
	"fmt"

	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/model"
	"goa.design/parley/runtime/dialog/source"
)

// Canonical source names, also used as registry configuration keys.
const (
	NameGoBackGuard        = "go_back_guard"
	NameConversationGuard  = "conversation_guard"
	NameDisambiguation     = "disambiguation"
	NamePriceQuestion      = "price_question"
	NameFactQuestion       = "fact_question"
	NameDataCollector      = "data_collector"
	NameObjectionGuard     = "objection_guard"
	NameObjectionReturn    = "objection_return"
	NameIntentProcessor    = "intent_processor"
	NamePhaseExhausted     = "phase_exhausted"
	NameStallGuard         = "stall_guard"
	NameTransitionResolver = "transition_resolver"
	NameEscalation         = "escalation"
	NameAutonomousDecision = "autonomous_decision"
)

// Contribution order. Lower runs earlier.
const (
	OrderGoBackGuard        = 5
	OrderConversationGuard  = 7
	OrderDisambiguation     = 8
	OrderPriceQuestion      = 10
	OrderFactQuestion       = 15
	OrderDataCollector      = 20
	OrderObjectionGuard     = 30
	OrderObjectionReturn    = 35
	OrderIntentProcessor    = 40
	OrderPhaseExhausted     = 43
	OrderStallGuard         = 45
	OrderTransitionResolver = 50
	OrderEscalation         = 60
	OrderAutonomousDecision = 70
)

// Actions proposed by the catalog.
const (
	ActionAcknowledgeGoBack     = "acknowledge_go_back"
	ActionGoBackLimitReached    = "go_back_limit_reached"
	ActionGuardRephrase         = "guard_rephrase"
	ActionGuardOfferOptions     = "guard_offer_options"
	ActionGuardSkipPhase        = "guard_skip_phase"
	ActionGuardSoftClose        = "guard_soft_close"
	ActionAskClarification      = "ask_clarification"
	ActionAnswerWithPricing     = "answer_with_pricing"
	ActionHandleDiscountRequest = "handle_discount_request"
	ActionExplainPaymentTerms   = "explain_payment_terms"
	ActionComparePricing        = "compare_pricing"
	ActionDiscussBudget         = "discuss_budget"
	ActionAnswerQuestion        = "answer_question"
	ActionObjectionLimitReached = "objection_limit_reached"
	ActionOfferOptions          = "offer_options"
	ActionStallGuardEject       = "stall_guard_eject"
	ActionStallGuardNudge       = "stall_guard_nudge"
	ActionEscalateToHuman       = "escalate_to_human"
	ActionAutonomousRespond     = "autonomous_respond"
)

// Metadata keys attached to go-back proposals, consumed by the orchestrator
// when applying side effects.
const (
	MetaPendingGoBackIncrement = "pending_goback_increment"
	MetaToState                = "to_state"
	MetaFromState              = "from_state"
)

// Metadata keys attached to clarification proposals.
const (
	MetaOptions  = "options"
	MetaQuestion = "question"
)

// Handler tags written into proposal metadata for priority-definition
// matching.
const (
	HandlerCircularFlow  = "circular_flow_handler"
	HandlerPhaseProgress = "phase_progress_handler"
)

// Actions returns every action name the catalog can propose. Feed it to the
// proposal validator as the known set, together with the flow's rule actions.
func Actions() []string {
	return []string{
		ActionAcknowledgeGoBack,
		ActionGoBackLimitReached,
		ActionGuardRephrase,
		ActionGuardOfferOptions,
		ActionGuardSkipPhase,
		ActionGuardSoftClose,
		ActionAskClarification,
		ActionAnswerWithPricing,
		ActionHandleDiscountRequest,
		ActionExplainPaymentTerms,
		ActionComparePricing,
		ActionDiscussBudget,
		ActionAnswerQuestion,
		ActionObjectionLimitReached,
		ActionOfferOptions,
		ActionStallGuardEject,
		ActionStallGuardNudge,
		ActionEscalateToHuman,
		ActionAutonomousRespond,
	}
}

// CatalogOptions binds the external collaborators the catalog sources need.
type CatalogOptions struct {
	// Conditions evaluates rule and transition conditions. Optional;
	// without it conditional forms fall through to their else branches.
	Conditions *conditions.Registry
	// Guard analyses conversation health. When nil the conversation guard
	// is not registered.
	Guard Analyzer
	// Model is the LLM client for the autonomous source. When nil the
	// autonomous source is not registered.
	Model model.Client
	// ModelID names the model handed to the client on each call.
	ModelID string
}

// RegisterCatalog installs the built-in sources on reg in canonical order.
// Sources whose collaborator is absent (guard analyzer, model client) are
// skipped.
func RegisterCatalog(reg *source.Registry, opts CatalogOptions) error {
	regs := []source.Registration{
		{
			Name:          NameGoBackGuard,
			PriorityOrder: OrderGoBackGuard,
			Description:   "acknowledges go-back requests within the circular-flow limit",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewGoBackGuard(), nil
			},
		},
		{
			Name:          NameDisambiguation,
			PriorityOrder: OrderDisambiguation,
			Description:   "asks a clarification question when classification is ambiguous",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewDisambiguation(), nil
			},
		},
		{
			Name:          NamePriceQuestion,
			PriorityOrder: OrderPriceQuestion,
			Description:   "answers price questions without blocking flow progress",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewPriceQuestion(), nil
			},
		},
		{
			Name:          NameFactQuestion,
			PriorityOrder: OrderFactQuestion,
			Description:   "answers informational questions without blocking flow progress",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewFactQuestion(), nil
			},
		},
		{
			Name:          NameDataCollector,
			PriorityOrder: OrderDataCollector,
			Description:   "advances the flow once required data is collected",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewDataCollector(opts.Conditions), nil
			},
		},
		{
			Name:          NameObjectionGuard,
			PriorityOrder: OrderObjectionGuard,
			Description:   "soft-closes the dialog when objection limits are exceeded",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewObjectionGuard(), nil
			},
		},
		{
			Name:          NameObjectionReturn,
			PriorityOrder: OrderObjectionReturn,
			Description:   "returns to the interrupted state once an objection resolves",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewObjectionReturn(), nil
			},
		},
		{
			Name:          NameIntentProcessor,
			PriorityOrder: OrderIntentProcessor,
			Description:   "resolves state-local intent rules to actions",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewIntentProcessor(opts.Conditions), nil
			},
		},
		{
			Name:          NamePhaseExhausted,
			PriorityOrder: OrderPhaseExhausted,
			Description:   "offers options when a phase stops making progress",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewPhaseExhausted(), nil
			},
		},
		{
			Name:          NameStallGuard,
			PriorityOrder: OrderStallGuard,
			Description:   "ejects stalled dialogs to a safe state",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewStallGuard(), nil
			},
		},
		{
			Name:          NameTransitionResolver,
			PriorityOrder: OrderTransitionResolver,
			Description:   "maps intents to transitions via the state transition table",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewTransitionResolver(opts.Conditions), nil
			},
		},
		{
			Name:          NameEscalation,
			PriorityOrder: OrderEscalation,
			Description:   "escalates to a human on explicit request or behavioral signals",
			Factory: func(_ string, cfg map[string]any) (source.Source, error) {
				return NewEscalation(escalationOptionsFrom(cfg)), nil
			},
		},
	}
	if opts.Guard != nil {
		regs = append(regs, source.Registration{
			Name:          NameConversationGuard,
			PriorityOrder: OrderConversationGuard,
			Description:   "maps guard analyser tiers to recovery proposals",
			Factory: func(string, map[string]any) (source.Source, error) {
				return NewConversationGuard(GuardOptions{Analyzer: opts.Guard})
			},
		})
	}
	if opts.Model != nil {
		regs = append(regs, source.Registration{
			Name:          NameAutonomousDecision,
			PriorityOrder: OrderAutonomousDecision,
			Description:   "LLM-driven state selection for autonomous flows",
			Factory: func(_ string, cfg map[string]any) (source.Source, error) {
				aopts := autonomousOptionsFrom(cfg)
				aopts.Client = opts.Model
				aopts.Model = opts.ModelID
				return NewAutonomousDecision(aopts)
			},
		})
	}
	for _, r := range regs {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("register catalog: %w", err)
		}
	}
	return nil
}

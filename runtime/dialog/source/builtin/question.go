package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

// priceActions maps each price intent to its answer action. The closed set
// doubles as the activation gate.
var priceActions = map[string]string{
	"price_question":         ActionAnswerWithPricing,
	"discount_request":       ActionHandleDiscountRequest,
	"payment_terms_question": ActionExplainPaymentTerms,
	"price_comparison":       ActionComparePricing,
	"budget_concern":         ActionDiscussBudget,
}

// PriceQuestion answers price intents with a combinable high-priority
// action. Combinable is the load-bearing part: a price question must never
// block a completed data_complete transition, it merges with it instead.
type PriceQuestion struct{}

// NewPriceQuestion returns the price question source.
func NewPriceQuestion() *PriceQuestion { return &PriceQuestion{} }

// Name implements source.Source.
func (p *PriceQuestion) Name() string { return NamePriceQuestion }

// ShouldContribute fires on the closed price intent set.
func (p *PriceQuestion) ShouldContribute(snap *blackboard.Snapshot) bool {
	_, ok := priceActions[snap.Intent()]
	return ok
}

// Contribute proposes the intent-specific answer action.
func (p *PriceQuestion) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	intent, err := bb.CurrentIntent()
	if err != nil {
		return err
	}
	action, ok := priceActions[intent]
	if !ok {
		return nil
	}
	return bb.ProposeAction(proposal.NewAction(
		action, proposal.High, true, intent+"_priority", p.Name()))
}

// FactQuestion answers general informational questions. Same contract as
// PriceQuestion: high priority, combinable.
type FactQuestion struct{}

// NewFactQuestion returns the fact question source.
func NewFactQuestion() *FactQuestion { return &FactQuestion{} }

// Name implements source.Source.
func (f *FactQuestion) Name() string { return NameFactQuestion }

// ShouldContribute fires on question intents outside the price set.
func (f *FactQuestion) ShouldContribute(snap *blackboard.Snapshot) bool {
	return state.Category(snap.Intent()) == "question"
}

// Contribute proposes the generic answer action.
func (f *FactQuestion) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	intent, err := bb.CurrentIntent()
	if err != nil {
		return err
	}
	return bb.ProposeAction(proposal.NewAction(
		ActionAnswerQuestion, proposal.High, true, intent+"_priority", f.Name()))
}

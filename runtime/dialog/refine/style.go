package refine

import "context"

// Metadata keys written by the style modifier layer.
const (
	// MetaStyleModifiers lists the style intents peeled off the message.
	MetaStyleModifiers = "style_modifiers"
	// MetaOriginalIntent preserves the pre-inference intent.
	MetaOriginalIntent = "original_intent"
	// MetaSkipSecondaryDetection tells downstream layers the secondary scan
	// is redundant for this message.
	MetaSkipSecondaryDetection = "skip_secondary_detection"
)

// DefaultStyleIntents are the intents that describe how to answer rather than
// what was asked.
var DefaultStyleIntents = []string{"request_brevity", "example_request", "summary_request"}

// actionIntents maps the previous turn's action to the semantic intent a style
// request most plausibly refines. A user asking for "the short version" right
// after a pricing answer is still talking about pricing.
var actionIntents = map[string]string{
	"answer_with_pricing":     "price_question",
	"handle_discount_request": "discount_request",
	"explain_payment_terms":   "payment_terms_question",
	"compare_pricing":         "price_comparison",
	"discuss_budget":          "budget_concern",
	"answer_question":         "question",
}

// phaseIntents maps a flow phase to its default semantic intent when nothing
// stronger identifies what the user is refining.
var phaseIntents = map[string]string{
	"situation":   "info_provided",
	"problem":     "info_provided",
	"implication": "question",
	"need_payoff": "question",
}

type (
	// StyleModifierOptions configures the style modifier layer.
	StyleModifierOptions struct {
		// StyleIntents overrides the default style intent set.
		StyleIntents []string
	}

	// StyleModifier peels style intents (brevity, example and summary
	// requests) off the classification and infers the underlying semantic
	// intent through an ordered cascade. It never emits a style intent
	// itself; when the cascade lands on one the result degrades to
	// "unclear".
	StyleModifier struct {
		styles map[string]bool
	}
)

// NewStyleModifier builds the style modifier layer.
func NewStyleModifier(opts StyleModifierOptions) *StyleModifier {
	intents := opts.StyleIntents
	if len(intents) == 0 {
		intents = DefaultStyleIntents
	}
	styles := make(map[string]bool, len(intents))
	for _, s := range intents {
		styles[s] = true
	}
	return &StyleModifier{styles: styles}
}

// Name implements Layer.
func (s *StyleModifier) Name() string { return "style_modifier_detection" }

// Priority implements Layer.
func (s *StyleModifier) Priority() int { return PriorityHighest }

// FeatureFlag implements Layer.
func (s *StyleModifier) FeatureFlag() string { return "" }

// IsStyle reports whether the intent belongs to the configured style set.
func (s *StyleModifier) IsStyle(intent string) bool { return s.styles[intent] }

// Applies implements Layer.
func (s *StyleModifier) Applies(rc *Context) bool { return s.styles[rc.Intent] }

// Refine implements Layer. The inference cascade, strongest first: the
// previous action's subject, a question or price alternative from the
// classifier, freshly extracted data, the phase default, an expected data
// type, and finally "unclear".
func (s *StyleModifier) Refine(_ context.Context, rc *Context) (Result, error) {
	inferred := s.infer(rc)
	if inferred == "" || s.styles[inferred] {
		inferred = "unclear"
	}
	res := Refine(rc, s.Name(), inferred, rc.Confidence, "style_modifier_inferred")
	res.Metadata = map[string]any{
		MetaStyleModifiers:         []string{rc.Intent},
		MetaOriginalIntent:         rc.Intent,
		MetaSkipSecondaryDetection: true,
	}
	return res, nil
}

func (s *StyleModifier) infer(rc *Context) string {
	if intent, ok := actionIntents[rc.LastAction]; ok {
		return intent
	}
	if alts := rc.Alternatives(); len(alts) > 0 {
		if _, ok := alts["price_question"]; ok {
			return "price_question"
		}
		best, bestScore := "", 0.0
		for intent, score := range alts {
			if intent == "question" || StateCategoryQuestion(intent) {
				if score > bestScore {
					best, bestScore = intent, score
				}
			}
		}
		if best != "" {
			return best
		}
	}
	if len(rc.ExtractedData) > 0 {
		return "info_provided"
	}
	if intent, ok := phaseIntents[rc.Phase]; ok {
		return intent
	}
	if rc.ExpectsDataType != "" {
		return "info_provided"
	}
	return ""
}

// StateCategoryQuestion reports whether an intent reads as an informational
// question.
func StateCategoryQuestion(intent string) bool {
	if intent == "question" {
		return true
	}
	const suffix = "_question"
	return len(intent) > len(suffix) && intent[len(intent)-len(suffix):] == suffix
}

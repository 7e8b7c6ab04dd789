package refine

import (
	"context"
	"regexp"

	"goa.design/parley/runtime/dialog/envelope"
)

// Metadata keys written by the secondary intent detection layer.
const (
	// MetaSecondarySignals carries the detected secondary signals.
	MetaSecondarySignals = "secondary_signals"
	// MetaSecondaryConfidence carries the strongest secondary confidence.
	MetaSecondaryConfidence = "secondary_intent_confidence"
)

// secondaryPattern pairs a detector with the signal it emits.
type secondaryPattern struct {
	intent     string
	confidence float64
	re         *regexp.Regexp
}

// secondaryPatterns detect intents riding along in composite messages. The
// patterns are deliberately coarse: the signal is advisory and the primary
// classification is never touched.
var secondaryPatterns = []secondaryPattern{
	{"price_question", 0.8, regexp.MustCompile(`(?i)\b(price|pricing|cost|costs|how much|expensive)\b`)},
	{"price_comparison", 0.7, regexp.MustCompile(`(?i)\b(cheaper|versus|vs\.?|compared? (to|with))\b`)},
	{"question", 0.7, regexp.MustCompile(`(?i)\b(what|how|why|when|where|which|who|can you|could you|do you)\b.*\?`)},
	{"escalation_request", 0.75, regexp.MustCompile(`(?i)\b(human|real person|agent|representative|manager)\b`)},
}

// SecondaryIntentDetection scans composite messages for intents beyond the
// primary classification, typically a question tacked onto an answer. It is
// non-destructive: the primary intent and confidence always pass through and
// the findings land in metadata for the knowledge sources.
type SecondaryIntentDetection struct{}

// NewSecondaryIntentDetection builds the secondary intent detection layer.
func NewSecondaryIntentDetection() *SecondaryIntentDetection {
	return &SecondaryIntentDetection{}
}

// Name implements Layer.
func (s *SecondaryIntentDetection) Name() string { return "secondary_intent_detection" }

// Priority implements Layer.
func (s *SecondaryIntentDetection) Priority() int { return PriorityHigh }

// FeatureFlag implements Layer.
func (s *SecondaryIntentDetection) FeatureFlag() string { return "" }

// Applies implements Layer. Upstream layers that already decomposed the
// message set the skip flag.
func (s *SecondaryIntentDetection) Applies(rc *Context) bool {
	return rc.Message != "" && !rc.MetaBool(MetaSkipSecondaryDetection)
}

// Refine implements Layer.
func (s *SecondaryIntentDetection) Refine(_ context.Context, rc *Context) (Result, error) {
	var (
		signals []envelope.Signal
		best    float64
	)
	for _, p := range secondaryPatterns {
		if p.intent == rc.Intent {
			continue
		}
		loc := p.re.FindString(rc.Message)
		if loc == "" {
			continue
		}
		signals = append(signals, envelope.Signal{
			Intent:     p.intent,
			Confidence: p.confidence,
			Fragment:   loc,
		})
		if p.confidence > best {
			best = p.confidence
		}
	}
	res := PassThrough(rc, s.Name())
	if len(signals) > 0 {
		res.SecondarySignals = signals
		res.Metadata = map[string]any{
			MetaSecondarySignals:    signals,
			MetaSecondaryConfidence: best,
		}
	}
	return res, nil
}

package refine

import (
	"context"
	"strings"
)

// FirstContact defaults the very first unclear message of a dialog to a
// greeting. Nothing was asked yet, so there is nothing to be unclear about.
type FirstContact struct{}

// NewFirstContact builds the first contact layer.
func NewFirstContact() *FirstContact { return &FirstContact{} }

// Name implements Layer.
func (f *FirstContact) Name() string { return "first_contact" }

// Priority implements Layer.
func (f *FirstContact) Priority() int { return PriorityLow }

// FeatureFlag implements Layer.
func (f *FirstContact) FeatureFlag() string { return "" }

// Applies implements Layer.
func (f *FirstContact) Applies(rc *Context) bool {
	return rc.Intent == "unclear" && rc.LastBotMessage == "" && rc.LastAction == ""
}

// Refine implements Layer.
func (f *FirstContact) Refine(_ context.Context, rc *Context) (Result, error) {
	return Refine(rc, f.Name(), "greeting", maxf(rc.Confidence, 0.6), "first_contact_default"), nil
}

// GreetingContext demotes greeting classifications mid-dialog when the
// message clearly carries more than a greeting. "Hi, so about that server
// problem we discussed" is not a greeting to act on.
type GreetingContext struct{}

// NewGreetingContext builds the greeting context layer.
func NewGreetingContext() *GreetingContext { return &GreetingContext{} }

// Name implements Layer.
func (g *GreetingContext) Name() string { return "greeting_context" }

// Priority implements Layer.
func (g *GreetingContext) Priority() int { return PriorityLow }

// FeatureFlag implements Layer.
func (g *GreetingContext) FeatureFlag() string { return "" }

// Applies implements Layer.
func (g *GreetingContext) Applies(rc *Context) bool {
	return rc.Intent == "greeting" && rc.LastBotMessage != "" && len(strings.Fields(rc.Message)) > 5
}

// Refine implements Layer.
func (g *GreetingContext) Refine(_ context.Context, rc *Context) (Result, error) {
	return Refine(rc, g.Name(), "unclear", rc.Confidence*0.8, "greeting_in_context"), nil
}

// Metadata keys consumed and written by the repetition guards.
const (
	// MetaLastUserMessage is the previous user utterance, supplied upstream.
	MetaLastUserMessage = "last_user_message"
	// MetaContentRepeated marks a message repeating the previous one.
	MetaContentRepeated = "content_repeated"
	// MetaIntentStreak is the consecutive count of the current intent,
	// supplied upstream.
	MetaIntentStreak = "intent_streak"
	// MetaIntentPatternAlert marks an intent stuck in a loop.
	MetaIntentPatternAlert = "intent_pattern_alert"
)

// ContentRepetitionGuard flags a message repeating the previous user message
// verbatim. The user is saying it again because the bot did not get it; the
// stall machinery downstream reads the flag.
type ContentRepetitionGuard struct{}

// NewContentRepetitionGuard builds the content repetition guard.
func NewContentRepetitionGuard() *ContentRepetitionGuard { return &ContentRepetitionGuard{} }

// Name implements Layer.
func (c *ContentRepetitionGuard) Name() string { return "content_repetition_guard" }

// Priority implements Layer.
func (c *ContentRepetitionGuard) Priority() int { return PriorityLow }

// FeatureFlag implements Layer.
func (c *ContentRepetitionGuard) FeatureFlag() string { return "" }

// Applies implements Layer.
func (c *ContentRepetitionGuard) Applies(rc *Context) bool {
	prev := rc.MetaString(MetaLastUserMessage)
	return prev != "" && normalizeMessage(prev) == normalizeMessage(rc.Message)
}

// Refine implements Layer.
func (c *ContentRepetitionGuard) Refine(_ context.Context, rc *Context) (Result, error) {
	res := PassThrough(rc, c.Name())
	res.Metadata = map[string]any{MetaContentRepeated: true}
	return res, nil
}

// IntentPatternGuard flags an intent classified identically too many turns in
// a row, a cheap proxy for a conversation going in circles.
type IntentPatternGuard struct {
	threshold int
}

// NewIntentPatternGuard builds the intent pattern guard. A non-positive
// threshold defaults to 3.
func NewIntentPatternGuard(threshold int) *IntentPatternGuard {
	if threshold <= 0 {
		threshold = 3
	}
	return &IntentPatternGuard{threshold: threshold}
}

// Name implements Layer.
func (g *IntentPatternGuard) Name() string { return "intent_pattern_guard" }

// Priority implements Layer.
func (g *IntentPatternGuard) Priority() int { return PriorityLow }

// FeatureFlag implements Layer.
func (g *IntentPatternGuard) FeatureFlag() string { return "" }

// Applies implements Layer.
func (g *IntentPatternGuard) Applies(rc *Context) bool {
	streak, ok := rc.Metadata[MetaIntentStreak].(int)
	return ok && streak >= g.threshold
}

// Refine implements Layer.
func (g *IntentPatternGuard) Refine(_ context.Context, rc *Context) (Result, error) {
	res := PassThrough(rc, g.Name())
	res.Metadata = map[string]any{MetaIntentPatternAlert: true}
	return res, nil
}

func normalizeMessage(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Map(stripPunct, s))), " ")
}

package refine

import (
	"context"
	"regexp"
	"strings"
)

// ComparisonRefinement rescues comparison questions the classifier filed as
// unclear. "how does this compare to X" with price vocabulary becomes a price
// comparison; without it, a plain question.
type ComparisonRefinement struct{}

var (
	comparisonRe = regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?|difference between|better than|cheaper than)\b`)
	priceWordsRe = regexp.MustCompile(`(?i)\b(price|pricing|cost|costs|cheaper|expensive|budget)\b`)
)

// NewComparisonRefinement builds the comparison refinement layer.
func NewComparisonRefinement() *ComparisonRefinement { return &ComparisonRefinement{} }

// Name implements Layer.
func (c *ComparisonRefinement) Name() string { return "comparison_refinement" }

// Priority implements Layer.
func (c *ComparisonRefinement) Priority() int { return PriorityNormal }

// FeatureFlag implements Layer.
func (c *ComparisonRefinement) FeatureFlag() string { return "" }

// Applies implements Layer.
func (c *ComparisonRefinement) Applies(rc *Context) bool {
	return (rc.Intent == "unclear" || rc.Intent == "question") && comparisonRe.MatchString(rc.Message)
}

// Refine implements Layer.
func (c *ComparisonRefinement) Refine(_ context.Context, rc *Context) (Result, error) {
	if priceWordsRe.MatchString(rc.Message) {
		return Refine(rc, c.Name(), "price_comparison", maxf(rc.Confidence, 0.75), "comparison_detected"), nil
	}
	if rc.Intent == "question" {
		return PassThrough(rc, c.Name()), nil
	}
	return Refine(rc, c.Name(), "question", maxf(rc.Confidence, 0.6), "comparison_detected"), nil
}

// ObjectionUncertainty downgrades low-confidence objection classifications
// that read as hesitation rather than pushback. "I'm not sure about this" is
// a stall, and treating it as an objection burns the persona's objection
// budget for nothing.
type ObjectionUncertainty struct{}

var uncertaintyRe = regexp.MustCompile(`(?i)\b(not sure|maybe|i guess|need to think|let me think|i don'?t know|hmm+)\b`)

// NewObjectionUncertainty builds the objection uncertainty layer.
func NewObjectionUncertainty() *ObjectionUncertainty { return &ObjectionUncertainty{} }

// Name implements Layer.
func (o *ObjectionUncertainty) Name() string { return "objection_uncertainty" }

// Priority implements Layer.
func (o *ObjectionUncertainty) Priority() int { return PriorityNormal }

// FeatureFlag implements Layer.
func (o *ObjectionUncertainty) FeatureFlag() string { return "" }

// Applies implements Layer.
func (o *ObjectionUncertainty) Applies(rc *Context) bool {
	return strings.HasPrefix(rc.Intent, "objection_") && rc.Confidence < 0.6
}

// Refine implements Layer.
func (o *ObjectionUncertainty) Refine(_ context.Context, rc *Context) (Result, error) {
	if !uncertaintyRe.MatchString(rc.Message) {
		return PassThrough(rc, o.Name()), nil
	}
	return Refine(rc, o.Name(), "uncertainty", rc.Confidence, "objection_uncertainty"), nil
}

// ShortAnswer classifies terse unclear messages by shape: yes-words,
// no-words, or a bare value when the bot just asked for one.
type ShortAnswer struct{}

var (
	yesWords = map[string]bool{"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true, "sounds good": true}
	noWords  = map[string]bool{"no": true, "nope": true, "nah": true, "not really": true}
)

// NewShortAnswer builds the short answer layer.
func NewShortAnswer() *ShortAnswer { return &ShortAnswer{} }

// Name implements Layer.
func (s *ShortAnswer) Name() string { return "short_answer" }

// Priority implements Layer.
func (s *ShortAnswer) Priority() int { return PriorityNormal }

// FeatureFlag implements Layer.
func (s *ShortAnswer) FeatureFlag() string { return "" }

// Applies implements Layer.
func (s *ShortAnswer) Applies(rc *Context) bool {
	return rc.Intent == "unclear" && len(strings.Fields(rc.Message)) <= 3
}

// Refine implements Layer.
func (s *ShortAnswer) Refine(_ context.Context, rc *Context) (Result, error) {
	msg := strings.ToLower(strings.TrimSpace(strings.Map(stripPunct, rc.Message)))
	switch {
	case yesWords[msg]:
		return Refine(rc, s.Name(), "positive_response", 0.7, "short_answer_affirmative"), nil
	case noWords[msg]:
		return Refine(rc, s.Name(), "rejection", 0.7, "short_answer_negative"), nil
	case rc.ExpectsDataType != "":
		return Refine(rc, s.Name(), "info_provided", 0.65, "short_answer_expected_data"), nil
	}
	return PassThrough(rc, s.Name()), nil
}

// DataAware promotes classifications to info_provided when the extractor
// actually pulled data out of the message. Whatever the message sounded
// like, it carried the answer.
type DataAware struct{}

// NewDataAware builds the data aware layer.
func NewDataAware() *DataAware { return &DataAware{} }

// Name implements Layer.
func (d *DataAware) Name() string { return "data_aware" }

// Priority implements Layer.
func (d *DataAware) Priority() int { return PriorityNormal }

// FeatureFlag implements Layer.
func (d *DataAware) FeatureFlag() string { return "" }

// Applies implements Layer.
func (d *DataAware) Applies(rc *Context) bool {
	if len(rc.ExtractedData) == 0 {
		return false
	}
	return rc.Intent == "unclear" || rc.Intent == "greeting"
}

// Refine implements Layer.
func (d *DataAware) Refine(_ context.Context, rc *Context) (Result, error) {
	return Refine(rc, d.Name(), "info_provided", maxf(rc.Confidence, 0.8), "data_extracted"), nil
}

// Composite flags messages carrying both an answer and a question so the
// response layer can address both halves. The primary classification stands.
type Composite struct{}

// NewComposite builds the composite message layer.
func NewComposite() *Composite { return &Composite{} }

// Name implements Layer.
func (c *Composite) Name() string { return "composite_message" }

// Priority implements Layer.
func (c *Composite) Priority() int { return PriorityNormal }

// FeatureFlag implements Layer.
func (c *Composite) FeatureFlag() string { return "" }

// Applies implements Layer.
func (c *Composite) Applies(rc *Context) bool {
	return strings.Contains(rc.Message, "?") && len(strings.Fields(rc.Message)) >= 8
}

// Refine implements Layer.
func (c *Composite) Refine(_ context.Context, rc *Context) (Result, error) {
	res := PassThrough(rc, c.Name())
	res.Metadata = map[string]any{"composite_message": true}
	return res, nil
}

package refine

import (
	"context"
	"strconv"
	"strings"

	"goa.design/parley/runtime/dialog/envelope"
)

// Metadata keys written by the disambiguation resolution layer.
const (
	// MetaExitDisambiguation marks that the clarification round is over.
	MetaExitDisambiguation = "exit_disambiguation"
	// MetaSelectedOption carries the 1-based index of the resolved option.
	MetaSelectedOption = "selected_option"
)

// criticalOverrides are intents that end a clarification round no matter what
// the options were. The user changed the subject; honor it.
var criticalOverrides = map[string]bool{
	"escalation_request":     true,
	"rejection":              true,
	"hard_no":                true,
	"end_conversation":       true,
	"explicit_close_request": true,
	"go_back":                true,
}

// DisambiguationResolution resolves the user's answer to a pending
// clarification question: a critical-override intent exits the round as is, a
// parseable option reference resolves to the option's intent, and anything
// else leaves the classifier's verdict standing.
type DisambiguationResolution struct{}

// NewDisambiguationResolution builds the disambiguation resolution layer.
func NewDisambiguationResolution() *DisambiguationResolution {
	return &DisambiguationResolution{}
}

// Name implements Layer.
func (d *DisambiguationResolution) Name() string { return "disambiguation_resolution" }

// Priority implements Layer. Runs before confidence calibration at the same
// priority so calibration scores the resolved intent, not the raw one.
func (d *DisambiguationResolution) Priority() int { return PriorityCritical }

// FeatureFlag implements Layer.
func (d *DisambiguationResolution) FeatureFlag() string { return "disambiguation" }

// Applies implements Layer.
func (d *DisambiguationResolution) Applies(rc *Context) bool { return rc.InDisambiguation }

// Refine implements Layer.
func (d *DisambiguationResolution) Refine(_ context.Context, rc *Context) (Result, error) {
	if criticalOverrides[rc.Intent] {
		res := Refine(rc, d.Name(), rc.Intent, maxf(rc.Confidence, 0.9), "disambiguation_critical_override")
		res.Metadata = map[string]any{MetaExitDisambiguation: true}
		return res, nil
	}
	if idx, ok := ParseOptionIndex(rc.Message, rc.DisambiguationOptions); ok {
		intent := rc.DisambiguationOptions[idx-1].Intent
		if intent == "" {
			intent = "info_provided"
		}
		res := Refine(rc, d.Name(), intent, 0.95, "disambiguation_option_resolved")
		res.Metadata = map[string]any{
			MetaExitDisambiguation: true,
			MetaSelectedOption:     idx,
		}
		return res, nil
	}
	// The classifier's verdict stands; the round stays open.
	res := PassThrough(rc, d.Name())
	res.Metadata = map[string]any{MetaExitDisambiguation: false}
	return res, nil
}

// ordinals maps spelled-out answer positions to option indexes.
var ordinals = map[string]int{
	"first": 1, "one": 1,
	"second": 2, "two": 2,
	"third": 3, "three": 3,
	"fourth": 4, "four": 4,
	"fifth": 5, "five": 5,
	"last": -1,
}

// ParseOptionIndex maps a free-form answer to a 1-based option index: a bare
// number, an ordinal word ("the second one", "last"), or a label substring
// match. Returns false when nothing matches or the reference is out of range.
func ParseOptionIndex(message string, options []envelope.Option) (int, bool) {
	n := len(options)
	if n == 0 {
		return 0, false
	}
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return 0, false
	}
	if idx, err := strconv.Atoi(strings.TrimSuffix(msg, ".")); err == nil {
		if idx >= 1 && idx <= n {
			return idx, true
		}
		return 0, false
	}
	for _, word := range strings.Fields(strings.Map(stripPunct, msg)) {
		if idx, ok := ordinals[word]; ok {
			if idx == -1 {
				return n, true
			}
			if idx <= n {
				return idx, true
			}
			return 0, false
		}
	}
	for i, opt := range options {
		label := strings.ToLower(opt.Label)
		if label != "" && strings.Contains(msg, label) {
			return i + 1, true
		}
	}
	return 0, false
}

func stripPunct(r rune) rune {
	switch r {
	case '.', ',', '!', '?':
		return -1
	}
	return r
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

package refine

import "context"

// MetaOptionIndex carries the 1-based index of the selected option.
const MetaOptionIndex = "option_index"

// optionPromotable are the misclassifications a bare numeric answer to an
// option list typically lands on.
var optionPromotable = map[string]bool{
	"request_brevity": true,
	"greeting":        true,
	"unclear":         true,
}

// OptionSelection promotes numeric and ordinal answers to a pending option
// question to info_provided. A lone "2" after "which of these fits best?" is
// an answer, not a brevity request, whatever the classifier thought.
type OptionSelection struct{}

// NewOptionSelection builds the option selection layer.
func NewOptionSelection() *OptionSelection { return &OptionSelection{} }

// Name implements Layer.
func (o *OptionSelection) Name() string { return "option_selection" }

// Priority implements Layer.
func (o *OptionSelection) Priority() int { return PriorityHigh }

// FeatureFlag implements Layer.
func (o *OptionSelection) FeatureFlag() string { return "" }

// Applies implements Layer.
func (o *OptionSelection) Applies(rc *Context) bool {
	return len(rc.DisambiguationOptions) > 0 && optionPromotable[rc.Intent]
}

// Refine implements Layer.
func (o *OptionSelection) Refine(_ context.Context, rc *Context) (Result, error) {
	idx, ok := ParseOptionIndex(rc.Message, rc.DisambiguationOptions)
	if !ok {
		return PassThrough(rc, o.Name()), nil
	}
	res := Refine(rc, o.Name(), "info_provided", 0.9, "option_selection")
	res.Metadata = map[string]any{MetaOptionIndex: idx}
	return res, nil
}

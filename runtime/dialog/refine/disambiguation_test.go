package refine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/envelope"
)

func planOptions() []envelope.Option {
	return []envelope.Option{
		{Index: 1, Label: "starter plan", Intent: "plan_starter", Target: "qualify_starter"},
		{Index: 2, Label: "premium plan", Intent: "plan_premium", Target: "qualify_premium"},
		{Index: 3, Label: "talk to sales", Intent: "", Target: "handoff"},
	}
}

func TestParseOptionIndex(t *testing.T) {
	opts := planOptions()
	cases := []struct {
		message string
		want    int
		ok      bool
	}{
		{"2", 2, true},
		{" 1. ", 1, true},
		{"4", 0, false},
		{"0", 0, false},
		{"the second one", 2, true},
		{"first", 1, true},
		{"last", 3, true},
		{"the fifth option", 0, false},
		{"premium plan sounds right", 2, true},
		{"I want the starter plan please", 1, true},
		{"none of those", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		idx, ok := ParseOptionIndex(tc.message, opts)
		assert.Equal(t, tc.ok, ok, "message %q", tc.message)
		assert.Equal(t, tc.want, idx, "message %q", tc.message)
	}

	_, ok := ParseOptionIndex("2", nil)
	assert.False(t, ok, "no options, nothing to resolve")
}

func TestDisambiguationResolvesOption(t *testing.T) {
	layer := NewDisambiguationResolution()
	rc := Context{
		Message:               "the second one",
		Intent:                "unclear",
		Confidence:            0.3,
		InDisambiguation:      true,
		DisambiguationOptions: planOptions(),
	}
	require.True(t, layer.Applies(&rc))
	res, err := layer.Refine(context.Background(), &rc)
	require.NoError(t, err)
	require.Equal(t, Refined, res.Decision)
	assert.Equal(t, "plan_premium", res.Intent)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, "disambiguation_option_resolved", res.Reason)
	assert.Equal(t, true, res.Metadata[MetaExitDisambiguation])
	assert.Equal(t, 2, res.Metadata[MetaSelectedOption])
}

func TestDisambiguationIntentlessOptionFallsBackToInfoProvided(t *testing.T) {
	layer := NewDisambiguationResolution()
	rc := Context{
		Message:               "last",
		Intent:                "unclear",
		Confidence:            0.3,
		InDisambiguation:      true,
		DisambiguationOptions: planOptions(),
	}
	res, err := layer.Refine(context.Background(), &rc)
	require.NoError(t, err)
	assert.Equal(t, "info_provided", res.Intent)
	assert.Equal(t, 3, res.Metadata[MetaSelectedOption])
}

func TestDisambiguationCriticalOverride(t *testing.T) {
	layer := NewDisambiguationResolution()
	for _, intent := range []string{"escalation_request", "rejection", "hard_no", "end_conversation", "explicit_close_request", "go_back"} {
		rc := Context{
			Message:               "forget the options, get me a human",
			Intent:                intent,
			Confidence:            0.55,
			InDisambiguation:      true,
			DisambiguationOptions: planOptions(),
		}
		res, err := layer.Refine(context.Background(), &rc)
		require.NoError(t, err)
		require.Equal(t, Refined, res.Decision, intent)
		assert.Equal(t, intent, res.Intent)
		assert.Equal(t, 0.9, res.Confidence, "confidence floors at 0.9")
		assert.Equal(t, "disambiguation_critical_override", res.Reason)
		assert.Equal(t, true, res.Metadata[MetaExitDisambiguation])
	}
}

func TestDisambiguationKeepsRoundOpenOnNoMatch(t *testing.T) {
	layer := NewDisambiguationResolution()
	rc := Context{
		Message:               "hmm, can you explain the difference",
		Intent:                "question",
		Confidence:            0.7,
		InDisambiguation:      true,
		DisambiguationOptions: planOptions(),
	}
	res, err := layer.Refine(context.Background(), &rc)
	require.NoError(t, err)
	assert.Equal(t, PassedThrough, res.Decision)
	assert.Equal(t, "question", res.Intent)
	assert.Equal(t, false, res.Metadata[MetaExitDisambiguation])
}

func TestDisambiguationRequiresFeatureFlag(t *testing.T) {
	chain := NewChain(ChainOptions{}, NewDisambiguationResolution())
	rc := &Context{
		Message:               "2",
		Intent:                "unclear",
		Confidence:            0.3,
		InDisambiguation:      true,
		DisambiguationOptions: planOptions(),
	}
	out := chain.Run(context.Background(), rc)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, Skipped, out.Steps[0].Decision)
	assert.Equal(t, "unclear", out.Intent)
}

func TestDisambiguationOnlyRunsInsideRound(t *testing.T) {
	layer := NewDisambiguationResolution()
	assert.False(t, layer.Applies(&Context{Message: "2", DisambiguationOptions: planOptions()}))
}

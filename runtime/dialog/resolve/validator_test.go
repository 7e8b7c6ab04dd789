package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/proposal"
)

func findIssue(issues []Issue, code string) (Issue, bool) {
	for _, i := range issues {
		if i.Code == code {
			return i, true
		}
	}
	return Issue{}, false
}

func TestValidateStructural(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	issues := v.Validate([]proposal.Proposal{
		{Kind: "bogus", Value: "x", Source: "s"},
		{Kind: proposal.KindAction, Value: "", Source: "s", Combinable: true},
		{Kind: proposal.KindAction, Value: "x", Source: "", Combinable: true},
	})

	_, ok := findIssue(issues, "unknown_kind")
	require.True(t, ok)
	_, ok = findIssue(issues, "empty_value")
	require.True(t, ok)
	_, ok = findIssue(issues, "missing_source")
	require.True(t, ok)
	require.True(t, HasBlocking(issues))
}

func TestValidateActionAndStateSets(t *testing.T) {
	v := NewValidator(ValidatorOptions{
		KnownActions: []string{"continue", "answer_with_pricing"},
		KnownStates:  []string{"spin_situation", "spin_problem"},
	})

	issues := v.Validate([]proposal.Proposal{
		proposal.NewAction("mystery_action", proposal.Normal, true, "r", "s"),
		proposal.NewTransition("ghost_state", proposal.Normal, "r", "s"),
	})

	action, ok := findIssue(issues, "unknown_action")
	require.True(t, ok)
	require.Equal(t, SeverityWarning, action.Severity)

	st, ok := findIssue(issues, "unknown_state")
	require.True(t, ok)
	require.Equal(t, SeverityError, st.Severity)
	require.True(t, HasBlocking(issues))

	// Strict mode elevates unknown actions.
	strict := NewValidator(ValidatorOptions{KnownActions: []string{"continue"}, Strict: true})
	issues = strict.Validate([]proposal.Proposal{
		proposal.NewAction("mystery_action", proposal.Normal, true, "r", "s"),
	})
	action, ok = findIssue(issues, "unknown_action")
	require.True(t, ok)
	require.Equal(t, SeverityError, action.Severity)
}

func TestValidateCombinableConsistency(t *testing.T) {
	v := NewValidator(ValidatorOptions{})

	badTransition := proposal.NewTransition("spin_problem", proposal.Normal, "r", "s")
	badTransition.Combinable = false
	lowBlocking := proposal.Proposal{
		Kind:     proposal.KindAction,
		Value:    "nudge",
		Priority: proposal.Low,
		Source:   "s",
	}

	issues := v.Validate([]proposal.Proposal{badTransition, lowBlocking})

	tr, ok := findIssue(issues, "non_combinable_transition")
	require.True(t, ok)
	require.Equal(t, SeverityError, tr.Severity)

	low, ok := findIssue(issues, "low_priority_blocking_action")
	require.True(t, ok)
	require.Equal(t, SeverityWarning, low.Severity)
}

func TestValidateReasonDocumentation(t *testing.T) {
	v := NewValidator(ValidatorOptions{DocumentedReasons: []string{"data_complete"}})

	issues := v.Validate([]proposal.Proposal{
		proposal.NewTransition("spin_problem", proposal.Normal, "data_complete", "s"),
		proposal.NewTransition("spin_problem", proposal.Normal, "undocumented_thing", "s"),
	})

	require.Len(t, issues, 1)
	require.Equal(t, "undocumented_reason", issues[0].Code)
	require.False(t, HasBlocking(issues))
}

func TestValidateCleanProposals(t *testing.T) {
	v := NewValidator(ValidatorOptions{
		KnownActions: []string{"answer_with_pricing"},
		KnownStates:  []string{"spin_problem"},
	})
	issues := v.Validate([]proposal.Proposal{
		proposal.NewAction("answer_with_pricing", proposal.High, true, "price_question_priority", "price_question"),
		proposal.NewTransition("spin_problem", proposal.Normal, "data_complete", "data_collector"),
	})
	require.Empty(t, issues)
}

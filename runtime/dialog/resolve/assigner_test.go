package resolve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
	"goa.design/parley/runtime/dialog/tenant"
)

func assignerSnapshot(t *testing.T, start, intent string, defs []flow.PriorityDef, collected map[string]any, ten tenant.Config) *blackboard.Snapshot {
	t.Helper()
	f, err := flow.NewDefinition("spin_selling", map[string]*flow.State{
		"spin_situation": {
			RequiredData: []string{"company_size"},
			Transitions: map[string]flow.Transition{
				"data_complete": {Target: "spin_problem"},
			},
		},
		"spin_problem":         {},
		"autonomous_discovery": {Autonomous: true},
	})
	require.NoError(t, err)
	f.PriorityDefs = defs

	m, err := state.NewMachine(state.MachineOptions{Flow: f, Start: start, Collected: collected})
	require.NoError(t, err)
	bb, err := blackboard.New(blackboard.Options{Machine: m, Flow: f, Tenant: ten})
	require.NoError(t, err)
	return bb.BeginTurn(intent, nil, nil, "", 0)
}

func TestAssignIntentAndTriggerGates(t *testing.T) {
	defs := []flow.PriorityDef{
		{Name: "data_complete_priority", Priority: 10, Trigger: "data_complete"},
		{Name: "price_priority", Priority: 20, Intents: []string{"price_question"}},
	}
	snap := assignerSnapshot(t, "spin_situation", "price_question", defs, nil, tenant.Config{})

	a, err := NewAssigner(AssignerOptions{Defs: defs, Conditions: conditions.NewRegistry()})
	require.NoError(t, err)

	ps := []proposal.Proposal{
		proposal.NewTransition("spin_problem", proposal.Normal, "data_complete", "data_collector"),
		proposal.NewAction("answer_with_pricing", proposal.High, true, "price_question_priority", "price_question"),
	}
	a.Assign(ps, snap)

	// The transition matches both defs; the lower number wins.
	require.Equal(t, 10, ps[0].Rank)
	require.Equal(t, 20, ps[1].Rank)
}

func TestAssignActionAndCategoryGates(t *testing.T) {
	defs := []flow.PriorityDef{
		{Name: "pricing_action", Priority: 5, Action: "answer_with_pricing"},
		{Name: "price_category", Priority: 15, IntentCategory: "price"},
	}
	snap := assignerSnapshot(t, "spin_situation", "discount_request", defs, nil, tenant.Config{})

	a, err := NewAssigner(AssignerOptions{Defs: defs})
	require.NoError(t, err)

	ps := []proposal.Proposal{
		proposal.NewAction("answer_with_pricing", proposal.High, true, "r", "s"),
		proposal.NewAction("continue", proposal.Normal, true, "r", "s"),
		proposal.NewTransition("spin_problem", proposal.Normal, "r", "s"),
	}
	a.Assign(ps, snap)

	require.Equal(t, 5, ps[0].Rank)
	require.Equal(t, 15, ps[1].Rank)
	require.Equal(t, 15, ps[2].Rank)
}

func TestAssignFeatureFlagGate(t *testing.T) {
	defs := []flow.PriorityDef{
		{Name: "flagged", Priority: 5, FeatureFlag: "experimental_ranking"},
	}
	snap := assignerSnapshot(t, "spin_situation", "provide_info", defs, nil, tenant.Config{})

	a, err := NewAssigner(AssignerOptions{Defs: defs})
	require.NoError(t, err)

	ps := []proposal.Proposal{proposal.NewAction("continue", proposal.Normal, true, "r", "s")}
	a.Assign(ps, snap)
	require.Equal(t, proposal.DefaultRank, ps[0].Rank)

	enabled := assignerSnapshot(t, "spin_situation", "provide_info", defs, nil,
		tenant.Config{Features: map[string]bool{"experimental_ranking": true}})
	a.Assign(ps, enabled)
	require.Equal(t, 5, ps[0].Rank)
}

func TestAssignConditionWithElseRescue(t *testing.T) {
	defs := []flow.PriorityDef{
		{Name: "gated", Priority: 7, Condition: "data_complete", Else: "use_transitions"},
	}
	// No collected data, so data_complete is false.
	snap := assignerSnapshot(t, "spin_situation", "provide_info", defs, nil, tenant.Config{})

	a, err := NewAssigner(AssignerOptions{Defs: defs, Conditions: conditions.NewRegistry()})
	require.NoError(t, err)

	plain := proposal.NewTransition("spin_problem", proposal.Normal, "r", "s")
	rescued := proposal.NewTransition("spin_problem", proposal.Normal, "r", "s").
		WithMetadata(map[string]any{MetaUseTransitions: true})

	ps := []proposal.Proposal{plain, rescued}
	a.Assign(ps, snap)
	require.Equal(t, proposal.DefaultRank, ps[0].Rank)
	require.Equal(t, 7, ps[1].Rank)

	// The rescue never applies inside autonomous states.
	autoSnap := assignerSnapshot(t, "autonomous_discovery", "provide_info", defs, nil, tenant.Config{})
	ps = []proposal.Proposal{rescued}
	a.Assign(ps, autoSnap)
	require.Equal(t, proposal.DefaultRank, ps[0].Rank)

	// A satisfied condition applies to any proposal.
	full := assignerSnapshot(t, "spin_situation", "provide_info", defs,
		map[string]any{"company_size": "50"}, tenant.Config{})
	ps = []proposal.Proposal{plain}
	a.Assign(ps, full)
	require.Equal(t, 7, ps[0].Rank)
}

func TestAssignRequiresRegistryForConditions(t *testing.T) {
	_, err := NewAssigner(AssignerOptions{Defs: []flow.PriorityDef{{Name: "x", Condition: "data_complete"}}})
	require.Error(t, err)
}

func TestAssignNoDefsKeepsRanks(t *testing.T) {
	a, err := NewAssigner(AssignerOptions{})
	require.NoError(t, err)
	snap := assignerSnapshot(t, "spin_situation", "provide_info", nil, nil, tenant.Config{})

	ps := []proposal.Proposal{proposal.NewAction("continue", proposal.Normal, true, "r", "s")}
	a.Assign(ps, snap)
	require.Equal(t, proposal.DefaultRank, ps[0].Rank)
}

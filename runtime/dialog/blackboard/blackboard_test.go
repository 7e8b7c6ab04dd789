package blackboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/decision"
	"goa.design/parley/runtime/dialog/envelope"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/state"
)

func testBoard(t *testing.T) (*Blackboard, *state.DialogMachine) {
	t.Helper()
	f, err := flow.NewDefinition("spin_selling", map[string]*flow.State{
		"spin_situation": {
			Phase:        "situation",
			RequiredData: []string{"company_size"},
			Transitions: map[string]flow.Transition{
				"data_complete": {Target: "spin_problem"},
				"any":           {Target: "autonomous_discovery"},
			},
		},
		"spin_problem":         {Phase: "problem"},
		"autonomous_discovery": {Autonomous: true},
	})
	require.NoError(t, err)
	m, err := state.NewMachine(state.MachineOptions{Flow: f, Start: "spin_situation"})
	require.NoError(t, err)
	bb, err := New(Options{Machine: m, Flow: f})
	require.NoError(t, err)
	return bb, m
}

func TestPreTurnAccessFails(t *testing.T) {
	bb, _ := testBoard(t)

	_, err := bb.Context()
	require.ErrorIs(t, err, ErrNoTurn)
	_, err = bb.CurrentIntent()
	require.ErrorIs(t, err, ErrNoTurn)
	require.ErrorIs(t, bb.ProposeAction(proposal.NewAction("x", proposal.Normal, true, "r", "s")), ErrNoTurn)
	require.ErrorIs(t, bb.ProposeDataUpdate("f", 1), ErrNoTurn)
	require.ErrorIs(t, bb.ProposeFlagSet("f", true), ErrNoTurn)
	require.ErrorIs(t, bb.CommitDecision(&decision.Decision{}), ErrNoTurn)
}

func TestBeginTurnFreezesSnapshot(t *testing.T) {
	bb, m := testBoard(t)

	snap := bb.BeginTurn("price_question", map[string]any{
		"company_size": "50",
		"empty":        "",
		"nothing":      nil,
	}, &envelope.Envelope{ConsecutiveSameState: 2}, "how much is it?", 0.2)

	require.Equal(t, "spin_situation", snap.State())
	require.Equal(t, "price_question", snap.Intent())
	require.Equal(t, 1, snap.TurnNumber())
	require.Equal(t, "default", snap.Persona())
	require.Equal(t, "situation", snap.Phase())
	require.Equal(t, "how much is it?", snap.UserMessage())
	require.Equal(t, 0.2, snap.FrustrationLevel())
	require.Equal(t, 2, snap.Envelope().ConsecutiveSameState)

	// Only non-empty extracted values reach the collected data.
	require.Equal(t, "50", snap.CollectedData()["company_size"])
	require.NotContains(t, snap.CollectedData(), "empty")
	require.NotContains(t, snap.CollectedData(), "nothing")
	require.Equal(t, map[string]any{"company_size": "50"}, snap.Extracted())

	require.True(t, snap.HasAllRequiredData())
	require.Empty(t, snap.MissingRequiredData())
	tr, ok := snap.Transition("data_complete")
	require.True(t, ok)
	target, _ := tr.Resolve(nil)
	require.Equal(t, "spin_problem", target)

	intent, err := bb.CurrentIntent()
	require.NoError(t, err)
	require.Equal(t, "price_question", intent)
	require.Equal(t, 1, m.Intents().TurnNumber())
	require.Equal(t, "price_question", m.Intents().PrevIntent())
}

func TestSnapshotIsolation(t *testing.T) {
	bb, m := testBoard(t)
	snap := bb.BeginTurn("provide_info", nil, nil, "", 0)

	require.NotContains(t, snap.CollectedData(), "company_size")
	require.False(t, snap.HasAllRequiredData())
	require.Equal(t, []string{"company_size"}, snap.MissingRequiredData())

	// A staged data update is invisible to the frozen snapshot and to the
	// machine until commit.
	require.NoError(t, bb.ProposeDataUpdate("company_size", "50"))
	require.NotContains(t, snap.CollectedData(), "company_size")
	require.NotContains(t, m.CollectedData(), "company_size")
	require.False(t, snap.HasAllRequiredData())

	require.NoError(t, bb.CommitDecision(&decision.Decision{Action: "continue", NextState: "spin_situation"}))
	require.Equal(t, "50", m.CollectedData()["company_size"])
	require.NotContains(t, snap.CollectedData(), "company_size")
}

func TestProposalAccounting(t *testing.T) {
	bb, _ := testBoard(t)
	bb.BeginTurn("price_question", nil, nil, "", 0)

	require.NoError(t, bb.ProposeAction(proposal.NewAction("answer_with_pricing", proposal.High, true, "price_question_priority", "price_question")))
	mark := bb.ProposalCount()
	require.NoError(t, bb.ProposeTransition(proposal.NewTransition("spin_problem", proposal.Normal, "data_complete", "data_collector")))
	require.NoError(t, bb.ProposeFlagSet("asked_pricing", true))

	require.Len(t, bb.Proposals(), 2)
	require.Len(t, bb.ActionProposals(), 1)
	require.Len(t, bb.TransitionProposals(), 1)
	require.Equal(t, map[string]any{"asked_pricing": true}, bb.FlagsToSet())

	since := bb.ProposalsFrom(mark)
	require.Len(t, since, 1)
	require.Equal(t, "spin_problem", since[0].Value)
	require.Nil(t, bb.ProposalsFrom(99))

	// Kind mismatches are refused.
	require.Error(t, bb.ProposeAction(proposal.NewTransition("spin_problem", proposal.Normal, "r", "s")))
	require.Error(t, bb.ProposeTransition(proposal.NewAction("x", proposal.Normal, true, "r", "s")))

	// The next turn starts clean.
	bb.BeginTurn("provide_info", nil, nil, "", 0)
	require.Empty(t, bb.Proposals())
	require.Empty(t, bb.FlagsToSet())
	require.Nil(t, bb.Decision())
}

func TestCommitDecisionWriteOnce(t *testing.T) {
	bb, m := testBoard(t)
	bb.BeginTurn("provide_info", nil, nil, "", 0)

	d := &decision.Decision{
		Action:      "continue",
		NextState:   "spin_situation",
		DataUpdates: map[string]any{"budget": "10k"},
	}
	require.NoError(t, bb.CommitDecision(d))
	require.Same(t, d, bb.Decision())
	require.Equal(t, "10k", m.CollectedData()["budget"])

	require.ErrorIs(t, bb.CommitDecision(&decision.Decision{}), ErrCommitted)

	err := bb.CommitDecision(nil)
	require.Error(t, err)
}

func TestBeginTurnSkipsObjectionsPastLimit(t *testing.T) {
	bb, m := testBoard(t)

	// Default persona tolerates 3 consecutive objections.
	bb.BeginTurn("objection_price", nil, nil, "", 0)
	bb.BeginTurn("objection_price", nil, nil, "", 0)
	bb.BeginTurn("objection_price", nil, nil, "", 0)
	require.Equal(t, 3, m.Intents().ObjectionConsecutive())

	snap := bb.BeginTurn("objection_price", nil, nil, "", 0)
	require.Equal(t, 3, m.Intents().ObjectionConsecutive())
	require.Equal(t, 3, m.Intents().ObjectionTotal())
	require.Equal(t, 4, snap.TurnNumber())
	require.Equal(t, 3, snap.ObjectionConsecutive())

	// Non-objection intents are always recorded.
	bb.BeginTurn("provide_info", nil, nil, "", 0)
	require.Equal(t, "provide_info", m.Intents().PrevIntent())
}

func TestConditionContext(t *testing.T) {
	bb, _ := testBoard(t)
	snap := bb.BeginTurn("price_question", map[string]any{"company_size": "50"},
		&envelope.Envelope{ConsecutiveSameState: 3}, "msg", 0.8)

	cc := snap.ConditionContext()
	require.Equal(t, "spin_situation", cc.State)
	require.Equal(t, "situation", cc.Phase)
	require.Equal(t, "price_question", cc.Intent)
	require.Equal(t, 1, cc.Turn)
	require.Equal(t, "default", cc.Persona)
	require.Equal(t, []string{"company_size"}, cc.RequiredData)
	require.Equal(t, 0.8, cc.FrustrationLevel)
	require.Equal(t, 3, cc.ConsecutiveSameState)
	require.True(t, cc.HasAllRequired())
}

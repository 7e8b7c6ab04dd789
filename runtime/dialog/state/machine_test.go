package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/flow"
)

func testFlow(t *testing.T) *flow.Definition {
	t.Helper()
	f, err := flow.NewDefinition("spin_selling", map[string]*flow.State{
		"greeting": {
			Phase: "opening",
			Transitions: map[string]flow.Transition{
				"any": {Target: "discovery"},
			},
		},
		"discovery": {
			Phase:        "situation",
			RequiredData: []string{"company_size"},
			Transitions: map[string]flow.Transition{
				"data_complete": {Target: "pitch"},
				"go_back":       {Target: "greeting"},
			},
		},
		"pitch": {
			Phase: "presentation",
			Transitions: map[string]flow.Transition{
				"go_back": {Target: "discovery"},
			},
		},
		"soft_close": {},
		"close":      {Final: true},
	})
	require.NoError(t, err)
	return f
}

func TestNewMachineValidation(t *testing.T) {
	f := testFlow(t)

	_, err := NewMachine(MachineOptions{Start: "greeting"})
	require.ErrorContains(t, err, "flow is required")

	_, err = NewMachine(MachineOptions{Flow: f})
	require.ErrorContains(t, err, "start state is required")

	_, err = NewMachine(MachineOptions{Flow: f, Start: "nope"})
	require.ErrorContains(t, err, "not defined")

	m, err := NewMachine(MachineOptions{Flow: f, Start: "greeting"})
	require.NoError(t, err)
	require.Equal(t, "greeting", m.State())
	require.Equal(t, "opening", m.CurrentPhase())
	require.Equal(t, 3, m.Circular().MaxGoBacks())
}

func TestMachineTransitionTo(t *testing.T) {
	m, err := NewMachine(MachineOptions{Flow: testFlow(t), Start: "greeting"})
	require.NoError(t, err)

	require.True(t, m.TransitionTo("discovery", "ask_question", "", "test", true))
	require.Equal(t, "discovery", m.State())
	require.Equal(t, "situation", m.CurrentPhase())
	require.Equal(t, "ask_question", m.LastAction())

	// Unknown targets are refused under validation and leave state intact.
	require.False(t, m.TransitionTo("nowhere", "noop", "", "test", true))
	require.Equal(t, "discovery", m.State())
	require.Equal(t, "ask_question", m.LastAction())

	// An explicit phase wins over the flow mapping.
	require.True(t, m.TransitionTo("pitch", "present", "custom", "test", true))
	require.Equal(t, "custom", m.CurrentPhase())

	// An empty action keeps the previous one.
	require.True(t, m.TransitionTo("discovery", "", "", "test", true))
	require.Equal(t, "present", m.LastAction())

	// Without validation any non-empty target is accepted.
	require.True(t, m.TransitionTo("improvised", "x", "p", "test", false))
	require.Equal(t, "improvised", m.State())

	require.False(t, m.TransitionTo("", "x", "", "test", false))
}

func TestMachineIsFinal(t *testing.T) {
	f := testFlow(t)

	m, err := NewMachine(MachineOptions{Flow: f, Start: "close"})
	require.NoError(t, err)
	require.True(t, m.IsFinal())

	m, err = NewMachine(MachineOptions{Flow: f, Start: "soft_close"})
	require.NoError(t, err)
	require.False(t, m.IsFinal())

	m.UpdateData(map[string]any{ObjectionLimitFinalFlag: true})
	require.True(t, m.IsFinal())

	m, err = NewMachine(MachineOptions{
		Flow:      f,
		Start:     "greeting",
		Collected: map[string]any{ObjectionLimitFinalFlag: true},
	})
	require.NoError(t, err)
	require.False(t, m.IsFinal())
}

func TestMachineDataAndObjectionReturn(t *testing.T) {
	m, err := NewMachine(MachineOptions{
		Flow:      testFlow(t),
		Start:     "discovery",
		Collected: map[string]any{"channel": "web"},
	})
	require.NoError(t, err)

	m.UpdateData(map[string]any{"company_size": 40, "channel": "phone"})
	require.Equal(t, 40, m.CollectedData()["company_size"])
	require.Equal(t, "phone", m.CollectedData()["channel"])

	require.Empty(t, m.StateBeforeObjection())
	m.SetStateBeforeObjection("discovery")
	require.Equal(t, "discovery", m.StateBeforeObjection())
	m.ClearStateBeforeObjection()
	require.Empty(t, m.StateBeforeObjection())
}

func TestMachineSyncPhaseFromState(t *testing.T) {
	m, err := NewMachine(MachineOptions{Flow: testFlow(t), Start: "greeting"})
	require.NoError(t, err)

	require.True(t, m.TransitionTo("pitch", "present", "stale", "test", true))
	require.Equal(t, "stale", m.CurrentPhase())
	m.SyncPhaseFromState()
	require.Equal(t, "presentation", m.CurrentPhase())
}

func TestMachineExportImport(t *testing.T) {
	f := testFlow(t)
	m, err := NewMachine(MachineOptions{Flow: f, Start: "greeting", MaxGoBacks: 2})
	require.NoError(t, err)

	require.True(t, m.TransitionTo("discovery", "ask_question", "", "test", true))
	m.UpdateData(map[string]any{"company_size": 40})
	m.SetStateBeforeObjection("greeting")
	m.Circular().RecordGoBack("discovery", "greeting")
	m.Intents().AdvanceTurn()
	m.Intents().Record("objection_price", "discovery")
	m.Intents().Record("objection_price", "discovery")

	e := m.Export()
	require.Equal(t, "discovery", e.State)
	require.Equal(t, "situation", e.Phase)
	require.Equal(t, 1, e.Turn)
	require.Len(t, e.GoBacks, 1)
	require.Len(t, e.Intents, 2)

	restored, err := NewMachine(MachineOptions{Flow: f, Start: "greeting"})
	require.NoError(t, err)
	require.NoError(t, restored.Import(e))

	require.Equal(t, "discovery", restored.State())
	require.Equal(t, "situation", restored.CurrentPhase())
	require.Equal(t, "ask_question", restored.LastAction())
	require.Equal(t, "greeting", restored.StateBeforeObjection())
	require.Equal(t, 40, restored.CollectedData()["company_size"])
	require.Equal(t, 1, restored.Circular().GoBackCount())
	require.Equal(t, 2, restored.Circular().MaxGoBacks())
	require.Equal(t, 1, restored.Intents().TurnNumber())
	require.Equal(t, 2, restored.Intents().ObjectionConsecutive())
	require.Equal(t, "objection_price", restored.Intents().PrevIntent())
}

func TestMachineImportRejectsUnknownState(t *testing.T) {
	m, err := NewMachine(MachineOptions{Flow: testFlow(t), Start: "greeting"})
	require.NoError(t, err)

	require.Error(t, m.Import(Export{}))
	require.Error(t, m.Import(Export{State: "nowhere"}))
	require.Equal(t, "greeting", m.State())
}

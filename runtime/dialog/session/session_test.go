package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/state"
)

func testMachine(t *testing.T) *state.DialogMachine {
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
		},
		"close": {Final: true},
	})
	require.NoError(t, err)
	m, err := state.NewMachine(state.MachineOptions{Flow: f, Start: "greeting"})
	require.NoError(t, err)
	return m
}

func TestCaptureHydrateRoundTrip(t *testing.T) {
	m := testMachine(t)
	require.True(t, m.TransitionTo("discovery", "greet", "situation", "flow", true))
	m.UpdateData(map[string]any{"company_size": 40})
	m.Intents().Record("greeting", "greeting")

	snap, err := Capture("d-1", "acme", "analytical", "spin_selling", m)
	require.NoError(t, err)
	assert.Equal(t, "d-1", snap.DialogID)
	assert.Equal(t, "discovery", snap.Machine.State)
	assert.False(t, snap.UpdatedAt.IsZero())

	restored := testMachine(t)
	require.NoError(t, Hydrate(snap, "spin_selling", restored))
	assert.Equal(t, "discovery", restored.State())
	assert.Equal(t, "situation", restored.CurrentPhase())
	assert.Equal(t, "greet", restored.LastAction())
	assert.Equal(t, 40, restored.CollectedData()["company_size"])
}

func TestCaptureValidation(t *testing.T) {
	m := testMachine(t)
	_, err := Capture("", "acme", "", "spin_selling", m)
	require.EqualError(t, err, "dialog ID is required")

	_, err = Capture("d-1", "acme", "", "spin_selling", nil)
	require.EqualError(t, err, "machine is required")
}

func TestHydrateRejectsFlowMismatch(t *testing.T) {
	m := testMachine(t)
	snap, err := Capture("d-1", "acme", "", "spin_selling", m)
	require.NoError(t, err)

	other := testMachine(t)
	err = Hydrate(snap, "bant", other)
	require.EqualError(t, err, "snapshot was taken against a different flow")
	assert.Equal(t, "greeting", other.State(), "a rejected hydrate leaves the machine untouched")
}

func TestHydrateToleratesUnnamedFlow(t *testing.T) {
	m := testMachine(t)
	require.True(t, m.TransitionTo("discovery", "", "situation", "flow", true))
	snap, err := Capture("d-1", "", "", "", m)
	require.NoError(t, err)

	restored := testMachine(t)
	require.NoError(t, Hydrate(snap, "spin_selling", restored))
	assert.Equal(t, "discovery", restored.State())
}

package pulse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/events"
)

func newRelayFixture(t *testing.T, kinds ...events.Kind) (*events.Bus, *fakeStream, *Relay) {
	t.Helper()
	cli, str := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)
	bus := events.NewBus(events.Options{})
	relay, err := NewRelay(RelayOptions{Bus: bus, Sink: sink, Kinds: kinds})
	require.NoError(t, err)
	t.Cleanup(func() { _ = relay.Close() })
	return bus, str, relay
}

func TestRelayForwardsAllKinds(t *testing.T) {
	bus, str, _ := newRelayFixture(t)
	ctx := context.Background()

	bus.Emit(ctx, events.New(events.TurnStarted, 1, nil))
	bus.Emit(ctx, events.New(events.DecisionCommitted, 1, map[string]any{"action": "greet"}))

	require.Len(t, str.added, 2)
	assert.Equal(t, "turn_started", str.added[0].name)
	assert.Equal(t, "decision_committed", str.added[1].name)
}

func TestRelayFiltersKinds(t *testing.T) {
	bus, str, _ := newRelayFixture(t, events.DecisionCommitted, events.ErrorOccurred)
	ctx := context.Background()

	bus.Emit(ctx, events.New(events.TurnStarted, 1, nil))
	bus.Emit(ctx, events.New(events.DecisionCommitted, 1, nil))
	bus.Emit(ctx, events.New(events.ErrorOccurred, 1, nil))

	require.Len(t, str.added, 2)
	assert.Equal(t, "decision_committed", str.added[0].name)
	assert.Equal(t, "error_occurred", str.added[1].name)
}

func TestRelaySurvivesPublishFailure(t *testing.T) {
	bus, str, _ := newRelayFixture(t)
	ctx := context.Background()

	str.addErr = errors.New("redis down")
	bus.Emit(ctx, events.New(events.TurnStarted, 1, nil))

	// The bus swallows handler errors, so a failed publish must not block
	// later events once the stream recovers.
	str.addErr = nil
	bus.Emit(ctx, events.New(events.DecisionCommitted, 1, nil))
	require.Len(t, str.added, 1)
	assert.Equal(t, "decision_committed", str.added[0].name)
}

func TestRelayCloseStopsForwarding(t *testing.T) {
	bus, str, relay := newRelayFixture(t)
	ctx := context.Background()

	bus.Emit(ctx, events.New(events.TurnStarted, 1, nil))
	require.NoError(t, relay.Close())
	bus.Emit(ctx, events.New(events.DecisionCommitted, 1, nil))

	require.Len(t, str.added, 1)
}

func TestRelayValidation(t *testing.T) {
	cli, _ := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)

	_, err = NewRelay(RelayOptions{Sink: sink})
	require.EqualError(t, err, "bus is required")
	_, err = NewRelay(RelayOptions{Bus: events.NewBus(events.Options{})})
	require.EqualError(t, err, "sink is required")
}

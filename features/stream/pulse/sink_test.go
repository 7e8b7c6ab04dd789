package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/parley/runtime/dialog/events"

	clientspulse "goa.design/parley/features/stream/pulse/clients/pulse"
)

type fakeStreamClient struct {
	stream    *fakeStream
	streamErr error
	lastName  string
	closed    bool
}

func (c *fakeStreamClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	c.lastName = name
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	return c.stream, nil
}

func (c *fakeStreamClient) Close(context.Context) error {
	c.closed = true
	return nil
}

type addedEvent struct {
	name    string
	payload []byte
}

type fakeStream struct {
	added  []addedEvent
	addErr error
	sink   *fakeSink
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	if s.addErr != nil {
		return "", s.addErr
	}
	s.added = append(s.added, addedEvent{name: event, payload: payload})
	return "1-0", nil
}

func (s *fakeStream) NewSink(_ context.Context, name string, _ ...streamopts.Sink) (clientspulse.Sink, error) {
	s.sink.name = name
	return s.sink, nil
}

func (s *fakeStream) Destroy(context.Context) error { return nil }

type fakeSink struct {
	name   string
	ch     chan *streaming.Event
	acked  []string
	ackErr error
	closed bool
}

func (s *fakeSink) Subscribe() <-chan *streaming.Event { return s.ch }

func (s *fakeSink) Ack(_ context.Context, evt *streaming.Event) error {
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acked = append(s.acked, evt.ID)
	return nil
}

func (s *fakeSink) Close(context.Context) { s.closed = true }

func newFakes() (*fakeStreamClient, *fakeStream) {
	str := &fakeStream{sink: &fakeSink{ch: make(chan *streaming.Event, 4)}}
	return &fakeStreamClient{stream: str}, str
}

func TestSendPublishesEnvelope(t *testing.T) {
	cli, str := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-123"})
	require.NoError(t, err)

	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	err = sink.Send(context.Background(), events.Event{
		Kind:       events.DecisionCommitted,
		Timestamp:  at,
		TurnNumber: 4,
		Data:       map[string]any{"action": "price_question"},
	})
	require.NoError(t, err)

	assert.Equal(t, "dialog/d-123", cli.lastName)
	require.Len(t, str.added, 1)
	assert.Equal(t, "decision_committed", str.added[0].name)

	var env Envelope
	require.NoError(t, json.Unmarshal(str.added[0].payload, &env))
	assert.Equal(t, "decision_committed", env.Type)
	assert.Equal(t, "d-123", env.DialogID)
	assert.Equal(t, 4, env.Turn)
	assert.Equal(t, at, env.Timestamp)
	body, ok := env.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "price_question", body["action"])
}

func TestSendOmitsEmptyPayload(t *testing.T) {
	cli, str := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), events.Event{Kind: events.TurnStarted, TurnNumber: 1}))
	require.Len(t, str.added, 1)
	assert.NotContains(t, string(str.added[0].payload), `"payload"`)
}

func TestCustomStreamID(t *testing.T) {
	cli, _ := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1", StreamID: "tenant-7/dialogs"})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), events.Event{Kind: events.TurnStarted}))
	assert.Equal(t, "tenant-7/dialogs", cli.lastName)
	assert.Equal(t, "tenant-7/dialogs", sink.StreamID())
}

func TestSinkValidation(t *testing.T) {
	_, err := NewSink(Options{DialogID: "d-1"})
	require.EqualError(t, err, "pulse client is required")

	cli, _ := newFakes()
	_, err = NewSink(Options{Client: cli})
	require.EqualError(t, err, "dialog ID is required")
}

func TestSendStreamCreationError(t *testing.T) {
	cli, _ := newFakes()
	cli.streamErr = errors.New("boom")
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)

	err = sink.Send(context.Background(), events.Event{Kind: events.TurnStarted})
	require.EqualError(t, err, "boom")
}

func TestSendAddError(t *testing.T) {
	cli, str := newFakes()
	str.addErr = errors.New("add-failed")
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)

	err = sink.Send(context.Background(), events.Event{Kind: events.TurnStarted})
	require.EqualError(t, err, "add-failed")
}

func TestCloseDelegates(t *testing.T) {
	cli, _ := newFakes()
	sink, err := NewSink(Options{Client: cli, DialogID: "d-1"})
	require.NoError(t, err)

	require.NoError(t, sink.Close(context.Background()))
	assert.True(t, cli.closed)
}

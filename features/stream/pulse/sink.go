// Package pulse publishes dialog lifecycle events to goa.design/pulse
// streams so other services can follow a dialog live. It mirrors the layering
// used by existing Pulse deployments: services build a Redis client, pass it
// to the Pulse client, and hand the resulting sink to a relay subscribed to
// the dialog's event bus.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/parley/runtime/dialog/events"

	clientspulse "goa.design/parley/features/stream/pulse/clients/pulse"
)

type (
	// Envelope wraps dialog events for transmission over Pulse streams.
	Envelope struct {
		// Type identifies the event kind (e.g. "decision_committed").
		Type string `json:"type"`
		// DialogID links the event to a dialog.
		DialogID string `json:"dialog_id"`
		// Turn is the turn number the event belongs to.
		Turn int `json:"turn"`
		// Timestamp records when the event fired (UTC).
		Timestamp time.Time `json:"timestamp"`
		// Payload carries the event-specific data, if any.
		Payload any `json:"payload,omitempty"`
	}

	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client clientspulse.Client
		// DialogID stamps published envelopes and derives the default stream
		// name. Required.
		DialogID string
		// StreamID overrides the target Pulse stream. Defaults to
		// "dialog/<DialogID>".
		StreamID string
		// MarshalEnvelope overrides envelope serialization (primarily for
		// tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
	}

	// Sink publishes dialog events into a Pulse stream. Safe for concurrent
	// Send calls.
	Sink struct {
		client   clientspulse.Client
		dialogID string
		streamID string
		marshal  func(Envelope) ([]byte, error)
	}
)

// NewSink constructs a Pulse-backed event sink for one dialog.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	if opts.DialogID == "" {
		return nil, errors.New("dialog ID is required")
	}
	streamID := opts.StreamID
	if streamID == "" {
		streamID = fmt.Sprintf("dialog/%s", opts.DialogID)
	}
	marshal := opts.MarshalEnvelope
	if marshal == nil {
		marshal = defaultMarshal
	}
	return &Sink{
		client:   opts.Client,
		dialogID: opts.DialogID,
		streamID: streamID,
		marshal:  marshal,
	}, nil
}

// StreamID returns the Pulse stream the sink publishes to.
func (s *Sink) StreamID() string { return s.streamID }

// Send publishes the event to the dialog's Pulse stream.
func (s *Sink) Send(ctx context.Context, event events.Event) error {
	handle, err := s.client.Stream(s.streamID)
	if err != nil {
		return err
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	env := Envelope{
		Type:      string(event.Kind),
		DialogID:  s.dialogID,
		Turn:      event.TurnNumber,
		Timestamp: ts.UTC(),
	}
	if len(event.Data) > 0 {
		env.Payload = event.Data
	}
	payload, err := s.marshal(env)
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, env.Type, payload); err != nil {
		return err
	}
	return nil
}

// Close releases resources owned by the sink. This delegates to the
// underlying Pulse client, which may or may not close the Redis connection
// depending on the implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

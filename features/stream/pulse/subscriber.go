package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	streamopts "goa.design/pulse/streaming/options"

	"goa.design/parley/runtime/dialog/events"

	clientspulse "goa.design/parley/features/stream/pulse/clients/pulse"
)

type (
	// StreamedEvent is a dialog event read back from a Pulse stream.
	StreamedEvent struct {
		DialogID string
		Event    events.Event
	}

	// EnvelopeDecoder converts raw payloads read from Pulse into dialog
	// events. Custom decoders can handle non-standard envelope formats.
	EnvelopeDecoder func([]byte) (StreamedEvent, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume events. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to
		// "parley_subscriber".
		SinkName string
		// Buffer specifies the event channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes event payloads. Defaults to the built-in JSON
		// decoder.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes a dialog's Pulse stream and emits the events the
	// relay published. It wraps a Pulse sink (consumer group) and decodes
	// incoming envelopes.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
		decode EnvelopeDecoder
	}
)

// NewSubscriber constructs a Pulse-backed subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "parley_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		buffer: buffer,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and returns channels
// for events and errors. It spawns a goroutine that consumes from the sink,
// decodes envelopes, and emits dialog events. The returned cancel function
// stops consumption, closes the sink, and closes both channels.
//
// Usage:
//
//	evts, errs, cancel, err := sub.Subscribe(ctx, "dialog/d-123")
//	defer cancel()
//	for evt := range evts {
//	    // process evt.Event
//	}
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
	opts ...streamopts.Sink,
) (<-chan StreamedEvent, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	out := make(chan StreamedEvent, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, out, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return out, errs, cancelFunc, nil
}

// consume reads events from the Pulse sink channel, decodes them, and emits
// them on the out channel. It acks each event after successful emission and
// closes both channels when ctx is canceled or the sink channel closes.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- StreamedEvent, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope format back into a
// dialog event.
func decodeEnvelope(payload []byte) (StreamedEvent, error) {
	var env struct {
		Type      string         `json:"type"`
		DialogID  string         `json:"dialog_id"`
		Turn      int            `json:"turn"`
		Timestamp time.Time      `json:"timestamp"`
		Payload   map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return StreamedEvent{}, err
	}
	return StreamedEvent{
		DialogID: env.DialogID,
		Event: events.Event{
			Kind:       events.Kind(env.Type),
			Timestamp:  env.Timestamp,
			TurnNumber: env.Turn,
			Data:       env.Payload,
		},
	}, nil
}

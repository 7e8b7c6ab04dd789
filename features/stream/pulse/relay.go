package pulse

import (
	"context"
	"errors"
	"fmt"

	"goa.design/parley/runtime/dialog/events"
	"goa.design/parley/runtime/dialog/telemetry"
)

type (
	// RelayOptions configures a relay.
	RelayOptions struct {
		// Bus is the dialog's event bus. Required.
		Bus *events.Bus
		// Sink publishes the events. Required.
		Sink *Sink
		// Kinds restricts forwarding to the listed event kinds. Empty forwards
		// everything.
		Kinds []events.Kind
		// Log reports publish failures. Defaults to a noop logger.
		Log telemetry.Logger
	}

	// Relay forwards bus events into a Pulse stream. Publish failures are
	// logged and never propagate into the turn pipeline.
	Relay struct {
		sink *Sink
		log  telemetry.Logger
		subs []events.Subscription
	}
)

// NewRelay subscribes to the bus and starts forwarding.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	log := opts.Log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	r := &Relay{sink: opts.Sink, log: log}
	if len(opts.Kinds) == 0 {
		sub, err := opts.Bus.SubscribeAll(r.forward)
		if err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		r.subs = append(r.subs, sub)
		return r, nil
	}
	for _, kind := range opts.Kinds {
		sub, err := opts.Bus.Subscribe(kind, r.forward)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("subscribe %s: %w", kind, err)
		}
		r.subs = append(r.subs, sub)
	}
	return r, nil
}

// Close stops forwarding.
func (r *Relay) Close() error {
	r.close()
	return nil
}

func (r *Relay) close() {
	for _, sub := range r.subs {
		_ = sub.Close()
	}
	r.subs = nil
}

func (r *Relay) forward(ctx context.Context, e events.Event) error {
	if err := r.sink.Send(ctx, e); err != nil {
		r.log.Warn(ctx, "pulse publish failed", "stream", r.sink.StreamID(), "kind", string(e.Kind), "err", err)
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

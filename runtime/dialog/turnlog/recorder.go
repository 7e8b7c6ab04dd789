package turnlog

import (
	"context"
	"errors"
	"fmt"

	"goa.design/parley/runtime/dialog/events"
	"goa.design/parley/runtime/dialog/telemetry"
)

type (
	// RecorderOptions configures a recorder.
	RecorderOptions struct {
		// DialogID stamps recorded entries. Required.
		DialogID string
		// Bus is the dialog's event bus. Required.
		Bus *events.Bus
		// Store receives the entries. Required.
		Store Store
		// Log reports append failures. Defaults to a noop logger.
		Log telemetry.Logger
	}

	// Recorder turns decision_committed events into audit entries. Append
	// failures are logged and never propagate into the turn pipeline.
	Recorder struct {
		dialogID string
		store    Store
		log      telemetry.Logger
		sub      events.Subscription
	}
)

// NewRecorder subscribes to the bus and starts recording.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.DialogID == "" {
		return nil, errors.New("dialog ID is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	log := opts.Log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	r := &Recorder{dialogID: opts.DialogID, store: opts.Store, log: log}
	sub, err := opts.Bus.Subscribe(events.DecisionCommitted, r.record)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	r.sub = sub
	return r, nil
}

// Close stops recording.
func (r *Recorder) Close() error { return r.sub.Close() }

func (r *Recorder) record(ctx context.Context, e events.Event) error {
	entry := Entry{
		DialogID:  r.dialogID,
		Turn:      e.TurnNumber,
		Action:    dataString(e.Data, "action"),
		PrevState: dataString(e.Data, "prev_state"),
		NextState: dataString(e.Data, "next_state"),
		Mode:      dataString(e.Data, "mode"),
		At:        e.Timestamp,
	}
	if reasons, ok := e.Data["reasons"].([]string); ok {
		entry.Reasons = append([]string(nil), reasons...)
	}
	if _, err := r.store.Append(ctx, entry); err != nil {
		r.log.Warn(ctx, "turn log append failed", "dialog_id", r.dialogID, "turn", e.TurnNumber, "err", err)
		return fmt.Errorf("append turn %d: %w", e.TurnNumber, err)
	}
	return nil
}

func dataString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

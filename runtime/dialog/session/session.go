// Package session defines the dialog session snapshot and the Store port that
// persists it between turns. The decision core keeps one machine per dialog in
// memory for the duration of a turn; everything durable lives behind Store.
package session

import (
	"context"
	"errors"
	"time"

	"goa.design/parley/runtime/dialog/state"
)

// ErrNotFound is returned by Store.Load when no snapshot exists for the
// dialog.
var ErrNotFound = errors.New("session not found")

type (
	// Snapshot is the serializable state of one dialog between turns.
	Snapshot struct {
		// DialogID identifies the dialog.
		DialogID string `json:"dialog_id"`
		// TenantID identifies the owning tenant.
		TenantID string `json:"tenant_id,omitempty"`
		// Persona is the tenant persona active for this dialog.
		Persona string `json:"persona,omitempty"`
		// FlowName names the flow the machine was built from. Hydration
		// refuses a snapshot taken against a different flow.
		FlowName string `json:"flow_name,omitempty"`
		// Machine is the exported dialog machine state.
		Machine state.Export `json:"machine"`
		// UpdatedAt is when the snapshot was taken.
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Store persists dialog snapshots. Implementations are safe for
	// concurrent use; turns within one dialog are serialized by the caller.
	Store interface {
		// Save writes the snapshot, replacing any previous one for the
		// dialog.
		Save(ctx context.Context, snap Snapshot) error
		// Load returns the snapshot for the dialog, ErrNotFound when there
		// is none.
		Load(ctx context.Context, dialogID string) (Snapshot, error)
		// Delete removes the snapshot. Deleting a missing snapshot is not an
		// error.
		Delete(ctx context.Context, dialogID string) error
	}
)

// Capture snapshots a dialog machine.
func Capture(dialogID, tenantID, persona, flowName string, m *state.DialogMachine) (Snapshot, error) {
	if dialogID == "" {
		return Snapshot{}, errors.New("dialog ID is required")
	}
	if m == nil {
		return Snapshot{}, errors.New("machine is required")
	}
	return Snapshot{
		DialogID:  dialogID,
		TenantID:  tenantID,
		Persona:   persona,
		FlowName:  flowName,
		Machine:   m.Export(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Hydrate restores a dialog machine from a snapshot. The machine must be
// built from the flow the snapshot names; a mismatch is an error before any
// state is touched.
func Hydrate(snap Snapshot, flowName string, m *state.DialogMachine) error {
	if m == nil {
		return errors.New("machine is required")
	}
	if snap.FlowName != "" && flowName != "" && snap.FlowName != flowName {
		return errors.New("snapshot was taken against a different flow")
	}
	return m.Import(snap.Machine)
}

// Package turnlog defines the decision audit trail: one entry per committed
// turn decision, a Store port for the durable home and a Recorder that feeds
// the store from decision_committed bus events.
package turnlog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.List when the cursor does not resolve to a
// known position.
var ErrNotFound = errors.New("turn log entry not found")

type (
	// Entry is one committed decision.
	Entry struct {
		// ID is assigned by the store on append.
		ID string `json:"id,omitempty"`
		// DialogID identifies the dialog.
		DialogID string `json:"dialog_id"`
		// Turn is the turn number the decision closed.
		Turn int `json:"turn"`
		// Action is the committed action.
		Action string `json:"action"`
		// PrevState is the state the turn started in.
		PrevState string `json:"prev_state,omitempty"`
		// NextState is the state the decision moved to.
		NextState string `json:"next_state"`
		// Reasons are the decision's reason codes.
		Reasons []string `json:"reasons,omitempty"`
		// Mode is the resolver's merge mode, when recorded.
		Mode string `json:"mode,omitempty"`
		// At is when the decision was committed.
		At time.Time `json:"at"`
	}

	// Page is one slice of a dialog's audit trail.
	Page struct {
		// Entries are the matching entries, oldest first.
		Entries []Entry `json:"entries"`
		// NextCursor resumes the listing, empty on the last page.
		NextCursor string `json:"next_cursor,omitempty"`
	}

	// Store persists audit entries. Implementations assign Entry.ID.
	Store interface {
		// Append writes one entry and returns it with the assigned ID.
		Append(ctx context.Context, e Entry) (Entry, error)
		// List returns a page of the dialog's entries oldest first. An empty
		// cursor starts from the beginning; an unknown cursor returns
		// ErrNotFound. A non-positive limit uses the store default.
		List(ctx context.Context, dialogID, cursor string, limit int) (Page, error)
	}
)

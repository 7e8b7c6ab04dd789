// Package source defines the knowledge-source contract and the frozen,
// priority-ordered registry the orchestrator instantiates sources from.
package source

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
)

// Source is one knowledge source. Sources read the frozen snapshot and write
// proposals through the blackboard; they never touch the state machine.
type Source interface {
	// Name identifies the source in proposals, events and logs.
	Name() string
	// ShouldContribute is a cheap gate evaluated against the frozen
	// snapshot. It must not mutate anything.
	ShouldContribute(snap *blackboard.Snapshot) bool
	// Contribute writes the source's proposals to the blackboard. A
	// returned error skips the source without failing the turn.
	Contribute(ctx context.Context, bb *blackboard.Blackboard) error
}

// Factory builds a source from its registered name and per-source
// configuration.
type Factory func(name string, cfg map[string]any) (Source, error)

package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/resolve"
)

// GoBackIntent is the navigation intent that triggers the guard.
const GoBackIntent = "go_back"

// GoBackGuard acknowledges go-back requests while the circular-flow counter
// is within its limit and blocks them once it is exhausted. The counter
// itself is never touched here; the orchestrator increments it only after
// the winning action is the acknowledgement and the machine actually moved
// to the expected target.
type GoBackGuard struct{}

// NewGoBackGuard returns the go-back guard.
func NewGoBackGuard() *GoBackGuard { return &GoBackGuard{} }

// Name implements source.Source.
func (g *GoBackGuard) Name() string { return NameGoBackGuard }

// ShouldContribute fires on a go-back intent when the current state defines
// a go-back transition.
func (g *GoBackGuard) ShouldContribute(snap *blackboard.Snapshot) bool {
	if snap.Intent() != GoBackIntent {
		return false
	}
	_, ok := snap.Transition(GoBackIntent)
	return ok
}

// Contribute proposes the acknowledgement or the limit action.
func (g *GoBackGuard) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	tr, ok := snap.Transition(GoBackIntent)
	if !ok {
		return nil
	}
	target, ok := tr.Resolve(nil)
	if !ok || target == "" || target == snap.State() {
		return nil
	}

	if snap.Circular().LimitReached {
		p := proposal.NewAction(ActionGoBackLimitReached, proposal.High, false, "go_back_limit_reached", g.Name()).
			WithMetadata(map[string]any{resolve.MetaHandler: HandlerCircularFlow})
		return bb.ProposeAction(p)
	}

	p := proposal.NewAction(ActionAcknowledgeGoBack, proposal.Normal, true, "go_back_requested", g.Name()).
		WithMetadata(map[string]any{
			MetaPendingGoBackIncrement: true,
			MetaToState:                target,
			MetaFromState:              snap.State(),
			resolve.MetaHandler:        HandlerCircularFlow,
		})
	return bb.ProposeAction(p)
}

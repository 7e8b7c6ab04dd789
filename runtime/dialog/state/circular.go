package state

import "goa.design/parley/runtime/dialog/flow"

// Circular is the in-memory CircularFlow implementation.
type Circular struct {
	max  int
	hops []GoBackHop
}

// NewCircular builds a go-back counter with the given ceiling. Non-positive
// ceilings fall back to 3.
func NewCircular(max int) *Circular {
	if max <= 0 {
		max = 3
	}
	return &Circular{max: max}
}

func restoreCircular(max int, hops []GoBackHop) *Circular {
	c := NewCircular(max)
	c.hops = append(c.hops, hops...)
	return c
}

// GoBackCount implements CircularFlow.
func (c *Circular) GoBackCount() int { return len(c.hops) }

// MaxGoBacks implements CircularFlow.
func (c *Circular) MaxGoBacks() int { return c.max }

// Stats implements CircularFlow.
func (c *Circular) Stats() CircularStats {
	return CircularStats{
		GoBackCount:  c.GoBackCount(),
		MaxGoBacks:   c.max,
		Remaining:    c.Remaining(),
		LimitReached: c.LimitReached(),
	}
}

// GoBackTarget implements CircularFlow. Conditions on the go_back transition
// are not evaluated here; a conditional form resolves through its else arm.
// A target equal to the current state is treated as not configured.
func (c *Circular) GoBackTarget(state string, transitions map[string]flow.Transition) string {
	t, ok := transitions["go_back"]
	if !ok {
		return ""
	}
	target, ok := t.Resolve(nil)
	if !ok || target == state {
		return ""
	}
	return target
}

// LimitReached implements CircularFlow.
func (c *Circular) LimitReached() bool { return len(c.hops) >= c.max }

// Remaining implements CircularFlow.
func (c *Circular) Remaining() int {
	if r := c.max - len(c.hops); r > 0 {
		return r
	}
	return 0
}

// History implements CircularFlow.
func (c *Circular) History() []GoBackHop {
	out := make([]GoBackHop, len(c.hops))
	copy(out, c.hops)
	return out
}

// RecordGoBack implements CircularFlow.
func (c *Circular) RecordGoBack(from, to string) {
	c.hops = append(c.hops, GoBackHop{From: from, To: to})
}

package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/proposal"
	"goa.design/parley/runtime/dialog/resolve"
)

func TestIntentProcessorPlainRule(t *testing.T) {
	f := newFixture(t, fixtureOptions{states: spinStates(), start: "spin_problem"})
	src := NewIntentProcessor(nil)

	snap := f.turn("provide_info")
	require.True(t, src.ShouldContribute(snap))

	ps := f.contribute(src)
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, "acknowledge_info", p.Value)
	assert.Equal(t, proposal.Normal, p.Priority)
	assert.True(t, p.Combinable)
	assert.Equal(t, "rule_provide_info", p.Reason)
	assert.Equal(t, "rules", p.MetaString(resolve.MetaSource))
}

func TestIntentProcessorBlockingAction(t *testing.T) {
	states := spinStates()
	states["spin_problem"].Rules["rejection"] = flow.Rule{Action: "handle_rejection"}
	f := newFixture(t, fixtureOptions{states: states, start: "spin_problem"})
	f.turn("rejection")

	ps := f.contribute(NewIntentProcessor(nil))
	require.Len(t, ps, 1)
	assert.Equal(t, "handle_rejection", ps[0].Value)
	assert.False(t, ps[0].Combinable)
}

func TestIntentProcessorConditionalRule(t *testing.T) {
	states := spinStates()
	states["spin_problem"].Rules["price_question"] = flow.Rule{
		Chain: []flow.Rule{
			{When: "has_budget", Then: "answer_with_pricing"},
			{Action: "collect_budget_first"},
		},
	}
	reg := conditions.NewRegistry()
	require.NoError(t, reg.Register("has_budget", func(c conditions.Context) bool {
		return c.HasField("budget")
	}))

	f := newFixture(t, fixtureOptions{
		states:    states,
		start:     "spin_problem",
		collected: map[string]any{"budget": "10k"},
	})
	f.turn("price_question")
	ps := f.contribute(NewIntentProcessor(reg))
	require.Len(t, ps, 1)
	assert.Equal(t, "answer_with_pricing", ps[0].Value)

	f2 := newFixture(t, fixtureOptions{states: states, start: "spin_problem"})
	f2.turn("price_question")
	ps2 := f2.contribute(NewIntentProcessor(reg))
	require.Len(t, ps2, 1)
	assert.Equal(t, "collect_budget_first", ps2[0].Value)
}

func TestIntentProcessorGate(t *testing.T) {
	f := newFixture(t, fixtureOptions{states: spinStates(), start: "spin_problem"})
	require.False(t, NewIntentProcessor(nil).ShouldContribute(f.turn("unknown_intent")))

	f2 := newFixture(t, fixtureOptions{states: spinStates(), start: "greeting"})
	require.False(t, NewIntentProcessor(nil).ShouldContribute(f2.turn("provide_info")))
}

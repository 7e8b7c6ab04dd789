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

func TestTransitionResolverMapsIntent(t *testing.T) {
	f := newFixture(t, fixtureOptions{states: spinStates(), start: "greeting"})
	src := NewTransitionResolver(nil)

	snap := f.turn("greeting_done")
	require.True(t, src.ShouldContribute(snap))

	ps := f.contribute(src)
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, proposal.KindTransition, p.Kind)
	assert.Equal(t, "spin_situation", p.Value)
	assert.Equal(t, proposal.Normal, p.Priority)
	assert.Equal(t, "greeting_done", p.Reason)
	assert.Equal(t, "greeting_done", p.MetaString(resolve.MetaTrigger))
	assert.True(t, p.MetaBool(resolve.MetaUseTransitions))
}

func TestTransitionResolverHardNoPriority(t *testing.T) {
	states := spinStates()
	states["spin_situation"].Transitions["rejection"] = flow.Transition{Target: "soft_close"}
	f := newFixture(t, fixtureOptions{states: states, start: "spin_situation"})
	f.turn("rejection")

	ps := f.contribute(NewTransitionResolver(nil))
	require.Len(t, ps, 1)
	assert.Equal(t, "soft_close", ps[0].Value)
	assert.Equal(t, proposal.High, ps[0].Priority)
}

func TestTransitionResolverExcludesReservedTriggers(t *testing.T) {
	states := spinStates()
	states["spin_situation"].Transitions["any"] = flow.Transition{Target: "spin_problem"}
	f := newFixture(t, fixtureOptions{
		states:    states,
		start:     "spin_situation",
		collected: map[string]any{"company_size": "50"},
	})
	src := NewTransitionResolver(nil)

	require.False(t, src.ShouldContribute(f.turn(DataCompleteTrigger)))
	require.False(t, src.ShouldContribute(f.turn("any")))
	require.False(t, src.ShouldContribute(f.turn("unmapped_intent")))
}

func TestTransitionResolverConditionalForm(t *testing.T) {
	states := spinStates()
	states["spin_situation"].Transitions["interest_shown"] = flow.Transition{
		When: "is_qualified",
		Then: "spin_problem",
		Else: "greeting",
	}
	reg := conditions.NewRegistry()
	require.NoError(t, reg.Register("is_qualified", func(c conditions.Context) bool {
		return c.HasField("company_size")
	}))

	f := newFixture(t, fixtureOptions{
		states:    states,
		start:     "spin_situation",
		collected: map[string]any{"company_size": "200"},
	})
	f.turn("interest_shown")
	ps := f.contribute(NewTransitionResolver(reg))
	require.Len(t, ps, 1)
	assert.Equal(t, "spin_problem", ps[0].Value)

	f2 := newFixture(t, fixtureOptions{states: states, start: "spin_situation"})
	f2.turn("interest_shown")
	ps2 := f2.contribute(NewTransitionResolver(reg))
	require.Len(t, ps2, 1)
	assert.Equal(t, "greeting", ps2[0].Value)
}

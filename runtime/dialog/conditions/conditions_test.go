package conditions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalBuiltins(t *testing.T) {
	r := NewRegistry()

	ctx := Context{
		CollectedData: map[string]any{"company_size": "50"},
		RequiredData:  []string{"company_size"},
	}
	ok, err := r.Eval("data_complete", ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ctx.RequiredData = []string{"company_size", "budget"}
	ok, err = r.Eval("data_complete", ctx)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Eval("missing_required_data", ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalHasPrefix(t *testing.T) {
	r := NewRegistry()
	ctx := Context{CollectedData: map[string]any{"budget": "10k", "note": ""}}

	ok, err := r.Eval("has:budget", ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Eval("has:note", ctx)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Eval("has:absent", ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, r.Has("has:anything"))
}

func TestEvalUnknownCondition(t *testing.T) {
	r := NewRegistry()
	ok, err := r.Eval("no_such_condition", Context{})
	require.Error(t, err)
	require.False(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("is_vip", func(c Context) bool { return c.Persona == "vip" }))
	require.Error(t, r.Register("is_vip", func(Context) bool { return true }))
	require.Error(t, r.Register("", func(Context) bool { return true }))
	require.Error(t, r.Register("nil_fn", nil))

	ok, err := r.Eval("is_vip", Context{Persona: "vip"})
	require.NoError(t, err)
	require.True(t, ok)
}

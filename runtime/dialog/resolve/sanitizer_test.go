package resolve

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNextState(t *testing.T) {
	known := []string{"spin_situation", "spin_problem", "soft_close"}

	s := SanitizeNextState("spin_problem", "spin_situation", known)
	require.True(t, s.Valid)
	require.False(t, s.Sanitized)
	require.Equal(t, "spin_problem", s.EffectiveState)

	s = SanitizeNextState("", "spin_situation", known)
	require.True(t, s.Valid)
	require.False(t, s.Sanitized)
	require.Equal(t, "spin_situation", s.EffectiveState)

	s = SanitizeNextState("ghost_state", "spin_situation", known)
	require.False(t, s.Valid)
	require.True(t, s.Sanitized)
	require.Equal(t, "spin_situation", s.EffectiveState)
	require.Equal(t, "invalid_next_state_sanitized", s.ReasonCode)
	require.Equal(t, "ghost_state", s.Diagnostic["requested_state"])

	// Without a known set everything passes through.
	s = SanitizeNextState("ghost_state", "spin_situation", nil)
	require.True(t, s.Valid)
	require.Equal(t, "ghost_state", s.EffectiveState)
}

func TestSanitizerProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("effective state is known or current", prop.ForAll(
		func(reqSeed, size int) bool {
			known := make([]string, size)
			for i := range known {
				known[i] = fmt.Sprintf("state_%d", i)
			}
			requested := fmt.Sprintf("state_%d", reqSeed)
			s := SanitizeNextState(requested, "current", known)
			if s.EffectiveState == "current" {
				return true
			}
			for _, k := range known {
				if s.EffectiveState == k {
					return true
				}
			}
			return false
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

package proposal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	require.Less(t, int(Critical), int(High))
	require.Less(t, int(High), int(Normal))
	require.Less(t, int(Normal), int(Low))
	require.Equal(t, "critical", Critical.String())
	require.Equal(t, "low", Low.String())
	require.True(t, Normal.Valid())
	require.False(t, Priority(7).Valid())
}

func TestNewActionDefaults(t *testing.T) {
	p := NewAction("answer_with_pricing", High, true, "price_question_priority", "price_question")
	require.Equal(t, KindAction, p.Kind)
	require.Equal(t, DefaultRank, p.Rank)
	require.True(t, p.Combinable)
	require.NoError(t, p.Validate())
}

func TestNewTransitionAlwaysCombinable(t *testing.T) {
	p := NewTransition("spin_problem", Normal, "data_complete", "data_collector")
	require.Equal(t, KindTransition, p.Kind)
	require.True(t, p.Combinable)
	require.NoError(t, p.Validate())
}

func TestValidateRejectsNonCombinableTransition(t *testing.T) {
	p := NewTransition("spin_problem", Normal, "data_complete", "data_collector")
	p.Combinable = false
	require.Error(t, p.Validate())
}

func TestValidateRejectsLowBlockingAction(t *testing.T) {
	p := NewAction("handle_rejection", Low, false, "rejection", "intent_processor")
	require.Error(t, p.Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	p := NewAction("", Normal, true, "r", "s")
	require.Error(t, p.Validate())

	p = NewAction("continue", Normal, true, "r", "")
	require.Error(t, p.Validate())

	p = NewAction("continue", Normal, true, "r", "s")
	p.Kind = Kind("bogus")
	require.Error(t, p.Validate())
}

func TestMetadataAccessors(t *testing.T) {
	p := NewAction("acknowledge_go_back", Normal, true, "go_back_acknowledged", "go_back_guard").
		WithMetadata(map[string]any{
			"pending_goback_increment": true,
			"to_state":                 "spin_situation",
		})
	require.True(t, p.MetaBool("pending_goback_increment"))
	require.Equal(t, "spin_situation", p.MetaString("to_state"))
	require.Nil(t, p.Meta("absent"))
	require.False(t, p.MetaBool("to_state"))
}

package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntentLogStreaks(t *testing.T) {
	l := NewIntentLog()
	require.Equal(t, 0, l.TurnNumber())
	require.Empty(t, l.PrevIntent())

	l.AdvanceTurn()
	l.Record("objection_price", "pitch")
	l.Record("objection_timing", "pitch")
	require.Equal(t, 2, l.ObjectionConsecutive())
	require.Equal(t, 2, l.ObjectionTotal())

	// A different category ends the objection streak but not its total.
	l.Record("price_question", "pitch")
	require.Equal(t, 0, l.ObjectionConsecutive())
	require.Equal(t, 2, l.ObjectionTotal())
	require.Equal(t, 1, l.CategoryStreak("price"))

	l.Record("objection_price", "pitch")
	require.Equal(t, 1, l.ObjectionConsecutive())
	require.Equal(t, 3, l.ObjectionTotal())
	require.Equal(t, 2, l.TotalCount("objection_price"))
	require.Equal(t, "objection_price", l.PrevIntent())
}

func TestIntentLogQueries(t *testing.T) {
	l := NewIntentLog()
	l.AdvanceTurn()
	l.Record("greeting", "greeting")
	l.AdvanceTurn()
	l.Record("objection_price", "pitch")
	l.Record("objection_price", "pitch")
	l.AdvanceTurn()
	l.Record("objection_trust", "pitch")

	require.Equal(t, 3, l.TurnNumber())
	require.Equal(t, 3, l.CategoryTotal("objection"))
	require.Equal(t, 1, l.CategoryTotal("social"))
	require.Equal(t,
		[]string{"objection_price", "objection_trust"},
		l.IntentsByCategory("objection"))
	require.Empty(t, l.IntentsByCategory("price"))

	require.Equal(t,
		[]string{"objection_price", "objection_trust"},
		l.RecentIntents(2))
	require.Len(t, l.RecentIntents(100), 4)
	require.Nil(t, l.RecentIntents(0))

	records := l.Records()
	require.Len(t, records, 4)
	require.Equal(t, IntentRecord{Intent: "greeting", State: "greeting", Turn: 1, Category: "social"}, records[0])
	require.Equal(t, 2, records[1].Turn)
}

func TestRestoreIntentLog(t *testing.T) {
	l := restoreIntentLog(4, []IntentRecord{
		{Intent: "question", State: "pitch", Turn: 2},
		{Intent: "objection_price", State: "pitch", Turn: 3},
		{Intent: "objection_price", State: "pitch", Turn: 4, Category: "objection"},
	})

	require.Equal(t, 4, l.TurnNumber())
	require.Equal(t, 2, l.ObjectionConsecutive())
	require.Equal(t, 2, l.ObjectionTotal())
	require.Equal(t, 1, l.CategoryTotal("question"))
	require.Equal(t, "objection_price", l.PrevIntent())
}

func TestCategory(t *testing.T) {
	cases := []struct {
		intent string
		want   string
	}{
		{"objection_price", "objection"},
		{"objection_trust", "objection"},
		{"price_question", "price"},
		{"discount_request", "price"},
		{"payment_terms_question", "price"},
		{"price_comparison", "price"},
		{"budget_concern", "price"},
		{"question", "question"},
		{"fact_question", "question"},
		{"greeting", "social"},
		{"goodbye", "social"},
		{"smalltalk", "social"},
		{"go_back", "navigation"},
		{"provide_info", "general"},
		{"", "general"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Category(c.intent), "intent %q", c.intent)
	}
}

package state

// IntentRecord is one observed intent, kept for persistence and replay.
type IntentRecord struct {
	Intent   string `json:"intent"`
	State    string `json:"state,omitempty"`
	Turn     int    `json:"turn"`
	Category string `json:"category,omitempty"`
}

// IntentLog is the in-memory Tracker implementation. Streaks follow the
// category of the most recent record: recording a new category resets the
// previous one.
type IntentLog struct {
	turn      int
	records   []IntentRecord
	totals    map[string]int
	catTotals map[string]int
	streakCat string
	streak    int
}

// NewIntentLog builds an empty tracker positioned before the first turn.
func NewIntentLog() *IntentLog {
	return &IntentLog{
		totals:    make(map[string]int),
		catTotals: make(map[string]int),
	}
}

func restoreIntentLog(turn int, records []IntentRecord) *IntentLog {
	l := NewIntentLog()
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = Category(r.Intent)
		}
		l.records = append(l.records, IntentRecord{
			Intent:   r.Intent,
			State:    r.State,
			Turn:     r.Turn,
			Category: cat,
		})
		l.totals[r.Intent]++
		l.catTotals[cat]++
		if cat == l.streakCat {
			l.streak++
		} else {
			l.streakCat = cat
			l.streak = 1
		}
	}
	l.turn = turn
	return l
}

// TurnNumber implements Tracker.
func (l *IntentLog) TurnNumber() int { return l.turn }

// PrevIntent implements Tracker.
func (l *IntentLog) PrevIntent() string {
	if len(l.records) == 0 {
		return ""
	}
	return l.records[len(l.records)-1].Intent
}

// Record implements Tracker.
func (l *IntentLog) Record(intent, state string) {
	cat := Category(intent)
	l.records = append(l.records, IntentRecord{
		Intent:   intent,
		State:    state,
		Turn:     l.turn,
		Category: cat,
	})
	l.totals[intent]++
	l.catTotals[cat]++
	if cat == l.streakCat {
		l.streak++
	} else {
		l.streakCat = cat
		l.streak = 1
	}
}

// AdvanceTurn implements Tracker.
func (l *IntentLog) AdvanceTurn() { l.turn++ }

// ObjectionConsecutive implements Tracker.
func (l *IntentLog) ObjectionConsecutive() int { return l.CategoryStreak("objection") }

// ObjectionTotal implements Tracker.
func (l *IntentLog) ObjectionTotal() int { return l.catTotals["objection"] }

// TotalCount implements Tracker.
func (l *IntentLog) TotalCount(intent string) int { return l.totals[intent] }

// CategoryTotal implements Tracker.
func (l *IntentLog) CategoryTotal(cat string) int { return l.catTotals[cat] }

// CategoryStreak implements Tracker.
func (l *IntentLog) CategoryStreak(cat string) int {
	if cat != l.streakCat {
		return 0
	}
	return l.streak
}

// IntentsByCategory implements Tracker. Intents come back in first-seen order.
func (l *IntentLog) IntentsByCategory(cat string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range l.records {
		if r.Category != cat || seen[r.Intent] {
			continue
		}
		seen[r.Intent] = true
		out = append(out, r.Intent)
	}
	return out
}

// RecentIntents implements Tracker.
func (l *IntentLog) RecentIntents(limit int) []string {
	if limit <= 0 || len(l.records) == 0 {
		return nil
	}
	start := len(l.records) - limit
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(l.records)-start)
	for _, r := range l.records[start:] {
		out = append(out, r.Intent)
	}
	return out
}

// Records returns a copy of the full record list, oldest first.
func (l *IntentLog) Records() []IntentRecord {
	out := make([]IntentRecord, len(l.records))
	copy(out, l.records)
	return out
}

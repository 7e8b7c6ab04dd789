// Package envelope carries the behavioral-signal bundle computed upstream of
// the engine: engagement and momentum estimates, stall counters and secondary
// classification artifacts. The blackboard freezes one envelope per turn.
package envelope

// Option is one disambiguation choice offered to the user.
type Option struct {
	// Index is the 1-based position shown to the user.
	Index int `json:"index"`
	// Label is the user-facing text of the option.
	Label string `json:"label"`
	// Intent is the intent selecting this option maps to, if any.
	Intent string `json:"intent,omitempty"`
	// Target is the state selecting this option leads to, if any.
	Target string `json:"target,omitempty"`
}

// Signal is one secondary classification artifact detected in the message.
type Signal struct {
	// Intent is the detected secondary intent.
	Intent string `json:"intent"`
	// Confidence is the detector's confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// Fragment is the message span that triggered the detection.
	Fragment string `json:"fragment,omitempty"`
}

// Envelope bundles the behavioral signals for one turn. All fields are
// optional; the zero envelope is a valid "no signals" input.
type Envelope struct {
	// Engagement estimates how engaged the user is, in [0, 1].
	Engagement float64
	// Momentum estimates conversation progress, negative when regressing.
	Momentum float64
	// ConsecutiveSameState counts turns spent in the current state, this one
	// included.
	ConsecutiveSameState int
	// UnclearStreak counts consecutive unclear classifications.
	UnclearStreak int
	// SecondarySignals lists secondary intents detected in the message.
	SecondarySignals []Signal
	// DisambiguationOptions are the choices currently offered, when the dialog
	// is disambiguating.
	DisambiguationOptions []Option
	// DisambiguationQuestion is the clarification question on offer.
	DisambiguationQuestion string
	// ExpectsDataType names the data type the last bot prompt asked for.
	ExpectsDataType string
	// LastBotMessage is the previous assistant utterance.
	LastBotMessage string
	// HighValueLead marks dialogs flagged by lead scoring.
	HighValueLead bool
	// ComplexQuestion marks turns whose message parses as a complex question.
	ComplexQuestion bool
	// Metadata carries additional artifacts keyed by producer.
	Metadata map[string]any
}

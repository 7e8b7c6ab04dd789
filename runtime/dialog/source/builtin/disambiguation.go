package builtin

import (
	"context"

	"goa.design/parley/runtime/dialog/blackboard"
	"goa.design/parley/runtime/dialog/proposal"
)

// DisambiguationIntent marks turns whose classification needs a user choice.
const DisambiguationIntent = "disambiguation_needed"

// Disambiguation proposes a clarification question, carrying the offered
// options so the response layer can render them.
type Disambiguation struct{}

// NewDisambiguation returns the disambiguation source.
func NewDisambiguation() *Disambiguation { return &Disambiguation{} }

// Name implements source.Source.
func (d *Disambiguation) Name() string { return NameDisambiguation }

// ShouldContribute fires on the disambiguation intent.
func (d *Disambiguation) ShouldContribute(snap *blackboard.Snapshot) bool {
	return snap.Intent() == DisambiguationIntent
}

// Contribute proposes ask_clarification with the envelope's options.
func (d *Disambiguation) Contribute(_ context.Context, bb *blackboard.Blackboard) error {
	snap, err := bb.Context()
	if err != nil {
		return err
	}
	md := map[string]any{}
	if env := snap.Envelope(); env != nil {
		if len(env.DisambiguationOptions) > 0 {
			md[MetaOptions] = env.DisambiguationOptions
		}
		if env.DisambiguationQuestion != "" {
			md[MetaQuestion] = env.DisambiguationQuestion
		}
	}
	p := proposal.NewAction(ActionAskClarification, proposal.High, false, "disambiguation_needed", d.Name()).
		WithMetadata(md)
	return bb.ProposeAction(p)
}

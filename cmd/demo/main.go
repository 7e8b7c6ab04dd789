// Command demo runs a scripted SPIN selling dialog through the decision
// pipeline: classify, refine, propose, resolve, commit. It prints the decision
// committed for each turn along with the audit trail recorded from the event
// bus.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"goa.design/parley/runtime/dialog/conditions"
	"goa.design/parley/runtime/dialog/engine"
	"goa.design/parley/runtime/dialog/events"
	"goa.design/parley/runtime/dialog/flow"
	"goa.design/parley/runtime/dialog/refine"
	"goa.design/parley/runtime/dialog/source"
	"goa.design/parley/runtime/dialog/source/builtin"
	"goa.design/parley/runtime/dialog/state"
	"goa.design/parley/runtime/dialog/telemetry"
)

//go:embed flow.yaml
var flowYAML []byte

// scriptedTurn is one user utterance with its upstream classification.
type scriptedTurn struct {
	message    string
	intent     string
	confidence float64
	extracted  map[string]any
}

func script() []scriptedTurn {
	return []scriptedTurn{
		{message: "Hi there!", intent: "greeting", confidence: 0.95},
		{message: "We're a 40 person logistics company.", intent: "provide_info", confidence: 0.85,
			extracted: map[string]any{"company_size": 40, "industry": "logistics"}},
		{message: "Scheduling deliveries eats half a day every week.", intent: "provide_info", confidence: 0.8,
			extracted: map[string]any{"pain_point": "manual delivery scheduling"}},
		{message: "How much does it cost?", intent: "price_question", confidence: 0.9},
		{message: "yeah", intent: "unclear", confidence: 0.3},
	}
}

func main() {
	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	if os.Getenv("DEBUG") != "" {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "demo failed"})
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	def, err := flow.Parse(flowYAML)
	if err != nil {
		return err
	}

	mach, err := state.NewMachine(state.MachineOptions{
		Flow:  def,
		Start: "greeting",
	})
	if err != nil {
		return err
	}

	conds := conditions.NewRegistry()
	reg := source.NewRegistry()
	if err := builtin.RegisterCatalog(reg, builtin.CatalogOptions{Conditions: conds}); err != nil {
		return err
	}
	reg.Freeze()
	sources, err := reg.CreateSources(def.Constants(), nil)
	if err != nil {
		return err
	}

	bus := events.NewBus(events.Options{Logger: telemetry.NewClueLogger()})
	defer func() { _ = bus.Stop(ctx) }()

	dialogID := uuid.NewString()
	orch, err := engine.New(engine.Options{
		Machine:    mach,
		Flow:       def,
		Sources:    sources,
		Bus:        bus,
		Conditions: conds,
		DialogID:   dialogID,
		Log:        telemetry.NewClueLogger(),
	})
	if err != nil {
		return err
	}

	chain := refine.NewDefaultChain(
		refine.ChainOptions{Log: telemetry.NewClueLogger()},
		refine.CatalogOptions{},
	)

	lastAction := ""
	for i, turn := range script() {
		rc := &refine.Context{
			Message:       turn.message,
			Intent:        turn.intent,
			Confidence:    turn.confidence,
			State:         mach.State(),
			Phase:         mach.CurrentPhase(),
			LastAction:    lastAction,
			ExtractedData: turn.extracted,
		}
		refined := chain.Run(ctx, rc)
		if refined.Refined {
			log.Print(ctx, log.KV{K: "msg", V: "classification refined"},
				log.KV{K: "from", V: refined.OriginalIntent},
				log.KV{K: "to", V: refined.Intent},
				log.KV{K: "confidence", V: fmt.Sprintf("%.2f", refined.Confidence)})
		}

		d := orch.ProcessTurn(ctx, engine.TurnInput{
			Intent:      refined.Intent,
			Extracted:   turn.extracted,
			UserMessage: turn.message,
		})
		lastAction = d.Action

		fmt.Printf("turn %d  user=%q\n", i+1, turn.message)
		fmt.Printf("        intent=%s action=%s state=%s phase=%s\n",
			refined.Intent, d.Action, d.NextState, d.Phase)
		if len(d.MissingData) > 0 {
			fmt.Printf("        missing=%v\n", d.MissingData)
		}
		if d.Final {
			fmt.Println("        dialog reached a final state")
			break
		}
	}

	fmt.Println("\ncommitted decisions:")
	for _, e := range bus.History(events.DecisionCommitted, 0) {
		fmt.Printf("  turn %d: %v -> %v (%v)\n",
			e.TurnNumber, e.Data["prev_state"], e.Data["next_state"], e.Data["action"])
	}
	return nil
}

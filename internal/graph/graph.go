package graph

import (
	"context"
	"time"

	"minerva/internal/agents"
	"minerva/internal/metrics"
	"minerva/internal/tools"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Stage names, shared with the progress event schema.
const (
	StageAnalysts         = "analysts"
	StageInvestmentDebate = "investment_debate"
	StageResearchManager  = "research_manager"
	StageTrader           = "trader"
	StageRiskDebate       = "risk_debate"
	StageRiskManager      = "risk_manager"
	StageFinalizing       = "finalizing"
)

// Runner executes one persona conversation. Satisfied by *agents.Runner.
type Runner interface {
	Run(ctx context.Context, persona agents.Persona, pc agents.PromptContext, model string) (*agents.Result, error)
}

// Observer is notified when a stage starts. iteration counts debate rounds,
// starting at 1; it is 0 for non-looping stages.
type Observer func(stage string, iteration int)

// Config fixes the shape of one graph execution.
type Config struct {
	Analysts       []string
	DebateRounds   int
	RiskRounds     int
	RecursionLimit int    // total persona invocations allowed
	Lessons        string // past-decision reflections injected into judge prompts
}

// Graph runs the analysis pipeline: analysts, investment debate, research
// manager, trader, risk debate, risk manager, finalize. Stages execute
// sequentially and communicate only through state deltas.
type Graph struct {
	runner Runner
	cfg    Config
	steps  int
	log    *logger.Logger
}

// New creates a graph for one run.
func New(runner Runner, cfg Config) *Graph {
	if cfg.DebateRounds <= 0 {
		cfg.DebateRounds = 1
	}
	if cfg.RiskRounds <= 0 {
		cfg.RiskRounds = 1
	}
	if len(cfg.Analysts) == 0 {
		cfg.Analysts = agents.AllAnalysts()
	}
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = len(cfg.Analysts) + 3*cfg.DebateRounds + 3*cfg.RiskRounds + 8
	}

	return &Graph{
		runner: runner,
		cfg:    cfg,
		log:    logger.Get().With("component", "stage_graph"),
	}
}

// Execute drives the full pipeline over the given state. observe fires at
// every stage entry; pass nil to skip notifications.
func (g *Graph) Execute(ctx context.Context, state *State, observe Observer) error {
	if observe == nil {
		observe = func(string, int) {}
	}

	observe(StageAnalysts, 0)
	if err := g.runAnalysts(ctx, state); err != nil {
		return err
	}

	if err := g.runInvestmentDebate(ctx, state, observe); err != nil {
		return err
	}

	observe(StageResearchManager, 0)
	if err := g.runJudge(ctx, state, agents.ResearchManager(), agents.ReportInvestmentPlan, true); err != nil {
		return err
	}

	observe(StageTrader, 0)
	if err := g.runJudge(ctx, state, agents.Trader(), agents.ReportTraderPlan, false); err != nil {
		return err
	}

	if err := g.runRiskDebate(ctx, state, observe); err != nil {
		return err
	}

	observe(StageRiskManager, 0)
	if err := g.runRiskManager(ctx, state); err != nil {
		return err
	}

	observe(StageFinalizing, 0)
	g.finalize(state)
	return nil
}

func (g *Graph) runAnalysts(ctx context.Context, state *State) error {
	reportKeys := map[string]string{
		"market_analyst":       agents.ReportMarket,
		"news_analyst":         agents.ReportNews,
		"social_analyst":       agents.ReportSentiment,
		"fundamentals_analyst": agents.ReportFundamentals,
	}

	for _, persona := range agents.AnalystPersonas(g.cfg.Analysts) {
		result, err := g.invoke(ctx, state, persona)
		if err != nil {
			return err
		}
		state.Apply(Delta{
			Reports:         map[string]string{reportKeys[persona.Name]: result.Output},
			ConversationLog: logEntryFor(persona, state),
			Messages:        result.Messages,
		})
	}
	return nil
}

func (g *Graph) runInvestmentDebate(ctx context.Context, state *State, observe Observer) error {
	for round := 1; round <= g.cfg.DebateRounds; round++ {
		observe(StageInvestmentDebate, round)

		bull, err := g.invoke(ctx, state, agents.BullResearcher())
		if err != nil {
			return err
		}
		investment := state.Investment
		investment.BullHistory += bull.Output + "\n"
		investment.History += "Bull: " + bull.Output + "\n"
		investment.CurrentResponse = "Bull: " + bull.Output
		investment.Count++
		state.Apply(Delta{
			Investment:      &investment,
			ConversationLog: logEntryFor(agents.BullResearcher(), state),
			Messages:        bull.Messages,
		})

		bear, err := g.invoke(ctx, state, agents.BearResearcher())
		if err != nil {
			return err
		}
		investment = state.Investment
		investment.BearHistory += bear.Output + "\n"
		investment.History += "Bear: " + bear.Output + "\n"
		investment.CurrentResponse = "Bear: " + bear.Output
		investment.Count++
		state.Apply(Delta{
			Investment:      &investment,
			ConversationLog: logEntryFor(agents.BearResearcher(), state),
			Messages:        bear.Messages,
		})
	}
	return nil
}

// runJudge executes a single-shot persona whose output lands in one report.
func (g *Graph) runJudge(ctx context.Context, state *State, persona agents.Persona, reportKey string, isInvestmentJudge bool) error {
	result, err := g.invoke(ctx, state, persona)
	if err != nil {
		return err
	}

	delta := Delta{
		Reports:         map[string]string{reportKey: result.Output},
		ConversationLog: logEntryFor(persona, state),
		Messages:        result.Messages,
	}
	if isInvestmentJudge {
		investment := state.Investment
		investment.JudgeDecision = result.Output
		delta.Investment = &investment
	}
	state.Apply(delta)
	return nil
}

func (g *Graph) runRiskDebate(ctx context.Context, state *State, observe Observer) error {
	speakers := []struct {
		persona agents.Persona
		apply   func(r *agents.RiskDebateState, output string)
	}{
		{agents.RiskyDebater(), func(r *agents.RiskDebateState, out string) {
			r.RiskyHistory += out + "\n"
			r.History += "Risky: " + out + "\n"
			r.CurrentRiskyResponse = out
			r.LatestSpeaker = "risky"
		}},
		{agents.SafeDebater(), func(r *agents.RiskDebateState, out string) {
			r.SafeHistory += out + "\n"
			r.History += "Safe: " + out + "\n"
			r.CurrentSafeResponse = out
			r.LatestSpeaker = "safe"
		}},
		{agents.NeutralDebater(), func(r *agents.RiskDebateState, out string) {
			r.NeutralHistory += out + "\n"
			r.History += "Neutral: " + out + "\n"
			r.CurrentNeutralResponse = out
			r.LatestSpeaker = "neutral"
		}},
	}

	for round := 1; round <= g.cfg.RiskRounds; round++ {
		observe(StageRiskDebate, round)

		for _, speaker := range speakers {
			result, err := g.invoke(ctx, state, speaker.persona)
			if err != nil {
				return err
			}
			risk := state.Risk
			speaker.apply(&risk, result.Output)
			risk.Count++
			state.Apply(Delta{
				Risk:            &risk,
				ConversationLog: logEntryFor(speaker.persona, state),
				Messages:        result.Messages,
			})
		}
	}
	return nil
}

func (g *Graph) runRiskManager(ctx context.Context, state *State) error {
	persona := agents.RiskManager()
	result, err := g.invoke(ctx, state, persona)
	if err != nil {
		return err
	}

	risk := state.Risk
	risk.JudgeDecision = result.Output
	state.Apply(Delta{
		Reports:         map[string]string{agents.ReportFinalDecision: result.Output},
		Risk:            &risk,
		ConversationLog: logEntryFor(persona, state),
		Messages:        result.Messages,
	})
	return nil
}

func (g *Graph) finalize(state *State) {
	// Only the risk manager's verdict counts. A missing proposal phrase
	// means HOLD and the ambiguous flag set, even when earlier stages
	// committed to a direction.
	decision, ambiguous := ExtractDecision(state.Reports[agents.ReportFinalDecision])
	state.Apply(Delta{Decision: decision, Ambiguous: &ambiguous})
}

// invoke runs one persona under the graph-level step cap.
func (g *Graph) invoke(ctx context.Context, state *State, persona agents.Persona) (*agents.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrRunCancelled, "before %s: %v", persona.Name, err)
	}
	if g.steps >= g.cfg.RecursionLimit {
		return nil, errors.Wrapf(errors.ErrGraph, "recursion limit %d reached at %s", g.cfg.RecursionLimit, persona.Name)
	}
	g.steps++

	personaCtx := tools.NewContext(ctx, tools.Metadata{
		RunID:   state.RunID,
		Symbol:  state.Symbol,
		Persona: persona.Name,
	})

	start := time.Now()
	result, err := g.runner.Run(personaCtx, persona, state.PromptContext(g.cfg.Lessons), state.Model)
	metrics.StageDuration.WithLabelValues(persona.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.Wrapf(err, "stage persona %s", persona.Name)
	}

	g.log.Infow("Persona completed",
		"run_id", state.RunID, "persona", persona.Name,
		"turns", result.Turns, "tool_calls", result.ToolCalls, "fallback", result.Fallback)

	return result, nil
}

func logEntryFor(persona agents.Persona, state *State) []LogEntry {
	pc := state.PromptContext("")
	return []LogEntry{{
		RoleLabel: persona.Name,
		System:    persona.System(pc),
		User:      persona.User(pc),
	}}
}

// Stages lists the top-level stage sequence for documentation and tests.
func Stages() []string {
	return []string{
		StageAnalysts, StageInvestmentDebate, StageResearchManager,
		StageTrader, StageRiskDebate, StageRiskManager, StageFinalizing,
	}
}

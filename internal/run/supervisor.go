package run

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"minerva/internal/adapters/ai"
	"minerva/internal/adapters/config"
	"minerva/internal/agents"
	"minerva/internal/artifacts"
	"minerva/internal/dataflows"
	"minerva/internal/domain/decision"
	"minerva/internal/events"
	"minerva/internal/graph"
	"minerva/internal/metrics"
	"minerva/internal/tools"
	"minerva/internal/tools/middleware"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Deps are the collaborators a supervisor drives.
type Deps struct {
	Provider  ai.ChatProvider
	Registry  *tools.Registry
	Adapter   *dataflows.Adapter
	Bus       *events.Bus
	Decisions decision.Repository
	Runs      decision.RunRepository
	Artifacts *artifacts.Writer
	Recorder  *middleware.Recorder
}

// Supervisor accepts run requests, launches the stage graph in the
// background, streams progress events, and persists the final decision.
type Supervisor struct {
	cfg       *config.Config
	provider  ai.ChatProvider
	registry  *tools.Registry
	adapter   *dataflows.Adapter
	bus       *events.Bus
	decisions decision.Repository
	runs      decision.RunRepository
	artifacts *artifacts.Writer
	recorder  *middleware.Recorder
	log       *logger.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a run supervisor.
func NewSupervisor(cfg *config.Config, deps Deps) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		provider:  deps.Provider,
		registry:  deps.Registry,
		adapter:   deps.Adapter,
		bus:       deps.Bus,
		decisions: deps.Decisions,
		runs:      deps.Runs,
		artifacts: deps.Artifacts,
		recorder:  deps.Recorder,
		log:       logger.Get().With("component", "run_supervisor"),
		active:    make(map[string]context.CancelFunc),
	}
}

// StartRun validates and launches one analysis run. The queued event is
// published before return, so an immediate subscribe never misses it.
func (s *Supervisor) StartRun(_ context.Context, req Request) (string, error) {
	req.Normalize(s.cfg)
	if err := req.Validate(s.cfg); err != nil {
		return "", err
	}

	mode := "live"
	if req.UseMockData || s.cfg.Orchestrator.UseMockMode {
		mode = "mock"
	}

	if err := s.bus.Register(req.RunID); err != nil {
		if errors.Is(err, errors.ErrAlreadyExists) {
			return "", errors.NewValidationError("runId", fmt.Sprintf("run %s is already active", req.RunID))
		}
		return "", err
	}

	s.publish(req, mode, events.StageQueued, 0, nil)
	metrics.RunsStarted.WithLabelValues(req.ModelID, mode).Inc()

	s.log.Infow("run accepted",
		"run_id", req.RunID,
		"symbol", req.Symbol,
		"model", req.ModelID,
		"analysts", req.Analysts,
		"mode", mode,
	)

	s.wg.Add(1)
	go s.execute(req, mode)

	return req.RunID, nil
}

// Cancel aborts an in-flight run. Returns false when the run is unknown
// or already finished.
func (s *Supervisor) Cancel(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels all in-flight runs and waits for them to drain, or for
// the context to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) execute(req Request, mode string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Orchestrator.RunWallClock)
	s.mu.Lock()
	s.active[req.RunID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, req.RunID)
		s.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		state *graph.State
		err   error
	)
	if mode == "mock" {
		state = s.executeMock(req)
	} else {
		state, err = s.executeLive(ctx, req, mode)
	}
	if err != nil {
		s.fail(req, mode, err)
		return
	}

	s.writeArtifacts(req, state)

	d := s.buildDecision(req, state)
	inserted, err := s.decisions.Insert(ctx, d)
	if err != nil {
		s.fail(req, mode, errors.Wrapf(errors.ErrPersistence, "insert decision: %v", err))
		return
	}
	if !inserted {
		s.log.Infow("decision already persisted, keeping existing row", "run_id", req.RunID)
	}

	if err := s.upsertRunRecord(ctx, req, d); err != nil {
		s.log.Warnw("run metadata upsert failed", "run_id", req.RunID, "error", err)
	}

	s.publish(req, mode, events.StageDone, 0, map[string]interface{}{
		"decision":  d.DecisionToken,
		"ambiguous": d.Ambiguous,
		"duration":  time.Since(start).String(),
	})
	metrics.RunsCompleted.WithLabelValues("done", d.DecisionToken).Inc()

	s.log.Infow("run completed",
		"run_id", req.RunID,
		"decision", d.DecisionToken,
		"ambiguous", d.Ambiguous,
		"duration", time.Since(start),
	)
}

func (s *Supervisor) executeLive(ctx context.Context, req Request, mode string) (*graph.State, error) {
	state := graph.NewState(req.RunID, req.Symbol, req.TradeDate, req.ModelID)
	state.Baseline = s.seedBaseline(ctx, req)

	runner := agents.NewRunner(s.provider, s.registry, agents.Limits{
		MaxRecursion: s.cfg.Orchestrator.MaxRecursionLimit,
		MaxToolSteps: s.cfg.Orchestrator.MaxToolSteps,
		PerCall:      s.cfg.AI.PerCallTimeout,
		Budget:       s.cfg.Orchestrator.PersonaBudget,
	})

	g := graph.New(runner, graph.Config{
		Analysts:       req.Analysts,
		DebateRounds:   req.DebateRounds,
		RiskRounds:     req.RiskRounds,
		RecursionLimit: s.cfg.Orchestrator.GraphRecursionLimit(len(req.Analysts)),
		Lessons:        s.recallLessons(ctx, req.Symbol),
	})

	observe := func(stage string, iteration int) {
		s.publish(req, mode, stage, iteration, nil)
	}
	if err := g.Execute(ctx, state, observe); err != nil {
		return nil, err
	}
	return state, nil
}

// executeMock synthesizes a deterministic decision from canned reports,
// still walking the full event sequence.
func (s *Supervisor) executeMock(req Request) *graph.State {
	state := graph.NewState(req.RunID, req.Symbol, req.TradeDate, req.ModelID)
	token := mockToken(req.Symbol)

	reportKeys := map[string]string{
		agents.AnalystMarket:      agents.ReportMarket,
		agents.AnalystSocial:      agents.ReportSentiment,
		agents.AnalystNews:        agents.ReportNews,
		agents.AnalystFundamental: agents.ReportFundamentals,
	}

	s.publish(req, "mock", events.StageAnalysts, 0, nil)
	for _, analyst := range req.Analysts {
		state.Reports[reportKeys[analyst]] = fmt.Sprintf("Mock %s report for %s as of %s.", analyst, req.Symbol, req.TradeDate)
	}

	s.publish(req, "mock", events.StageInvestmentDebate, 1, nil)
	state.Investment = agents.DebateState{
		BullHistory: fmt.Sprintf("Bull: mock bullish case for %s.", req.Symbol),
		BearHistory: fmt.Sprintf("Bear: mock bearish case for %s.", req.Symbol),
		History:     fmt.Sprintf("Bull: mock bullish case for %s.\nBear: mock bearish case for %s.", req.Symbol, req.Symbol),
		Count:       2,
	}

	s.publish(req, "mock", events.StageResearchManager, 0, nil)
	plan := fmt.Sprintf("Mock investment plan for %s: %s.", req.Symbol, token)
	state.Reports[agents.ReportInvestmentPlan] = plan
	state.Investment.JudgeDecision = plan

	s.publish(req, "mock", events.StageTrader, 0, nil)
	state.Reports[agents.ReportTraderPlan] = fmt.Sprintf(
		"Mock trader plan for %s.\n\n%s%s**", req.Symbol, agents.ProposalPrefix, token)

	s.publish(req, "mock", events.StageRiskDebate, 1, nil)
	state.Risk = agents.RiskDebateState{
		History:       fmt.Sprintf("Risky: mock aggressive view on %s.\nSafe: mock conservative view.\nNeutral: mock balanced view.", req.Symbol),
		Count:         3,
		LatestSpeaker: "neutral",
	}

	s.publish(req, "mock", events.StageRiskManager, 0, nil)
	verdict := fmt.Sprintf("Mock risk verdict for %s.\n\n%s%s**", req.Symbol, agents.ProposalPrefix, token)
	state.Reports[agents.ReportFinalDecision] = verdict
	state.Risk.JudgeDecision = verdict

	s.publish(req, "mock", events.StageFinalizing, 0, nil)
	state.Decision = token
	state.Ambiguous = false

	return state
}

// mockToken maps a symbol onto a stable decision so mock runs are
// reproducible without being constant.
func mockToken(symbol string) string {
	sum := 0
	for _, ch := range symbol {
		sum += int(ch)
	}
	switch sum % 3 {
	case 0:
		return graph.DecisionBuy
	case 1:
		return graph.DecisionHold
	}
	return graph.DecisionSell
}

// seedBaseline pre-fetches baseline context so analysts start with data in
// hand. Failures leave the key empty; the analyst falls back to its tools.
func (s *Supervisor) seedBaseline(ctx context.Context, req Request) map[string]string {
	seeds := []struct {
		key     string
		request dataflows.Request
	}{
		{agents.ContextPriceHistory, dataflows.Request{Type: dataflows.TypeQuote, Symbol: req.Symbol}},
		{agents.ContextTechnicalReport, dataflows.Request{Type: dataflows.TypeMetrics, Symbol: req.Symbol}},
		{agents.ContextCompanyNews, dataflows.Request{Type: dataflows.TypeCompanyNews, Symbol: req.Symbol, Window: 7}},
		{agents.ContextRedditSummary, dataflows.Request{Type: dataflows.TypeReddit, Symbol: req.Symbol, Qualifier: "stocks,investing"}},
		{agents.ContextFundamentalsView, dataflows.Request{Type: dataflows.TypeProfile, Symbol: req.Symbol}},
	}

	baseline := make(map[string]string)
	for _, seed := range seeds {
		result, err := s.adapter.Fetch(ctx, seed.request, dataflows.WithStaleServe())
		if err != nil {
			s.log.Debugw("baseline context unavailable",
				"run_id", req.RunID, "key", seed.key, "error", err)
			continue
		}
		text, err := dataflows.Render(seed.request.Type, result.Data)
		if err != nil {
			s.log.Warnw("baseline render failed", "run_id", req.RunID, "key", seed.key, "error", err)
			continue
		}
		baseline[seed.key] = text
	}
	return baseline
}

const maxLessonLength = 400

// recallLessons surfaces up to two prior decisions for the symbol so the
// research manager can learn from past calls.
func (s *Supervisor) recallLessons(ctx context.Context, symbol string) string {
	prior, err := s.decisions.ListBySymbol(ctx, symbol, 2, time.Time{})
	if err != nil || len(prior) == 0 {
		return ""
	}

	var b strings.Builder
	for _, d := range prior {
		plan := d.InvestmentPlan
		if len(plan) > maxLessonLength {
			// The cut can land mid-rune, drop the partial bytes.
			plan = strings.ToValidUTF8(plan[:maxLessonLength], "") + "..."
		}
		fmt.Fprintf(&b, "On %s the decision was %s. Plan: %s\n", d.TradeDate, d.DecisionToken, plan)
	}
	return b.String()
}

// decisionPayload is the full run detail stored alongside the decision row.
type decisionPayload struct {
	Reports    map[string]string      `json:"reports"`
	Investment agents.DebateState     `json:"investmentDebate"`
	Risk       agents.RiskDebateState `json:"riskDebate"`
}

func (s *Supervisor) buildDecision(req Request, state *graph.State) *decision.Decision {
	payload, err := json.Marshal(decisionPayload{
		Reports:    state.Reports,
		Investment: state.Investment,
		Risk:       state.Risk,
	})
	if err != nil {
		s.log.Warnw("decision payload marshal failed", "run_id", req.RunID, "error", err)
		payload = json.RawMessage(`{}`)
	}
	analysts, err := json.Marshal(req.Analysts)
	if err != nil {
		analysts = json.RawMessage(`[]`)
	}

	return &decision.Decision{
		RunID:               req.RunID,
		Symbol:              req.Symbol,
		TradeDate:           req.TradeDate,
		DecisionToken:       state.Decision,
		Ambiguous:           state.Ambiguous,
		InvestmentPlan:      state.Reports[agents.ReportInvestmentPlan],
		TraderPlan:          state.Reports[agents.ReportTraderPlan],
		RiskJudge:           state.Reports[agents.ReportFinalDecision],
		Payload:             payload,
		RawText:             state.Reports[agents.ReportFinalDecision],
		ModelID:             req.ModelID,
		Analysts:            analysts,
		PromptHash:          PromptHash(req.Analysts, s.registry),
		OrchestratorVersion: OrchestratorVersion,
		CreatedAt:           time.Now().UTC(),
	}
}

func (s *Supervisor) upsertRunRecord(ctx context.Context, req Request, d *decision.Decision) error {
	return s.runs.Upsert(ctx, &decision.RunRecord{
		RunID:               req.RunID,
		Symbol:              req.Symbol,
		TradeDate:           req.TradeDate,
		Model:               req.ModelID,
		Analysts:            d.Analysts,
		PromptHash:          d.PromptHash,
		OrchestratorVersion: d.OrchestratorVersion,
		LogsPath:            s.artifacts.RunDir(req.RunID),
	})
}

// writeArtifacts dumps the per-stage reports, the conversation log, and the
// tool audit trail. Every failure here is swallowed by the writer.
func (s *Supervisor) writeArtifacts(req Request, state *graph.State) {
	var analystReports strings.Builder
	for _, key := range []string{agents.ReportMarket, agents.ReportSentiment, agents.ReportNews, agents.ReportFundamentals} {
		if report, ok := state.Reports[key]; ok {
			fmt.Fprintf(&analystReports, "## %s\n\n%s\n\n", key, report)
		}
	}
	s.artifacts.Append(req.RunID, "analysts", analystReports.String())
	s.artifacts.Append(req.RunID, "investment_debate", state.Investment.History)
	s.artifacts.Append(req.RunID, "research_manager", state.Reports[agents.ReportInvestmentPlan])
	s.artifacts.Append(req.RunID, "trader", state.Reports[agents.ReportTraderPlan])
	s.artifacts.Append(req.RunID, "risk_debate", state.Risk.History)
	s.artifacts.Append(req.RunID, "risk_manager", state.Reports[agents.ReportFinalDecision])

	if log, err := json.MarshalIndent(state.ConversationLog, "", "  "); err == nil {
		s.artifacts.Append(req.RunID, "conversation", string(log))
	}
	if s.recorder != nil {
		if calls, err := json.MarshalIndent(s.recorder.RecordsForRun(req.RunID), "", "  "); err == nil {
			s.artifacts.Append(req.RunID, "tool_calls", string(calls))
		}
		s.recorder.Release(req.RunID)
	}

	s.artifacts.Append(req.RunID, "summary", s.runSummary(req, state))
}

func (s *Supervisor) runSummary(req Request, state *graph.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis of %s on %s\n\n", req.Symbol, req.TradeDate)
	fmt.Fprintf(&b, "- Run: %s\n- Model: %s\n- Analysts: %s\n", req.RunID, req.ModelID, strings.Join(req.Analysts, ", "))
	fmt.Fprintf(&b, "- Decision: %s", state.Decision)
	if state.Ambiguous {
		b.WriteString(" (no explicit proposal found, defaulted)")
	}
	b.WriteString("\n")
	return b.String()
}

func (s *Supervisor) fail(req Request, mode string, err error) {
	s.log.Errorw("run failed", "run_id", req.RunID, "error", err)
	s.publish(req, mode, events.StageError, 0, map[string]interface{}{
		"kind":    errors.Kind(err),
		"message": err.Error(),
	})
	metrics.RunsCompleted.WithLabelValues("error", "").Inc()
}

var stageLabels = map[string]string{
	events.StageQueued:           "Run accepted",
	events.StageAnalysts:         "Analyst team gathering data",
	events.StageInvestmentDebate: "Bull and bear researchers debating",
	events.StageResearchManager:  "Research manager weighing the debate",
	events.StageTrader:           "Trader drafting a plan",
	events.StageRiskDebate:       "Risk team debating the plan",
	events.StageRiskManager:      "Risk manager issuing a verdict",
	events.StageFinalizing:       "Extracting the final decision",
	events.StageDone:             "Analysis complete",
	events.StageError:            "Run failed",
}

func (s *Supervisor) publish(req Request, mode, stage string, iteration int, payload map[string]interface{}) {
	event := events.RunEvent{
		RunID:     req.RunID,
		Stage:     stage,
		Label:     stageLabels[stage],
		Iteration: iteration,
		ModelID:   req.ModelID,
		Analysts:  req.Analysts,
		Mode:      mode,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if _, err := s.bus.Publish(req.RunID, event); err != nil {
		s.log.Warnw("event publish failed", "run_id", req.RunID, "stage", stage, "error", err)
	}
}

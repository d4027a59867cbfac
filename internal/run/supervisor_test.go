package run

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/adapters/ai"
	"minerva/internal/adapters/config"
	"minerva/internal/artifacts"
	"minerva/internal/cache"
	"minerva/internal/dataflows"
	"minerva/internal/domain/decision"
	"minerva/internal/events"
	"minerva/internal/tools"
	"minerva/internal/tools/middleware"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

func init() {
	_ = logger.Init("debug", "test")
}

// scriptedProvider answers every chat call with the next canned message.
// When the script runs out it repeats the last entry.
type scriptedProvider struct {
	mu     sync.Mutex
	script []ai.Message
	calls  int
	block  bool // when set, Chat blocks until the context is done
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	return &ai.ChatResponse{
		Choices: []ai.Choice{{Message: p.script[idx]}},
	}, nil
}

type memDecisionRepo struct {
	mu        sync.Mutex
	rows      map[string]*decision.Decision
	insertErr error
}

func newMemDecisionRepo() *memDecisionRepo {
	return &memDecisionRepo{rows: make(map[string]*decision.Decision)}
}

func (r *memDecisionRepo) Insert(_ context.Context, d *decision.Decision) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return false, r.insertErr
	}
	if _, ok := r.rows[d.RunID]; ok {
		return false, nil
	}
	r.rows[d.RunID] = d
	return true, nil
}

func (r *memDecisionRepo) GetByRunID(_ context.Context, runID string) (*decision.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[runID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return d, nil
}

func (r *memDecisionRepo) ListBySymbol(_ context.Context, symbol string, limit int, _ time.Time) ([]*decision.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*decision.Decision
	for _, d := range r.rows {
		if d.Symbol == symbol && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	rows map[string]*decision.RunRecord
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{rows: make(map[string]*decision.RunRecord)}
}

func (r *memRunRepo) Upsert(_ context.Context, record *decision.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[record.RunID] = record
	return nil
}

func (r *memRunRepo) GetByRunID(_ context.Context, runID string) (*decision.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.rows[runID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return record, nil
}

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
}

func (r *memCacheRepo) Get(_ context.Context, key string) (*cache.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return entry, nil
}

func (r *memCacheRepo) Upsert(_ context.Context, entry *cache.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Key] = entry
	return nil
}

func (r *memCacheRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.AI.AllowedModels = []string{"M1", "M2"}
	cfg.AI.DefaultModel = "M1"
	cfg.AI.PerCallTimeout = 5 * time.Second
	cfg.Orchestrator.MaxRecursionLimit = 20
	cfg.Orchestrator.MaxToolSteps = 8
	cfg.Orchestrator.RunWallClock = 30 * time.Second
	cfg.Orchestrator.PersonaBudget = 10 * time.Second
	cfg.Orchestrator.DebateRounds = 1
	cfg.Orchestrator.RiskRounds = 1
	return cfg
}

type testEnv struct {
	supervisor   *Supervisor
	bus          *events.Bus
	decisions    *memDecisionRepo
	runs         *memRunRepo
	recorder     *middleware.Recorder
	artifactsDir string
}

func newTestEnv(t *testing.T, cfg *config.Config, provider ai.ChatProvider) *testEnv {
	t.Helper()

	store, err := cache.NewStore(&memCacheRepo{entries: make(map[string]*cache.Entry)}, 64)
	require.NoError(t, err)
	adapter := dataflows.NewAdapter(store, cache.DefaultPolicy())
	adapter.RegisterVendor(dataflows.NewMockVendor(), dataflows.AllDataTypes()...)

	registry := tools.NewRegistry()
	require.NoError(t, tools.NewCatalog(adapter).RegisterAll(registry))

	recorder := middleware.NewRecorder()
	registry.Use(middleware.AuditMiddleware{Recorder: recorder})

	bus := events.NewBus()
	decisions := newMemDecisionRepo()
	runs := newMemRunRepo()

	artifactsDir := t.TempDir()
	supervisor := NewSupervisor(cfg, Deps{
		Provider:  provider,
		Registry:  registry,
		Adapter:   adapter,
		Bus:       bus,
		Decisions: decisions,
		Runs:      runs,
		Artifacts: artifacts.NewWriter(artifactsDir),
		Recorder:  recorder,
	})

	return &testEnv{
		supervisor:   supervisor,
		bus:          bus,
		decisions:    decisions,
		runs:         runs,
		recorder:     recorder,
		artifactsDir: artifactsDir,
	}
}

// collectEvents subscribes with full replay and drains until a terminal
// event arrives.
func collectEvents(t *testing.T, bus *events.Bus, runID string) []events.RunEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := bus.Subscribe(ctx, runID, -1)
	require.NoError(t, err)
	defer sub.Close()

	var collected []events.RunEvent
	for {
		event, ok := sub.Next(ctx)
		if !ok {
			break
		}
		collected = append(collected, event)
		if events.Terminal(event.Stage) {
			break
		}
	}
	require.NotEmpty(t, collected)
	return collected
}

func stagesOf(collected []events.RunEvent) []string {
	var out []string
	for _, event := range collected {
		if len(out) == 0 || out[len(out)-1] != event.Stage {
			out = append(out, event.Stage)
		}
	}
	return out
}

func TestStartRun_Validation(t *testing.T) {
	env := newTestEnv(t, testConfig(), &scriptedProvider{script: []ai.Message{{Role: ai.RoleAssistant, Content: "ok"}}})

	tests := []struct {
		name    string
		request Request
		field   string
	}{
		{"lowercase symbol", Request{Symbol: "nvda"}, "symbol"},
		{"too long symbol", Request{Symbol: "TOOLONG"}, "symbol"},
		{"unknown model", Request{Symbol: "NVDA", ModelID: "gpt-99"}, "modelId"},
		{"unknown analyst", Request{Symbol: "NVDA", Analysts: []string{"astrologer"}}, "analysts"},
		{"bad trade date", Request{Symbol: "NVDA", TradeDate: "31-12-2025"}, "tradeDate"},
		{"run id too long", Request{Symbol: "NVDA", RunID: strings.Repeat("x", 129)}, "runId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.supervisor.StartRun(context.Background(), tt.request)
			require.Error(t, err)

			var validationErr *errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestStartRun_SingleAnalystHoldDefault(t *testing.T) {
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, Content: "Market report for NVDA"},
	}}
	env := newTestEnv(t, testConfig(), provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		ModelID:  "M1",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	assert.Equal(t, []string{
		"queued", "analysts", "investment_debate", "research_manager",
		"trader", "risk_debate", "risk_manager", "finalizing", "done",
	}, stagesOf(collected))

	terminal := collected[len(collected)-1]
	assert.Equal(t, "done", terminal.Stage)
	assert.Equal(t, 100, terminal.Percent)
	// No proposal phrase anywhere in the transcript, so the decision
	// defaults to HOLD and is flagged ambiguous.
	assert.Equal(t, "HOLD", terminal.Payload["decision"])
	assert.Equal(t, true, terminal.Payload["ambiguous"])

	persisted, err := env.decisions.GetByRunID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "HOLD", persisted.DecisionToken)
	assert.True(t, persisted.Ambiguous)
	assert.Equal(t, "Market report for NVDA", persisted.RiskJudge)
	assert.Equal(t, "M1", persisted.ModelID)
	assert.NotEmpty(t, persisted.PromptHash)
	assert.Equal(t, OrchestratorVersion, persisted.OrchestratorVersion)

	record, err := env.runs.GetByRunID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, persisted.PromptHash, record.PromptHash)
	assert.NotEmpty(t, record.LogsPath)
}

func TestStartRun_ExplicitProposalWins(t *testing.T) {
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, Content: "Report.\n\nFINAL TRANSACTION PROPOSAL: **BUY**"},
	}}
	env := newTestEnv(t, testConfig(), provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "AAPL",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	terminal := collected[len(collected)-1]
	assert.Equal(t, "done", terminal.Stage)
	assert.Equal(t, "BUY", terminal.Payload["decision"])
	assert.Equal(t, false, terminal.Payload["ambiguous"])
}

func TestStartRun_ToolCallAudited(t *testing.T) {
	// First turn requests a statement fetch, every later turn proposes BUY.
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{{
			ID:   "call-1",
			Type: "function",
			Function: ai.FunctionCall{
				Name:      "get_finnhub_balance_sheet",
				Arguments: `{"ticker":"NVDA"}`,
			},
		}}},
		{Role: ai.RoleAssistant, Content: "Report.\n\nFINAL TRANSACTION PROPOSAL: **BUY**"},
	}}
	env := newTestEnv(t, testConfig(), provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		Analysts: []string{"fundamental"},
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	terminal := collected[len(collected)-1]
	assert.Equal(t, "done", terminal.Stage)
	assert.Equal(t, "BUY", terminal.Payload["decision"])

	// The audit trail lands in the tool_calls artifact, and the recorder
	// is drained once the run is persisted.
	raw, err := os.ReadFile(filepath.Join(env.artifactsDir, runID, "tool_calls.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "get_finnhub_balance_sheet")
	assert.Contains(t, string(raw), runID)
	assert.Empty(t, env.recorder.RecordsForRun(runID))
}

func TestStartRun_MockMode(t *testing.T) {
	// Provider must never be called in mock mode.
	env := newTestEnv(t, testConfig(), &scriptedProvider{block: true})

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:      "NVDA",
		UseMockData: true,
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	assert.Equal(t, []string{
		"queued", "analysts", "investment_debate", "research_manager",
		"trader", "risk_debate", "risk_manager", "finalizing", "done",
	}, stagesOf(collected))

	for _, event := range collected {
		assert.Equal(t, "mock", event.Mode)
	}

	persisted, err := env.decisions.GetByRunID(context.Background(), runID)
	require.NoError(t, err)
	assert.Contains(t, []string{"BUY", "HOLD", "SELL"}, persisted.DecisionToken)
	assert.False(t, persisted.Ambiguous)
	assert.Contains(t, persisted.RiskJudge, "FINAL TRANSACTION PROPOSAL: **"+persisted.DecisionToken+"**")

	// Same symbol, fresh run: the mock decision is reproducible.
	secondID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:      "NVDA",
		UseMockData: true,
	})
	require.NoError(t, err)
	collectEvents(t, env.bus, secondID)

	second, err := env.decisions.GetByRunID(context.Background(), secondID)
	require.NoError(t, err)
	assert.Equal(t, persisted.DecisionToken, second.DecisionToken)
}

func TestStartRun_DuplicateActiveRunID(t *testing.T) {
	provider := &scriptedProvider{block: true}
	cfg := testConfig()
	env := newTestEnv(t, cfg, provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		RunID:    "run-dup",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)
	require.Equal(t, "run-dup", runID)

	_, err = env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		RunID:    "run-dup",
		Analysts: []string{"market"},
	})
	require.Error(t, err)

	var validationErr *errors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "runId", validationErr.Field)

	env.supervisor.Cancel(runID)
	collectEvents(t, env.bus, runID)
}

func TestCancel_EmitsErrorEvent(t *testing.T) {
	provider := &scriptedProvider{block: true}
	env := newTestEnv(t, testConfig(), provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)

	// Let the run reach the blocked chat call before cancelling.
	time.Sleep(100 * time.Millisecond)
	require.True(t, env.supervisor.Cancel(runID))

	collected := collectEvents(t, env.bus, runID)
	terminal := collected[len(collected)-1]
	assert.Equal(t, "error", terminal.Stage)
	assert.NotEmpty(t, terminal.Payload["message"])

	// Nothing was persisted for the aborted run.
	_, err = env.decisions.GetByRunID(context.Background(), runID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.False(t, env.supervisor.Cancel("never-started"))
}

func TestStartRun_PersistenceFailure(t *testing.T) {
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, Content: "report"},
	}}
	env := newTestEnv(t, testConfig(), provider)
	env.decisions.insertErr = errors.New("connection refused")

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	terminal := collected[len(collected)-1]
	assert.Equal(t, "error", terminal.Stage)
	assert.Equal(t, "persistence", terminal.Payload["kind"])
}

func TestStartRun_DuplicateInsertStillCompletes(t *testing.T) {
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, Content: "report"},
	}}
	env := newTestEnv(t, testConfig(), provider)

	// A replayed run id: the decision row already exists.
	prior := &decision.Decision{RunID: "run-replay", Symbol: "NVDA", DecisionToken: "BUY"}
	_, err := env.decisions.Insert(context.Background(), prior)
	require.NoError(t, err)

	runID, err := env.supervisor.StartRun(context.Background(), Request{
		Symbol:   "NVDA",
		RunID:    "run-replay",
		Analysts: []string{"market"},
	})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	assert.Equal(t, "done", collected[len(collected)-1].Stage)

	// The original row wins.
	persisted, err := env.decisions.GetByRunID(context.Background(), "run-replay")
	require.NoError(t, err)
	assert.Equal(t, "BUY", persisted.DecisionToken)
}

func TestStartRun_PercentMonotone(t *testing.T) {
	provider := &scriptedProvider{script: []ai.Message{
		{Role: ai.RoleAssistant, Content: "report"},
	}}
	env := newTestEnv(t, testConfig(), provider)

	runID, err := env.supervisor.StartRun(context.Background(), Request{Symbol: "MSFT"})
	require.NoError(t, err)

	collected := collectEvents(t, env.bus, runID)
	last := -1
	for i, event := range collected {
		assert.Equal(t, uint64(i), event.Sequence)
		assert.GreaterOrEqual(t, event.Percent, last)
		last = event.Percent
	}
	assert.Equal(t, 0, collected[0].Percent)
	assert.Equal(t, 100, last)
}

func TestPromptHash_StablePerShape(t *testing.T) {
	env := newTestEnv(t, testConfig(), &scriptedProvider{})
	registry := env.supervisor.registry

	first := PromptHash([]string{"market", "news"}, registry)
	second := PromptHash([]string{"market", "news"}, registry)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	other := PromptHash([]string{"market"}, registry)
	assert.NotEqual(t, first, other)
}

func TestRequest_Normalize(t *testing.T) {
	cfg := testConfig()
	req := Request{Symbol: "NVDA"}
	req.Normalize(cfg)

	assert.NotEmpty(t, req.RunID)
	assert.Equal(t, "M1", req.ModelID)
	assert.Equal(t, []string{"market", "news", "social", "fundamental"}, req.Analysts)
	assert.Equal(t, 1, req.DebateRounds)
	assert.Equal(t, 1, req.RiskRounds)
	_, err := time.Parse("2006-01-02", req.TradeDate)
	assert.NoError(t, err)
	assert.NoError(t, req.Validate(cfg))
}

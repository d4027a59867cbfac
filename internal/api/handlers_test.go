package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/adapters/ai"
	"minerva/internal/adapters/config"
	"minerva/internal/api/health"
	"minerva/internal/artifacts"
	"minerva/internal/cache"
	"minerva/internal/dataflows"
	"minerva/internal/domain/decision"
	"minerva/internal/events"
	"minerva/internal/run"
	"minerva/internal/tools"
	"minerva/internal/tools/middleware"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

func init() {
	_ = logger.Init("debug", "test")
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Chat(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.Message{
		Role:    ai.RoleAssistant,
		Content: "stub report",
	}}}}, nil
}

type memDecisionRepo struct {
	mu   sync.Mutex
	rows map[string]*decision.Decision
}

func (r *memDecisionRepo) Insert(_ context.Context, d *decision.Decision) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memDecisionRepo) ListBySymbol(_ context.Context, symbol string, limit int, before time.Time) ([]*decision.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*decision.Decision
	for _, d := range r.rows {
		if d.Symbol != symbol {
			continue
		}
		if !before.IsZero() && !d.CreatedAt.Before(before) {
			continue
		}
		out = append(out, d)
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	rows map[string]*decision.RunRecord
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

type apiEnv struct {
	handler   http.Handler
	bus       *events.Bus
	decisions *memDecisionRepo
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.AI.AllowedModels = []string{"M1"}
	cfg.AI.DefaultModel = "M1"
	cfg.AI.PerCallTimeout = 5 * time.Second
	cfg.Orchestrator.MaxRecursionLimit = 20
	cfg.Orchestrator.MaxToolSteps = 8
	cfg.Orchestrator.RunWallClock = 30 * time.Second
	cfg.Orchestrator.PersonaBudget = 5 * time.Second

	store, err := cache.NewStore(&memCacheRepo{entries: make(map[string]*cache.Entry)}, 64)
	require.NoError(t, err)
	adapter := dataflows.NewAdapter(store, cache.DefaultPolicy())
	adapter.RegisterVendor(dataflows.NewMockVendor(), dataflows.AllDataTypes()...)

	registry := tools.NewRegistry()
	require.NoError(t, tools.NewCatalog(adapter).RegisterAll(registry))

	bus := events.NewBus()
	decisions := &memDecisionRepo{rows: make(map[string]*decision.Decision)}
	runs := &memRunRepo{rows: make(map[string]*decision.RunRecord)}

	supervisor := run.NewSupervisor(cfg, run.Deps{
		Provider:  stubProvider{},
		Registry:  registry,
		Adapter:   adapter,
		Bus:       bus,
		Decisions: decisions,
		Runs:      runs,
		Artifacts: artifacts.NewWriter(t.TempDir()),
		Recorder:  middleware.NewRecorder(),
	})

	server := NewServer(
		ServerConfig{Port: 0, ServiceName: "minerva-test", Version: "test"},
		NewAnalysisHandler(supervisor, bus, decisions),
		health.New(logger.Get(), nil, nil, "minerva-test", "test"),
		logger.Get(),
	)

	return &apiEnv{handler: server.Handler(), bus: bus, decisions: decisions}
}

// waitForRun blocks until the run reaches a terminal event.
func waitForRun(t *testing.T, bus *events.Bus, runID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := bus.Subscribe(ctx, runID, -1)
	require.NoError(t, err)
	defer sub.Close()

	for {
		event, ok := sub.Next(ctx)
		require.True(t, ok, "run %s did not finish", runID)
		if events.Terminal(event.Stage) {
			return
		}
	}
}

func startMockRun(t *testing.T, env *apiEnv, body string) string {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusAccepted, recorder.Code, recorder.Body.String())

	var response map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.NotEmpty(t, response["runId"])
	return response["runId"]
}

func TestHandleStart_Validation(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad symbol", `{"symbol":"nvda"}`, "symbol"},
		{"bad model", `{"symbol":"NVDA","modelId":"gpt-99"}`, "modelId"},
		{"bad analyst", `{"symbol":"NVDA","analysts":["astrologer"]}`, "analysts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(tt.body))
			recorder := httptest.NewRecorder()
			env.handler.ServeHTTP(recorder, request)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			var response map[string]string
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
			assert.Equal(t, tt.field, response["field"])
			assert.NotEmpty(t, response["error"])
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader("{"))
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestHandleEvents_ReplayAfterCompletion(t *testing.T) {
	env := newAPIEnv(t)

	runID := startMockRun(t, env, `{"symbol":"NVDA","useMockData":true}`)
	waitForRun(t, env.bus, runID)

	request := httptest.NewRequest(http.MethodGet, "/api/analysis/"+runID+"/events", nil)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

	body := recorder.Body.String()
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, "event: completion\n")
	assert.Contains(t, body, `"runId":"`+runID+`"`)
	assert.Contains(t, body, `"stage":"queued"`)
	assert.Contains(t, body, `"stage":"done"`)
}

func TestHandleEvents_SinceSkipsReplayed(t *testing.T) {
	env := newAPIEnv(t)

	runID := startMockRun(t, env, `{"symbol":"NVDA","useMockData":true}`)
	waitForRun(t, env.bus, runID)

	request := httptest.NewRequest(http.MethodGet, "/api/analysis/"+runID+"/events?since=7", nil)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	assert.NotContains(t, body, `"stage":"queued"`)
	// since is inclusive: seq 7 (finalizing) is the first replayed event.
	assert.Contains(t, body, `"stage":"finalizing"`)
	assert.Contains(t, body, `"stage":"done"`)
}

func TestHandleEvents_UnknownRun(t *testing.T) {
	env := newAPIEnv(t)

	request := httptest.NewRequest(http.MethodGet, "/api/analysis/nope/events", nil)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleGet_Decision(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("not found before any run", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/analysis/never-ran", nil)
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	runID := startMockRun(t, env, `{"symbol":"NVDA","useMockData":true}`)
	waitForRun(t, env.bus, runID)

	t.Run("returns persisted decision", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/analysis/"+runID, nil)
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		var d decision.Decision
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &d))
		assert.Equal(t, runID, d.RunID)
		assert.Equal(t, "NVDA", d.Symbol)
		assert.Contains(t, []string{"BUY", "HOLD", "SELL"}, d.DecisionToken)
	})
}

func TestHandleList_Paging(t *testing.T) {
	env := newAPIEnv(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := env.decisions.Insert(context.Background(), &decision.Decision{
			RunID:         "seed-" + string(rune('a'+i)),
			Symbol:        "AAPL",
			DecisionToken: "HOLD",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	t.Run("missing symbol", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("first page and cursor", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/decisions?symbol=AAPL&limit=2", nil)
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		var page decision.Page
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &page))
		require.Len(t, page.Items, 2)
		require.NotEmpty(t, page.NextCursor)
		assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

		next := httptest.NewRequest(http.MethodGet, "/api/decisions?symbol=AAPL&limit=2&cursor="+page.NextCursor, nil)
		nextRecorder := httptest.NewRecorder()
		env.handler.ServeHTTP(nextRecorder, next)

		require.Equal(t, http.StatusOK, nextRecorder.Code)
		var nextPage decision.Page
		require.NoError(t, json.Unmarshal(nextRecorder.Body.Bytes(), &nextPage))
		require.Len(t, nextPage.Items, 1)
		assert.Empty(t, nextPage.NextCursor)
	})

	t.Run("empty result", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/decisions?symbol=ZZZZ", nil)
		recorder := httptest.NewRecorder()
		env.handler.ServeHTTP(recorder, request)

		require.Equal(t, http.StatusOK, recorder.Code)
		var page decision.Page
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &page))
		assert.Empty(t, page.Items)
		assert.Empty(t, page.NextCursor)
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"minerva/internal/domain/decision"
	"minerva/internal/events"
	"minerva/internal/run"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

const (
	defaultListLimit = 10
	maxListLimit     = 20
)

// AnalysisHandler serves the run lifecycle endpoints: start, stream, fetch,
// and list.
type AnalysisHandler struct {
	supervisor *run.Supervisor
	bus        *events.Bus
	decisions  decision.Repository
	log        *logger.Logger
}

// NewAnalysisHandler creates the handler.
func NewAnalysisHandler(supervisor *run.Supervisor, bus *events.Bus, decisions decision.Repository) *AnalysisHandler {
	return &AnalysisHandler{
		supervisor: supervisor,
		bus:        bus,
		decisions:  decisions,
		log:        logger.Get().With("component", "analysis_api"),
	}
}

// HandleStart accepts a run request and returns its id. The queued event is
// already published when the response goes out.
func (h *AnalysisHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var request run.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	runID, err := h.supervisor.StartRun(r.Context(), request)
	if err != nil {
		var validationErr *errors.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Message, validationErr.Field)
			return
		}
		h.log.Errorw("start run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run", "")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// HandleEvents streams run progress as server-sent events. The `since`
// query parameter replays every event from that sequence (inclusive)
// first; without it the full log is replayed.
func (h *AnalysisHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	sinceSeq := int64(-1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer sequence number", "since")
			return
		}
		sinceSeq = parsed
	}

	sub, err := h.bus.Subscribe(r.Context(), runID, sinceSeq)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown run", "")
			return
		}
		h.log.Errorw("subscribe failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe", "")
		return
	}

	if err := events.Stream(r.Context(), w, sub); err != nil {
		h.log.Warnw("event stream ended with error", "run_id", runID, "error", err)
	}
}

// HandleGet returns the persisted decision of a finished run.
func (h *AnalysisHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	d, err := h.decisions.GetByRunID(r.Context(), runID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no decision for this run", "")
			return
		}
		h.log.Errorw("get decision failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load decision", "")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// HandleList returns past decisions for a symbol, newest first, with an
// opaque createdAt cursor for pagination.
func (h *AnalysisHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required", "symbol")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "limit")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	before := time.Time{}
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be an ISO-8601 timestamp", "cursor")
			return
		}
		before = parsed
	}

	items, err := h.decisions.ListBySymbol(r.Context(), symbol, limit, before)
	if err != nil {
		h.log.Errorw("list decisions failed", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list decisions", "")
		return
	}

	page := decision.Page{Items: items}
	if len(items) == limit {
		page.NextCursor = items[len(items)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	if page.Items == nil {
		page.Items = []*decision.Decision{}
	}

	writeJSON(w, http.StatusOK, page)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, field string) {
	body := map[string]string{"error": message}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}

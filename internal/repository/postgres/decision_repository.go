package postgres

import (
	"context"
	"database/sql"
	"time"

	"minerva/internal/domain/decision"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// DecisionRepository implements decision.Repository using PostgreSQL.
type DecisionRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewDecisionRepository creates a new PostgreSQL decision repository.
func NewDecisionRepository(db DBTX) *DecisionRepository {
	return &DecisionRepository{
		db:  db,
		log: logger.Get().With("component", "decision_repository"),
	}
}

// Insert writes the decision at most once per run ID. A duplicate run ID is
// a no-op and reports inserted=false.
func (r *DecisionRepository) Insert(ctx context.Context, d *decision.Decision) (bool, error) {
	query := `
		INSERT INTO ta_decisions (
			run_id, symbol, trade_date, decision_token, ambiguous,
			investment_plan, trader_plan, risk_judge, payload, raw_text,
			model_id, analysts, prompt_hash, orchestrator_version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id) DO NOTHING
	`

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		d.RunID, d.Symbol, d.TradeDate, d.DecisionToken, d.Ambiguous,
		d.InvestmentPlan, d.TraderPlan, d.RiskJudge, d.Payload, d.RawText,
		d.ModelID, d.Analysts, d.PromptHash, d.OrchestratorVersion, createdAt,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert decision")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		r.log.Infow("Decision already persisted, skipping", "run_id", d.RunID)
		return false, nil
	}
	return true, nil
}

// GetByRunID fetches one decision.
func (r *DecisionRepository) GetByRunID(ctx context.Context, runID string) (*decision.Decision, error) {
	query := `
		SELECT run_id, symbol, trade_date, decision_token, ambiguous,
		       investment_plan, trader_plan, risk_judge, payload, raw_text,
		       model_id, analysts, prompt_hash, orchestrator_version, created_at
		FROM ta_decisions
		WHERE run_id = $1
	`

	var d decision.Decision
	if err := r.db.GetContext(ctx, &d, query, runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "decision for run %s", runID)
		}
		return nil, errors.Wrap(err, "failed to get decision")
	}
	return &d, nil
}

// ListBySymbol pages decisions for a symbol, newest first. before filters to
// rows created strictly before the cursor; pass the zero time for the first
// page.
func (r *DecisionRepository) ListBySymbol(ctx context.Context, symbol string, limit int, before time.Time) ([]*decision.Decision, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}

	query := `
		SELECT run_id, symbol, trade_date, decision_token, ambiguous,
		       investment_plan, trader_plan, risk_judge, payload, raw_text,
		       model_id, analysts, prompt_hash, orchestrator_version, created_at
		FROM ta_decisions
		WHERE symbol = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var items []*decision.Decision
	if err := r.db.SelectContext(ctx, &items, query, symbol, before, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list decisions")
	}
	return items, nil
}

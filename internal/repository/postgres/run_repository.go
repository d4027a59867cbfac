package postgres

import (
	"context"
	"database/sql"

	"minerva/internal/domain/decision"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// RunRepository implements decision.RunRepository using PostgreSQL.
type RunRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewRunRepository creates a new PostgreSQL run metadata repository.
func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{
		db:  db,
		log: logger.Get().With("component", "run_repository"),
	}
}

// Upsert writes or refreshes the run metadata row.
func (r *RunRepository) Upsert(ctx context.Context, record *decision.RunRecord) error {
	query := `
		INSERT INTO ta_runs (
			run_id, symbol, trade_date, model, analysts,
			prompt_hash, orchestrator_version, logs_path
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			logs_path = EXCLUDED.logs_path,
			prompt_hash = EXCLUDED.prompt_hash
	`

	_, err := r.db.ExecContext(ctx, query,
		record.RunID, record.Symbol, record.TradeDate, record.Model, record.Analysts,
		record.PromptHash, record.OrchestratorVersion, record.LogsPath,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert run record")
	}
	return nil
}

// GetByRunID fetches run metadata.
func (r *RunRepository) GetByRunID(ctx context.Context, runID string) (*decision.RunRecord, error) {
	query := `
		SELECT run_id, symbol, trade_date, model, analysts,
		       prompt_hash, orchestrator_version, logs_path
		FROM ta_runs
		WHERE run_id = $1
	`

	var record decision.RunRecord
	if err := r.db.GetContext(ctx, &record, query, runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "run record %s", runID)
		}
		return nil, errors.Wrap(err, "failed to get run record")
	}
	return &record, nil
}

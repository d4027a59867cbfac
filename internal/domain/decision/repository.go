package decision

import (
	"context"
	"time"
)

// Repository persists final decisions. Insert is at-most-once per run ID:
// a duplicate insert is a no-op reporting inserted=false.
type Repository interface {
	Insert(ctx context.Context, d *Decision) (inserted bool, err error)
	GetByRunID(ctx context.Context, runID string) (*Decision, error)
	ListBySymbol(ctx context.Context, symbol string, limit int, before time.Time) ([]*Decision, error)
}

// RunRepository stores best-effort run metadata.
type RunRepository interface {
	Upsert(ctx context.Context, r *RunRecord) error
	GetByRunID(ctx context.Context, runID string) (*RunRecord, error)
}

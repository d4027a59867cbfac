package postgres

import (
	"context"
	"database/sql"

	"minerva/internal/cache"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// HTTPCacheRepository implements cache.Repo over the http_cache table.
// Upserts are last-writer-wins by fetched_at so concurrent refreshes of the
// same key converge on the newest payload.
type HTTPCacheRepository struct {
	db  DBTX
	log *logger.Logger
}

// NewHTTPCacheRepository creates a new PostgreSQL cache repository.
func NewHTTPCacheRepository(db DBTX) *HTTPCacheRepository {
	return &HTTPCacheRepository{
		db:  db,
		log: logger.Get().With("component", "httpcache_repository"),
	}
}

// Get fetches one cache entry by key.
func (r *HTTPCacheRepository) Get(ctx context.Context, key string) (*cache.Entry, error) {
	query := `
		SELECT key, data, data_fingerprint, etag, last_modified, as_of,
		       fetched_at, expires_at, schema_version
		FROM http_cache
		WHERE key = $1
	`

	var entry cache.Entry
	if err := r.db.GetContext(ctx, &entry, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "cache entry %s", key)
		}
		return nil, errors.Wrap(err, "failed to get cache entry")
	}
	return &entry, nil
}

// Upsert replaces the entry unless a newer fetch already landed.
func (r *HTTPCacheRepository) Upsert(ctx context.Context, entry *cache.Entry) error {
	query := `
		INSERT INTO http_cache (
			key, data, data_fingerprint, etag, last_modified, as_of,
			fetched_at, expires_at, schema_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			data_fingerprint = EXCLUDED.data_fingerprint,
			etag = EXCLUDED.etag,
			last_modified = EXCLUDED.last_modified,
			as_of = EXCLUDED.as_of,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at,
			schema_version = EXCLUDED.schema_version
		WHERE http_cache.fetched_at <= EXCLUDED.fetched_at
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.Key, entry.Data, entry.DataFingerprint, entry.ETag, entry.LastModified,
		entry.AsOf, entry.FetchedAt, entry.ExpiresAt, entry.SchemaVersion,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert cache entry")
	}
	return nil
}

// Delete removes one cache entry.
func (r *HTTPCacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM http_cache WHERE key = $1`, key); err != nil {
		return errors.Wrap(err, "failed to delete cache entry")
	}
	return nil
}

package events

import (
	"context"
	"time"

	"minerva/internal/adapters/redis"
	"minerva/pkg/errors"
)

const archiveKeyPrefix = "ta:events:"

// RedisArchive stores completed-run event logs in redis with a TTL so late
// subscribers can replay after the in-memory log is gone.
type RedisArchive struct {
	client *redis.Client
}

// NewRedisArchive creates an archive over the shared redis client.
func NewRedisArchive(client *redis.Client) *RedisArchive {
	return &RedisArchive{client: client}
}

// Save writes the full event log under the run's key.
func (a *RedisArchive) Save(ctx context.Context, runID string, log []RunEvent, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return a.client.Set(ctx, archiveKeyPrefix+runID, log, ttl)
}

// Load reads a previously archived event log.
func (a *RedisArchive) Load(ctx context.Context, runID string) ([]RunEvent, error) {
	var log []RunEvent
	if err := a.client.Get(ctx, archiveKeyPrefix+runID, &log); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrNotFound, "no archived events for run %s", runID)
		}
		return nil, err
	}
	return log, nil
}

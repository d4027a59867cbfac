package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/testsupport"
	"minerva/pkg/errors"
)

func TestRedisArchive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	cfgs := testsupport.LoadDatabaseConfigsFromEnv(t)
	client := testsupport.NewRedisClient(t, cfgs.Redis)
	archive := NewRedisArchive(client)

	ctx := context.Background()

	log := []RunEvent{
		{RunID: "run-arch", Sequence: 0, Stage: StageQueued, Percent: 0, ModelID: "M1", Mode: "mock", Timestamp: time.Now().UTC()},
		{RunID: "run-arch", Sequence: 1, Stage: StageAnalysts, Percent: 10, ModelID: "M1", Mode: "mock", Timestamp: time.Now().UTC()},
		{RunID: "run-arch", Sequence: 2, Stage: StageDone, Percent: 100, ModelID: "M1", Mode: "mock", Timestamp: time.Now().UTC(),
			Payload: map[string]interface{}{"decision": "HOLD"}},
	}

	require.NoError(t, archive.Save(ctx, "run-arch", log, time.Minute))

	loaded, err := archive.Load(ctx, "run-arch")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, uint64(0), loaded[0].Sequence)
	assert.Equal(t, StageDone, loaded[2].Stage)
	assert.Equal(t, "HOLD", loaded[2].Payload["decision"])

	_, err = archive.Load(ctx, "never-archived")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

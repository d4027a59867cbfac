package events

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, bus *Bus, runID, stage string) RunEvent {
	t.Helper()
	event, err := bus.Publish(runID, RunEvent{Stage: stage, Label: stage, ModelID: "gpt-4o", Mode: "live"})
	require.NoError(t, err)
	return event
}

func TestBusSequenceAndPercent(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	stages := []string{
		StageQueued, StageAnalysts, StageInvestmentDebate, StageResearchManager,
		StageTrader, StageRiskDebate, StageRiskManager, StageFinalizing, StageDone,
	}

	var published []RunEvent
	for _, stage := range stages {
		published = append(published, publish(t, bus, "run-1", stage))
	}

	lastPercent := -1
	for i, event := range published {
		assert.Equal(t, uint64(i), event.Sequence, "sequence strictly increasing from 0")
		assert.GreaterOrEqual(t, event.Percent, lastPercent, "percent non-decreasing")
		lastPercent = event.Percent
	}
	assert.Equal(t, 0, published[0].Percent)
	assert.Equal(t, 100, published[len(published)-1].Percent)
}

func TestBusErrorKeepsLastPercent(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	publish(t, bus, "run-1", StageQueued)
	publish(t, bus, "run-1", StageTrader)
	errEvent := publish(t, bus, "run-1", StageError)

	assert.Equal(t, 55, errEvent.Percent)
}

func TestBusRejectsDuplicateRegistration(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))
	require.Error(t, bus.Register("run-1"))
}

func TestBusNoEventsAfterTerminal(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))
	publish(t, bus, "run-1", StageQueued)
	publish(t, bus, "run-1", StageDone)

	_, err := bus.Publish("run-1", RunEvent{Stage: StageAnalysts})
	require.Error(t, err)
}

func TestSubscribeReplaysSinceSeq(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	publish(t, bus, "run-1", StageQueued)            // seq 0
	publish(t, bus, "run-1", StageAnalysts)          // seq 1
	publish(t, bus, "run-1", StageInvestmentDebate)  // seq 2

	// sinceSeq is inclusive: subscribing at 1 replays 1 and 2.
	sub, err := bus.Subscribe(context.Background(), "run-1", 1)
	require.NoError(t, err)
	defer sub.Close()

	first, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.Sequence)
	second, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, uint64(2), second.Sequence)
	_, ok = sub.TryNext()
	assert.False(t, ok)

	// Live delivery continues after replay
	publish(t, bus, "run-1", StageTrader)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	live, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, StageTrader, live.Stage)
}

func TestSubscribeReplayThenLiveNoGaps(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	stages := []string{
		StageQueued, StageAnalysts, StageInvestmentDebate,
		StageResearchManager, StageTrader, StageRiskDebate,
	}
	for _, stage := range stages { // seq 0..5
		publish(t, bus, "run-1", stage)
	}

	sub, err := bus.Subscribe(context.Background(), "run-1", 3)
	require.NoError(t, err)
	defer sub.Close()

	publish(t, bus, "run-1", StageRiskManager) // seq 6, live

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []uint64
	for len(got) < 4 {
		event, ok := sub.Next(ctx)
		require.True(t, ok)
		got = append(got, event.Sequence)
	}
	assert.Equal(t, []uint64{3, 4, 5, 6}, got)
}

func TestSubscribeFullReplayWithMinusOne(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))
	publish(t, bus, "run-1", StageQueued)

	sub, err := bus.Subscribe(context.Background(), "run-1", -1)
	require.NoError(t, err)
	defer sub.Close()

	event, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, uint64(0), event.Sequence)
}

func TestSubscriberStreamEndsAfterTerminal(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	sub, err := bus.Subscribe(context.Background(), "run-1", -1)
	require.NoError(t, err)

	publish(t, bus, "run-1", StageQueued)
	publish(t, bus, "run-1", StageDone)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var stages []string
	for {
		event, ok := sub.Next(ctx)
		if !ok {
			break
		}
		stages = append(stages, event.Stage)
	}
	assert.Equal(t, []string{StageQueued, StageDone}, stages)
}

func TestSubscriberOverflowKeepsTerminalAndLast(t *testing.T) {
	bus := NewBus(WithBufferSize(4))
	require.NoError(t, bus.Register("run-1"))

	sub, err := bus.Subscribe(context.Background(), "run-1", -1)
	require.NoError(t, err)

	// Publish far more than the buffer without consuming
	for i := 0; i < 10; i++ {
		publish(t, bus, "run-1", StageAnalysts)
	}
	publish(t, bus, "run-1", StageDone)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var received []RunEvent
	for {
		event, ok := sub.Next(ctx)
		if !ok {
			break
		}
		received = append(received, event)
	}

	require.NotEmpty(t, received)
	assert.LessOrEqual(t, len(received), 5)
	// Terminal event always survives
	assert.Equal(t, StageDone, received[len(received)-1].Stage)
	// Order preserved among survivors
	for i := 1; i < len(received); i++ {
		assert.Greater(t, received[i].Sequence, received[i-1].Sequence)
	}
}

func TestBusConcurrentPublishIsOrdered(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Register("run-1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bus.Publish("run-1", RunEvent{Stage: StageAnalysts})
		}()
	}
	wg.Wait()

	log, err := bus.Events(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, log, 20)
	for i, event := range log {
		assert.Equal(t, uint64(i), event.Sequence)
	}
}

type memArchive struct {
	mu    sync.Mutex
	saved map[string][]RunEvent
}

func (a *memArchive) Save(_ context.Context, runID string, log []RunEvent, _ time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved[runID] = log
	return nil
}

func (a *memArchive) Load(_ context.Context, runID string) ([]RunEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved[runID], nil
}

func TestBusArchivesCompletedRuns(t *testing.T) {
	archive := &memArchive{saved: make(map[string][]RunEvent)}
	bus := NewBus(WithArchive(archive), WithRetention(time.Minute))
	require.NoError(t, bus.Register("run-1"))

	publish(t, bus, "run-1", StageQueued)
	publish(t, bus, "run-1", StageDone)

	archive.mu.Lock()
	saved := archive.saved["run-1"]
	archive.mu.Unlock()
	require.Len(t, saved, 2)
	assert.Equal(t, StageDone, saved[1].Stage)
}

func TestWriteSSEFraming(t *testing.T) {
	var b strings.Builder
	event := RunEvent{
		RunID:    "run-1",
		Sequence: 3,
		Stage:    StageTrader,
		Percent:  55,
	}
	require.NoError(t, WriteSSE(&b, event))

	out := b.String()
	assert.True(t, strings.HasPrefix(out, "event: progress\ndata: "), out)
	assert.True(t, strings.HasSuffix(out, "\n\n"), out)
	assert.Contains(t, out, `"runId":"run-1"`)
	assert.Contains(t, out, `"sequence":3`)

	b.Reset()
	require.NoError(t, WriteSSE(&b, RunEvent{Stage: StageDone}))
	assert.True(t, strings.HasPrefix(b.String(), "event: completion\n"))

	b.Reset()
	require.NoError(t, WriteSSE(&b, RunEvent{Stage: StageError}))
	assert.True(t, strings.HasPrefix(b.String(), "event: error\n"))

	b.Reset()
	require.NoError(t, WritePing(&b))
	assert.True(t, strings.HasPrefix(b.String(), "event: ping\ndata: "))
}

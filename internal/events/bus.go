package events

import (
	"context"
	"sync"
	"time"

	"minerva/internal/metrics"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// DefaultSubscriberBuffer caps undelivered events per subscriber.
const DefaultSubscriberBuffer = 64

// Archive persists completed-run event logs for late reconnects after
// in-memory state is released.
type Archive interface {
	Save(ctx context.Context, runID string, log []RunEvent, ttl time.Duration) error
	Load(ctx context.Context, runID string) ([]RunEvent, error)
}

// Bus is the per-run progress fan-out: an append-only event log plus live
// subscribers. Sequences are assigned at publish; percent never regresses.
type Bus struct {
	mu         sync.RWMutex
	runs       map[string]*runLog
	bufferSize int
	retention  time.Duration
	archive    Archive
	now        func() time.Time
	log        *logger.Logger
}

type runLog struct {
	mu          sync.Mutex
	runID       string
	events      []RunEvent
	nextSeq     uint64
	lastPercent int
	subscribers map[*Subscriber]struct{}
	completed   bool
}

// Option configures the bus.
type Option func(*Bus)

// WithArchive stores completed run logs in an external archive.
func WithArchive(a Archive) Option {
	return func(b *Bus) { b.archive = a }
}

// WithRetention overrides how long completed runs stay subscribable.
func WithRetention(d time.Duration) Option {
	return func(b *Bus) { b.retention = d }
}

// WithBufferSize overrides the per-subscriber buffer.
func WithBufferSize(n int) Option {
	return func(b *Bus) { b.bufferSize = n }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		runs:       make(map[string]*runLog),
		bufferSize: DefaultSubscriberBuffer,
		retention:  time.Hour,
		now:        time.Now,
		log:        logger.Get().With("component", "event_bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates the event log for a new run.
func (b *Bus) Register(runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[runID]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "run %s already registered", runID)
	}
	b.runs[runID] = &runLog{
		runID:       runID,
		lastPercent: 0,
		subscribers: make(map[*Subscriber]struct{}),
	}
	return nil
}

// Publish appends one event to the run's log and fans it out. The sequence
// and effective percent are assigned here; a stage with no scheduled percent
// (error) inherits the last one.
func (b *Bus) Publish(runID string, event RunEvent) (RunEvent, error) {
	b.mu.RLock()
	run, ok := b.runs[runID]
	b.mu.RUnlock()
	if !ok {
		return RunEvent{}, errors.Wrapf(errors.ErrNotFound, "run %s is not registered", runID)
	}

	run.mu.Lock()
	if run.completed {
		run.mu.Unlock()
		return RunEvent{}, errors.Wrapf(errors.ErrInternal, "run %s already terminal", runID)
	}

	event.RunID = runID
	event.Sequence = run.nextSeq
	run.nextSeq++
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	pct := PercentFor(event.Stage)
	if pct < run.lastPercent {
		pct = run.lastPercent
	}
	event.Percent = pct
	run.lastPercent = pct

	run.events = append(run.events, event)
	if Terminal(event.Stage) {
		run.completed = true
	}

	subscribers := make([]*Subscriber, 0, len(run.subscribers))
	for sub := range run.subscribers {
		subscribers = append(subscribers, sub)
	}
	run.mu.Unlock()

	metrics.EventsPublished.Inc()
	for _, sub := range subscribers {
		sub.push(event)
	}

	if Terminal(event.Stage) {
		b.retire(runID, run)
	}

	return event, nil
}

// Subscribe attaches to a run's stream. Events with sequence >= sinceSeq
// are replayed from the log before live delivery; pass sinceSeq <= 0 for
// the full log. Completed runs replay from the archive when already evicted.
func (b *Bus) Subscribe(ctx context.Context, runID string, sinceSeq int64) (*Subscriber, error) {
	b.mu.RLock()
	run, ok := b.runs[runID]
	b.mu.RUnlock()

	if !ok {
		return b.subscribeArchived(ctx, runID, sinceSeq)
	}

	sub := newSubscriber(b.bufferSize)

	run.mu.Lock()
	for _, event := range run.events {
		if int64(event.Sequence) >= sinceSeq {
			sub.push(event)
		}
	}
	if run.completed {
		sub.finish()
	} else {
		run.subscribers[sub] = struct{}{}
		sub.detach = func() {
			run.mu.Lock()
			delete(run.subscribers, sub)
			run.mu.Unlock()
		}
	}
	run.mu.Unlock()

	return sub, nil
}

// Events returns a snapshot of the run's log, falling back to the archive.
func (b *Bus) Events(ctx context.Context, runID string) ([]RunEvent, error) {
	b.mu.RLock()
	run, ok := b.runs[runID]
	b.mu.RUnlock()

	if ok {
		run.mu.Lock()
		defer run.mu.Unlock()
		out := make([]RunEvent, len(run.events))
		copy(out, run.events)
		return out, nil
	}

	if b.archive != nil {
		return b.archive.Load(ctx, runID)
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "no events for run %s", runID)
}

func (b *Bus) subscribeArchived(ctx context.Context, runID string, sinceSeq int64) (*Subscriber, error) {
	if b.archive == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s is not registered", runID)
	}
	log, err := b.archive.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	sub := newSubscriber(len(log) + 1)
	for _, event := range log {
		if int64(event.Sequence) >= sinceSeq {
			sub.push(event)
		}
	}
	sub.finish()
	return sub, nil
}

// retire archives a completed run and schedules eviction after retention.
func (b *Bus) retire(runID string, run *runLog) {
	run.mu.Lock()
	snapshot := make([]RunEvent, len(run.events))
	copy(snapshot, run.events)
	for sub := range run.subscribers {
		sub.finish()
		delete(run.subscribers, sub)
	}
	run.mu.Unlock()

	if b.archive != nil {
		if err := b.archive.Save(context.Background(), runID, snapshot, b.retention); err != nil {
			b.log.Warnw("Event archive write failed", "run_id", runID, "error", err)
		}
	}

	time.AfterFunc(b.retention, func() {
		b.mu.Lock()
		delete(b.runs, runID)
		b.mu.Unlock()
	})
}

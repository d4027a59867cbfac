package events

import (
	"context"
	"sync"

	"minerva/internal/metrics"
)

// Subscriber is one consumer of a run's event stream. Its buffer is
// bounded: on overflow the oldest non-terminal event is dropped, keeping
// terminal events and the most recent one.
type Subscriber struct {
	mu       sync.Mutex
	queue    []RunEvent
	max      int
	notify   chan struct{}
	finished bool
	detach   func()
}

func newSubscriber(max int) *Subscriber {
	if max <= 0 {
		max = DefaultSubscriberBuffer
	}
	return &Subscriber{
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

func (s *Subscriber) push(event RunEvent) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}

	if len(s.queue) >= s.max {
		dropped := false
		// Never drop the newest queued event or a terminal one
		for i := 0; i < len(s.queue)-1; i++ {
			if !Terminal(s.queue[i].Stage) {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped && !Terminal(event.Stage) {
			// Queue holds only must-keep events; the incoming one loses
			s.mu.Unlock()
			metrics.EventsDropped.Inc()
			return
		}
		metrics.EventsDropped.Inc()
	}

	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.wake()
}

// finish marks the stream complete once the queue drains.
func (s *Subscriber) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the stream ends (ok=false), or
// the context is done (ok=false).
func (s *Subscriber) Next(ctx context.Context) (RunEvent, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, true
		}
		finished := s.finished
		s.mu.Unlock()

		if finished {
			return RunEvent{}, false
		}

		select {
		case <-ctx.Done():
			return RunEvent{}, false
		case <-s.notify:
		}
	}
}

// TryNext returns the next buffered event without blocking.
func (s *Subscriber) TryNext() (RunEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return RunEvent{}, false
	}
	event := s.queue[0]
	s.queue = s.queue[1:]
	return event, true
}

// Close detaches the subscriber from live delivery.
func (s *Subscriber) Close() {
	s.mu.Lock()
	s.finished = true
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	s.wake()
}

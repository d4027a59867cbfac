package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HeartbeatInterval is how often an idle stream emits a ping.
const HeartbeatInterval = 15 * time.Second

// WriteSSE frames one event as a server-sent-event message.
func WriteSSE(w io.Writer, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", event.Sequence, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type(), data)
	return err
}

// WritePing frames a heartbeat message.
func WritePing(w io.Writer) error {
	_, err := fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%q}\n\n", time.Now().UTC().Format(time.RFC3339))
	return err
}

// Stream pumps a subscriber to an SSE response until the stream ends or
// the client disconnects. Heartbeats cover idle stretches.
func Stream(ctx context.Context, w http.ResponseWriter, sub *Subscriber) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer sub.Close()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	eventCh := make(chan RunEvent)
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for {
			event, ok := sub.Next(ctx)
			if !ok {
				return
			}
			select {
			case eventCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-doneCh:
			// Drain anything already handed over
			for {
				select {
				case event := <-eventCh:
					if err := WriteSSE(w, event); err != nil {
						return err
					}
				default:
					flusher.Flush()
					return nil
				}
			}
		case event := <-eventCh:
			if err := WriteSSE(w, event); err != nil {
				return err
			}
			flusher.Flush()
		case <-heartbeat.C:
			if err := WritePing(w); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

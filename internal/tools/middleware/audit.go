package middleware

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"minerva/internal/metrics"
	"minerva/internal/tools"
)

// CallRecord is one entry of the per-run tool audit trail.
type CallRecord struct {
	RunID      string    `json:"runId"`
	Persona    string    `json:"persona"`
	Tool       string    `json:"tool"`
	Input      string    `json:"input"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
}

// Recorder collects tool call records for one run. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []CallRecord
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append adds one record.
func (r *Recorder) Append(record CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, len(r.records))
	copy(out, r.records)
	return out
}

// RecordsForRun returns the records of one run, in call order.
func (r *Recorder) RecordsForRun(runID string) []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRecord
	for _, record := range r.records {
		if record.RunID == runID {
			out = append(out, record)
		}
	}
	return out
}

// Release drops the records of one run once they have been persisted,
// so the recorder does not accumulate across runs.
func (r *Recorder) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	for _, record := range r.records {
		if record.RunID != runID {
			kept = append(kept, record)
		}
	}
	r.records = kept
}

// Truncation keeps audit payloads bounded; full outputs already live in
// the conversation transcript.
const maxRecordedOutput = 2000

// AuditMiddleware records every tool execution into the run's audit trail
// and the tool metrics.
type AuditMiddleware struct {
	Recorder *Recorder
}

// Wrap adds audit recording around a tool.
func (m AuditMiddleware) Wrap(t tools.Tool) tools.Tool {
	if m.Recorder == nil {
		return t
	}

	return tools.New(t.Name(), t.Description(), t.Parameters(), func(ctx context.Context, args map[string]interface{}) (string, error) {
		start := time.Now()
		output, err := t.Execute(ctx, args)
		finished := time.Now()

		record := CallRecord{
			Tool:       t.Name(),
			StartedAt:  start,
			FinishedAt: finished,
			DurationMs: finished.Sub(start).Milliseconds(),
		}
		if meta, ok := tools.MetadataFromContext(ctx); ok {
			record.RunID = meta.RunID
			record.Persona = meta.Persona
		}
		if input, marshalErr := json.Marshal(args); marshalErr == nil {
			record.Input = string(input)
		}

		if err != nil {
			record.Error = err.Error()
		} else {
			record.Output = output
			if len(record.Output) > maxRecordedOutput {
				record.Output = record.Output[:maxRecordedOutput]
			}
		}

		metrics.RecordToolExecution(t.Name(), finished.Sub(start), err)
		m.Recorder.Append(record)

		return output, err
	})
}

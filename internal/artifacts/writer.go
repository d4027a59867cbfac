package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minerva/pkg/logger"
)

// Writer stores raw run artifacts (prompts, transcripts, tool logs) as
// append-only files, one file per run-stage. Artifact failures are logged
// and swallowed: they must never fail a run.
type Writer struct {
	baseDir string
	log     *logger.Logger
}

// NewWriter creates a writer rooted at baseDir. An empty baseDir disables
// artifact output.
func NewWriter(baseDir string) *Writer {
	return &Writer{
		baseDir: baseDir,
		log:     logger.Get().With("component", "artifacts"),
	}
}

// RunDir returns the directory artifacts of one run land in, or "" when
// disabled.
func (w *Writer) RunDir(runID string) string {
	if w.baseDir == "" {
		return ""
	}
	return filepath.Join(w.baseDir, sanitize(runID))
}

// Append writes one artifact block to the run-stage file, creating it on
// first use.
func (w *Writer) Append(runID, stage, content string) {
	if w.baseDir == "" {
		return
	}

	dir := w.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Warnw("Artifact directory creation failed", "run_id", runID, "error", err)
		return
	}

	path := filepath.Join(dir, sanitize(stage)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.log.Warnw("Artifact open failed", "run_id", runID, "stage", stage, "error", err)
		return
	}
	defer f.Close()

	header := fmt.Sprintf("--- %s ---\n", time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(header + content + "\n"); err != nil {
		w.log.Warnw("Artifact write failed", "run_id", runID, "stage", stage, "error", err)
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

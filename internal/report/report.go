// Package report writes the end-of-run summary JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Producer identifies the build that produced a run.
type Producer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Report is the run summary written next to the failure ledger.
type Report struct {
	RunID      string    `json:"run_id"`
	Producer   Producer  `json:"producer"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	Partitions       int `json:"partitions"`
	PartitionsFailed int `json:"partitions_failed"`

	FilesDone   int `json:"files_done"`
	FilesFailed int `json:"files_failed"`
	FilesEmpty  int `json:"files_empty"`
	RetryPasses int `json:"retry_passes"`

	// Residual holds the ledger entries still unresolved after the
	// retry driver gave up. Empty means a clean run.
	Residual []string `json:"residual"`
}

// New initializes a report for a starting run.
func New(runID string, producer Producer) *Report {
	return &Report{
		RunID:     runID,
		Producer:  producer,
		StartedAt: time.Now().UTC(),
		Residual:  []string{},
	}
}

// Finish stamps the end time and duration.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
	r.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}

// WriteJSON writes the report atomically via a temp file and rename.
func (r *Report) WriteJSON(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

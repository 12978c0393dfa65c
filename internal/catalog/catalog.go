// Package catalog records run and file lineage in PostgreSQL. When no
// DSN is configured a no-op writer is used and the pipeline runs
// catalog-free.
package catalog

import (
	"context"
	"time"
)

// CatalogConfig selects the backing catalog.
type CatalogConfig struct {
	PostgresDSN string
}

// RunRecord describes one invocation of the pipeline.
type RunRecord struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	ProducerVersion string
	ProducerGitSHA  string
	FilesDone       int64
	FilesFailed     int64
	FilesEmpty      int64
	ResidualCount   int64
}

// FileRecord describes the outcome of one source file.
type FileRecord struct {
	RunID      string
	City       string
	LocationID string
	Year       string
	SourceKey  string
	Outcome    string // done, failed, empty
	Stage      string // furthest stage reached
	Attempts   int
	Error      string
	Checksum   string
	RowCount   int64
}

// Writer persists lineage records.
type Writer interface {
	EnsureRun(ctx context.Context, rec RunRecord) error
	RecordFile(ctx context.Context, rec FileRecord) error
	FinishRun(ctx context.Context, rec RunRecord) error
	Close()
}

// NewWriter returns a PostgreSQL writer when a DSN is configured, and a
// no-op writer otherwise.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(cfg)
}

type noopWriter struct{}

func (noopWriter) EnsureRun(_ context.Context, _ RunRecord) error   { return nil }
func (noopWriter) RecordFile(_ context.Context, _ FileRecord) error { return nil }
func (noopWriter) FinishRun(_ context.Context, _ RunRecord) error   { return nil }
func (noopWriter) Close()                                           {}

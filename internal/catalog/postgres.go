package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter connects to the catalog database and initializes
// the _meta_* tables.
func NewPostgresWriter(cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{pool: pool}
	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Println("[catalog] connected to PostgreSQL catalog")
	return w, nil
}

// initSchema creates the _meta_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// EnsureRun registers the run at startup.
func (w *PostgresWriter) EnsureRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO _meta_runs (run_id, started_at, producer_version, producer_git_sha)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.StartedAt, rec.ProducerVersion, rec.ProducerGitSHA)
	if err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}
	return nil
}

// RecordFile writes the outcome of one source file. Re-running a file
// within the same run replaces the earlier outcome.
func (w *PostgresWriter) RecordFile(ctx context.Context, rec FileRecord) error {
	query := `
		INSERT INTO _meta_files (
			run_id, city, location_id, year, source_key,
			outcome, stage, attempts, error, checksum, row_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, source_key)
		DO UPDATE SET
			outcome = EXCLUDED.outcome,
			stage = EXCLUDED.stage,
			attempts = EXCLUDED.attempts,
			error = EXCLUDED.error,
			checksum = EXCLUDED.checksum,
			row_count = EXCLUDED.row_count,
			created_at = NOW()
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.City, rec.LocationID, rec.Year, rec.SourceKey,
		rec.Outcome, rec.Stage, rec.Attempts, rec.Error, rec.Checksum, rec.RowCount)
	if err != nil {
		return fmt.Errorf("record file: %w", err)
	}
	return nil
}

// FinishRun stores the final counters for the run.
func (w *PostgresWriter) FinishRun(ctx context.Context, rec RunRecord) error {
	query := `
		UPDATE _meta_runs
		SET finished_at = $2,
		    files_done = $3,
		    files_failed = $4,
		    files_empty = $5,
		    residual_count = $6
		WHERE run_id = $1
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.FinishedAt, rec.FilesDone, rec.FilesFailed, rec.FilesEmpty, rec.ResidualCount)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() {
	w.pool.Close()
}

var _ Writer = (*PostgresWriter)(nil)

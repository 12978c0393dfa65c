package pivoter

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/catalog"
	"github.com/Quentincami/aq-pivoter/internal/config"
	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/report"
	"github.com/Quentincami/aq-pivoter/internal/storage"
	"github.com/Quentincami/aq-pivoter/internal/transfer"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	GitSHA  = ""
)

// Pivoter wires the full run: enumeration, the batch pipeline, the
// retry driver, and the end-of-run report.
type Pivoter struct {
	cfg     config.Config
	store   storage.Store
	ledger  *ledger.FileLedger
	catalog catalog.Writer
	log     *slog.Logger
}

// New creates the orchestrator.
func New(cfg config.Config, store storage.Store, led *ledger.FileLedger, cat catalog.Writer) *Pivoter {
	return &Pivoter{
		cfg:     cfg,
		store:   store,
		ledger:  led,
		catalog: cat,
		log:     logging.Component("pivoter"),
	}
}

// Run executes one full batch. Residual failures are not an error: they
// stay in the ledger and in the report for a future run.
func (p *Pivoter) Run(ctx context.Context) (*report.Report, error) {
	runID := logging.NewRunID()
	log := p.log.With("run_id", runID)

	rep := report.New(runID, report.Producer{
		Name:    "aq-pivoter",
		Version: Version,
		GitSHA:  GitSHA,
	})

	if err := p.catalog.EnsureRun(ctx, catalog.RunRecord{
		RunID:           runID,
		StartedAt:       rep.StartedAt,
		ProducerVersion: Version,
		ProducerGitSHA:  GitSHA,
	}); err != nil {
		log.Warn("catalog run registration failed", "error", err)
	}

	partitions, err := p.enumerate(ctx)
	if err != nil {
		return rep, err
	}
	log.Info("batch starting",
		"locations", len(p.cfg.Locations),
		"partitions", len(partitions),
		"workers", p.cfg.Pipeline.Workers,
	)

	// Main pass: retrying uploads, failures recorded in the ledger.
	batchUnit := NewUnit(p.store,
		transfer.NewRetryingUploader(p.store, p.ledger, p.cfg.Pipeline.UploadAttempts, p.cfg.UploadBaseDelay()),
		p.cfg.ScratchDir(), p.cfg.Pipeline.ParquetMirror)
	pipeline := NewPipeline(p.store, batchUnit, p.ledger, p.catalog, p.cfg.Pipeline.Workers, runID)
	summary := pipeline.Run(ctx, partitions)

	if n, err := p.ledger.Size(); err == nil {
		if m := metrics.Get(); m != nil {
			m.SetLedgerSize(float64(n))
		}
	}

	// Retry pass: single-attempt uploads, the driver owns the budget.
	retryUnit := NewUnit(p.store, transfer.NewDirectUploader(p.store),
		p.cfg.ScratchDir(), p.cfg.Pipeline.ParquetMirror)
	driver := NewRetryDriver(retryUnit, p.ledger,
		p.cfg.Retry.MaxPasses, p.cfg.Retry.UnitAttempts, p.cfg.RetryDelay())

	residue, passes, err := driver.Run(ctx)
	if err != nil {
		log.Error("retry driver failed", "error", err)
	}

	rep.Partitions = summary.Partitions
	rep.PartitionsFailed = summary.PartitionsFailed
	rep.FilesDone = summary.Done
	rep.FilesFailed = summary.Failed
	rep.FilesEmpty = summary.Empty
	rep.RetryPasses = passes
	if residue != nil {
		rep.Residual = residue
	}
	rep.Finish()

	if err := rep.WriteJSON(p.cfg.ReportPath()); err != nil {
		log.Error("writing run report failed", "error", err)
	}

	if err := p.catalog.FinishRun(ctx, catalog.RunRecord{
		RunID:         runID,
		FinishedAt:    rep.FinishedAt,
		FilesDone:     int64(summary.Done),
		FilesFailed:   int64(summary.Failed),
		FilesEmpty:    int64(summary.Empty),
		ResidualCount: int64(len(residue)),
	}); err != nil {
		log.Warn("catalog run finish failed", "error", err)
	}

	log.Info("batch finished",
		"done", summary.Done,
		"failed", summary.Failed,
		"empty", summary.Empty,
		"partitions_failed", summary.PartitionsFailed,
		"retry_passes", passes,
		"residual", len(residue),
		"duration", time.Duration(rep.DurationMS)*time.Millisecond,
	)
	return rep, nil
}

// enumerate expands every configured location into (city, location,
// year) partitions, applying the optional per-location year bounds.
func (p *Pivoter) enumerate(ctx context.Context) ([]Partition, error) {
	var partitions []Partition

	for _, loc := range p.cfg.Locations {
		years, err := storage.ListYears(ctx, p.store, loc.City, loc.LocationID)
		if err != nil {
			return nil, err
		}
		for _, year := range years {
			if !yearInBounds(year, loc) {
				continue
			}
			partitions = append(partitions, Partition{
				City:       loc.City,
				LocationID: loc.LocationID,
				Year:       year,
			})
		}
	}
	return partitions, nil
}

func yearInBounds(year string, loc config.Location) bool {
	n, err := strconv.Atoi(year)
	if err != nil {
		return false
	}
	if loc.YearFrom > 0 && n < loc.YearFrom {
		return false
	}
	if loc.YearTo > 0 && n > loc.YearTo {
		return false
	}
	return true
}

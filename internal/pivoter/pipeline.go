package pivoter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/catalog"
	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/storage"
)

// Pipeline runs the main batch pass: a dispatcher feeding partitions to
// one bounded worker pool shared across all locations, and a collector
// aggregating file results.
type Pipeline struct {
	store   storage.Store
	unit    *Unit
	ledger  ledger.Ledger
	catalog catalog.Writer
	workers int
	runID   string
	log     *slog.Logger

	inFlight         atomic.Int64
	partitionsFailed atomic.Int64
}

// NewPipeline creates the batch orchestrator.
func NewPipeline(store storage.Store, unit *Unit, led ledger.Ledger, cat catalog.Writer, workers int, runID string) *Pipeline {
	if workers < 1 {
		workers = 4
	}
	return &Pipeline{
		store:   store,
		unit:    unit,
		ledger:  led,
		catalog: cat,
		workers: workers,
		runID:   runID,
		log:     logging.Component("pipeline").With("run_id", runID),
	}
}

// Run processes every partition and returns the aggregated summary.
// Partition order across workers is unspecified; files within one
// partition are processed sequentially in listed order.
func (p *Pipeline) Run(ctx context.Context, partitions []Partition) Summary {
	tasks := make(chan Partition)
	results := make(chan FileResult)

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			p.worker(ctx, id, tasks, results)
		}(i)
	}

	// Dispatcher. Closes the task channel when all partitions are
	// handed out or the context is cancelled.
	go func() {
		defer close(tasks)
		for _, part := range partitions {
			select {
			case tasks <- part:
			case <-ctx.Done():
				p.log.Warn("dispatch cancelled", "error", ctx.Err())
				return
			}
		}
	}()

	done := make(chan Summary, 1)
	go p.collect(ctx, results, done)

	workers.Wait()
	close(results)

	summary := <-done
	summary.Partitions = len(partitions)
	summary.PartitionsFailed = int(p.partitionsFailed.Load())
	return summary
}

func (p *Pipeline) worker(ctx context.Context, id int, tasks <-chan Partition, results chan<- FileResult) {
	log := logging.WorkerLogger(id)

	for part := range tasks {
		start := time.Now()
		plog := logging.PartitionLogger(p.runID, part.City, part.LocationID, part.Year)
		plog.Info("partition started")

		if m := metrics.Get(); m != nil {
			m.SetInFlightPartitions(float64(p.inFlight.Add(1)))
		}

		keys, err := storage.ListSourceFiles(ctx, p.store, part.City, part.LocationID, part.Year)
		if err != nil {
			plog.Error("listing partition failed", "error", err)
			p.partitionsFailed.Add(1)
			continue
		}

		processed := 0
		for _, key := range keys {
			if ctx.Err() != nil {
				log.Warn("worker stopping, context cancelled")
				return
			}
			results <- p.unit.Process(ctx, key)
			processed++
		}

		plog.Info("partition finished",
			"files", processed,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		if m := metrics.Get(); m != nil {
			m.ObservePartitionDuration(metrics.Labels{City: part.City}, time.Since(start).Seconds())
			m.SetInFlightPartitions(float64(p.inFlight.Add(-1)))
		}
	}
}

// collect aggregates results, appends unrecorded failures to the
// ledger, and writes per-file rows to the catalog.
func (p *Pipeline) collect(ctx context.Context, results <-chan FileResult, done chan<- Summary) {
	var summary Summary

	for res := range results {
		switch res.Outcome {
		case OutcomeDone:
			summary.Done++
		case OutcomeEmpty:
			summary.Empty++
			p.record(res)
		default:
			summary.Failed++
			p.record(res)
		}
		p.writeCatalogRow(ctx, res)
	}
	done <- summary
}

// record appends the source key to the failure ledger unless the
// transfer primitive already recorded a key for this failure. One
// logical failure, one ledger entry.
func (p *Pipeline) record(res FileResult) {
	if res.Recorded {
		return
	}
	if err := p.ledger.Append(res.Key.String()); err != nil {
		p.log.Error("failed to record key in failure ledger",
			"key", res.Key.String(), "error", err)
	}
}

func (p *Pipeline) writeCatalogRow(ctx context.Context, res FileResult) {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	rec := catalog.FileRecord{
		RunID:      p.runID,
		City:       res.Key.City,
		LocationID: res.Key.LocationID,
		Year:       res.Key.Year,
		SourceKey:  res.Key.String(),
		Outcome:    string(res.Outcome),
		Stage:      string(res.Stage),
		Attempts:   res.Attempts,
		Error:      errText,
		Checksum:   res.Checksum,
		RowCount:   res.RowCount,
	}
	if err := p.catalog.RecordFile(ctx, rec); err != nil {
		p.log.Warn("catalog record failed", "key", rec.SourceKey, "error", err)
	}
}

package pivoter

import (
	"context"
	"log/slog"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/storage"
)

// RetryDriver drains the failure ledger after the batch pass. It runs
// up to MaxPasses passes; within one pass every ledger entry is resolved
// to its source key, deduplicated, and re-driven through the transform
// unit up to UnitAttempts times. The unit is built on a DirectUploader,
// so the outer loop here is the only retry budget.
type RetryDriver struct {
	unit         *Unit
	ledger       ledger.Ledger
	maxPasses    int
	unitAttempts int
	delay        time.Duration
	log          *slog.Logger
}

// NewRetryDriver creates the post-batch retry loop.
func NewRetryDriver(unit *Unit, led ledger.Ledger, maxPasses, unitAttempts int, delay time.Duration) *RetryDriver {
	if maxPasses < 1 {
		maxPasses = 5
	}
	if unitAttempts < 1 {
		unitAttempts = 5
	}
	return &RetryDriver{
		unit:         unit,
		ledger:       led,
		maxPasses:    maxPasses,
		unitAttempts: unitAttempts,
		delay:        delay,
		log:          logging.Component("retry"),
	}
}

// Run drains the ledger until it is empty or the pass budget is gone.
// It returns the residual entries still in the ledger afterwards and
// the number of passes executed. Residue is not an error: the process
// leaves it for a future run.
func (d *RetryDriver) Run(ctx context.Context) ([]string, int, error) {
	passes := 0

	for pass := 1; pass <= d.maxPasses; pass++ {
		entries, err := d.ledger.ReadAll()
		if err != nil {
			return nil, passes, err
		}
		if len(entries) == 0 {
			return nil, passes, nil
		}

		passes++
		d.log.Info("retry pass started", "pass", pass, "entries", len(entries))
		if m := metrics.Get(); m != nil {
			m.IncRetryPasses()
		}

		residue := d.runPass(ctx, entries)

		if err := d.ledger.Rewrite(residue); err != nil {
			return residue, passes, err
		}
		if m := metrics.Get(); m != nil {
			m.SetLedgerSize(float64(len(residue)))
		}
		d.log.Info("retry pass finished", "pass", pass, "residual", len(residue))

		if len(residue) == 0 || ctx.Err() != nil {
			return residue, passes, nil
		}
	}

	final, err := d.ledger.ReadAll()
	return final, passes, err
}

// runPass re-drives every distinct source once. Success drops all
// ledger entries that resolved to that source; failure retains the
// original entry strings.
func (d *RetryDriver) runPass(ctx context.Context, entries []string) []string {
	// Ledger entries may be source, archive, or wide keys, and several
	// entries may resolve to the same source file.
	order := make([]storage.ObjectKey, 0, len(entries))
	groups := make(map[string][]string)
	var residue []string

	for _, entry := range entries {
		key, ok := storage.ParseObjectKey(entry)
		if !ok {
			d.log.Error("unparseable ledger entry retained", "entry", entry)
			residue = append(residue, entry)
			continue
		}
		src := key.Source()
		if _, seen := groups[src.String()]; !seen {
			order = append(order, src)
		}
		groups[src.String()] = append(groups[src.String()], entry)
	}

	for _, src := range order {
		if ctx.Err() != nil {
			// Cancelled mid-pass: everything not yet resolved stays.
			residue = append(residue, groups[src.String()]...)
			continue
		}
		if d.redrive(ctx, src) {
			continue
		}
		residue = append(residue, groups[src.String()]...)
	}
	return residue
}

// redrive runs the transform unit for one source, up to the per-key
// attempt budget with a fixed delay between failed attempts.
func (d *RetryDriver) redrive(ctx context.Context, src storage.ObjectKey) bool {
	for attempt := 1; attempt <= d.unitAttempts; attempt++ {
		res := d.unit.Process(ctx, src)
		if res.Outcome == OutcomeDone {
			return true
		}

		d.log.Warn("retry attempt failed",
			"key", src.String(),
			"attempt", attempt,
			"max_attempts", d.unitAttempts,
			"stage", string(res.Stage),
			"error", res.Err,
		)

		if attempt == d.unitAttempts {
			break
		}
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

package pivoter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/storage"
	"github.com/Quentincami/aq-pivoter/internal/tables"
	"github.com/Quentincami/aq-pivoter/internal/transfer"
	"github.com/Quentincami/aq-pivoter/internal/util"
)

// Unit runs the per-file lifecycle: fetch, decode, validate, archive,
// delete source, reshape, upload wide, final delete. Every error is
// contained and returned as a FileResult; sibling units are never
// affected.
type Unit struct {
	store         storage.Store
	uploader      transfer.Uploader
	decoder       *tables.Decoder
	scratchDir    string
	parquetMirror bool
	log           *slog.Logger
}

// NewUnit creates a transform unit. The uploader decides the retry
// semantics: RetryingUploader in batch mode, DirectUploader under the
// retry driver.
func NewUnit(store storage.Store, uploader transfer.Uploader, scratchDir string, parquetMirror bool) *Unit {
	return &Unit{
		store:         store,
		uploader:      uploader,
		decoder:       tables.NewDecoder(),
		scratchDir:    scratchDir,
		parquetMirror: parquetMirror,
		log:           logging.Component("unit"),
	}
}

// scratch holds the unique local paths of one task's artifacts. The
// UUID prefix keeps concurrent units from colliding.
type scratch struct {
	raw     string
	tabular string
	wide    string
	parquet string
}

func newScratch(dir string, key storage.ObjectKey) scratch {
	id := uuid.NewString()
	base := storage.StripCompressionSuffix(key.Filename)
	return scratch{
		raw:     filepath.Join(dir, id+"-raw-"+key.Filename),
		tabular: filepath.Join(dir, id+"-long-"+base),
		wide:    filepath.Join(dir, id+"-wide-"+base),
		parquet: filepath.Join(dir, id+"-wide-"+strings.TrimSuffix(base, ".csv")+".parquet"),
	}
}

// cleanup removes every scratch artifact, on every exit path.
func (s scratch) cleanup() {
	util.RemoveQuiet(s.raw)
	util.RemoveQuiet(s.tabular)
	util.RemoveQuiet(s.wide)
	util.RemoveQuiet(s.parquet)
}

// Process runs the full lifecycle for one source key.
func (u *Unit) Process(ctx context.Context, key storage.ObjectKey) FileResult {
	start := time.Now()
	src := key.Source()

	if err := util.EnsureDir(u.scratchDir); err != nil {
		return FileResult{Key: src, Outcome: OutcomeFailed, Stage: StageFetch,
			Err: fmt.Errorf("scratch dir: %w", err), Duration: time.Since(start)}
	}

	sc := newScratch(u.scratchDir, src)
	defer sc.cleanup()

	// run may resolve src to a different name (suffix ambiguity), so
	// the result carries the resolved key.
	res := u.run(ctx, src, sc)
	res.Duration = time.Since(start)
	u.observe(res)
	return res
}

// fetch downloads the source artifact. The name restored from an
// archive- or wide-form ledger entry is ambiguous (those layouts drop
// the compression suffix), so a NotFound on the compressed name falls
// through to the plain .csv variant before trying the archive copy. It
// returns the resolved source key, whether the fetched artifact still
// needs decoding, and whether it came from the archive copy.
func (u *Unit) fetch(ctx context.Context, src storage.ObjectKey, sc scratch) (storage.ObjectKey, bool, bool, error) {
	compressed := storage.IsCompressed(src.Filename)
	fetchPath := sc.tabular
	if compressed {
		fetchPath = sc.raw
	}

	err := u.store.Download(ctx, src.String(), fetchPath)
	if err == nil {
		return src, compressed, false, nil
	}
	if !storage.IsNotFound(err) {
		return src, false, false, fmt.Errorf("fetch %s: %w", src, err)
	}

	if alt, ok := src.Uncompressed(); ok {
		if found, exErr := u.store.Exists(ctx, alt.String()); exErr == nil && found {
			if aerr := u.store.Download(ctx, alt.String(), sc.tabular); aerr != nil {
				return src, false, false, fmt.Errorf("fetch %s: %w", alt, aerr)
			}
			return alt, false, false, nil
		}
	}

	// A residual entry may have lost its source after the archive step
	// completed; re-drive from the archive copy.
	archKey := src.Archive().String()
	if found, exErr := u.store.Exists(ctx, archKey); exErr != nil || !found {
		return src, false, false, fmt.Errorf("fetch %s: %w", src, err)
	}
	if aerr := u.store.Download(ctx, archKey, sc.tabular); aerr != nil {
		return src, false, false, fmt.Errorf("fetch archive copy %s: %w", archKey, aerr)
	}
	u.log.Info("source gone, resuming from archive copy", "key", src.String())
	return src, false, true, nil
}

func (u *Unit) run(ctx context.Context, src storage.ObjectKey, sc scratch) FileResult {
	fail := func(stage Stage, err error) FileResult {
		return FileResult{Key: src, Outcome: OutcomeFailed, Stage: stage, Err: err}
	}

	src, compressed, fromArchive, err := u.fetch(ctx, src, sc)
	if err != nil {
		return fail(StageFetch, err)
	}

	// Decode
	if compressed {
		if err := u.decoder.DecompressFile(sc.raw, sc.tabular); err != nil {
			return fail(StageDecode, fmt.Errorf("decode %s: %w", src, err))
		}
	}

	// Validate
	table, err := tables.ReadCSVFile(sc.tabular)
	if err != nil {
		if errors.Is(err, tables.ErrEmptyInput) {
			return FileResult{Key: src, Outcome: OutcomeEmpty, Stage: StageValidate, Err: err}
		}
		return fail(StageValidate, fmt.Errorf("validate %s: %w", src, err))
	}

	// Archive the decompressed bytes untouched, then delete the source.
	// The delete only happens after the upload confirmed success; on
	// archive failure the source survives for retry.
	if !fromArchive {
		r := u.uploader.Upload(ctx, sc.tabular, src.Archive().String())
		if !r.OK {
			return FileResult{Key: src, Outcome: OutcomeFailed, Stage: StageArchive,
				Attempts: r.Attempts, Err: r.Err, Recorded: r.Recorded}
		}
		if err := u.store.Delete(ctx, src.String()); err != nil && !storage.IsNotFound(err) {
			return fail(StageDelete, fmt.Errorf("delete source %s: %w", src, err))
		}
	}

	// Reshape long to wide.
	wide, err := tables.Pivot(table, src.LocationID)
	if err != nil {
		return fail(StageReshape, fmt.Errorf("pivot %s: %w", src, err))
	}
	if v := tables.ValidateWide(wide); !v.Passed {
		return fail(StageReshape, fmt.Errorf("wide validation %s: %s", src, strings.Join(v.Errors, "; ")))
	}
	if err := wide.WriteCSVFile(sc.wide); err != nil {
		return fail(StageReshape, err)
	}
	sum, err := tables.ChecksumFile(sc.wide)
	if err != nil {
		return fail(StageReshape, fmt.Errorf("checksum %s: %w", sc.wide, err))
	}

	// Upload wide
	r := u.uploader.Upload(ctx, sc.wide, src.Wide().String())
	if !r.OK {
		return FileResult{Key: src, Outcome: OutcomeFailed, Stage: StageUploadWide,
			Attempts: r.Attempts, Err: r.Err, Recorded: r.Recorded}
	}
	attempts := r.Attempts

	if u.parquetMirror {
		u.mirrorParquet(ctx, wide, src, sc)
	}

	// Redundant delete, a no-op when the post-archive delete already
	// removed the source.
	if err := u.store.Delete(ctx, src.String()); err != nil && !storage.IsNotFound(err) {
		return FileResult{Key: src, Outcome: OutcomeFailed, Stage: StageFinalDelete,
			Attempts: attempts, Err: fmt.Errorf("delete source %s: %w", src, err)}
	}

	return FileResult{
		Key:      src,
		Outcome:  OutcomeDone,
		Stage:    StageDone,
		Attempts: attempts,
		Checksum: sum,
		RowCount: int64(len(wide.Rows)),
	}
}

// mirrorParquet writes and uploads the optional parquet copy of the
// wide table. Best-effort: the CSV is the system of record, so mirror
// failures only warn.
func (u *Unit) mirrorParquet(ctx context.Context, wide *tables.Table, src storage.ObjectKey, sc scratch) {
	key := src.Wide()
	key.Filename = strings.TrimSuffix(key.Filename, ".csv") + ".parquet"

	if err := tables.WriteParquetFile(wide, sc.parquet); err != nil {
		u.log.Warn("parquet mirror write failed", "key", key.String(), "error", err)
		return
	}
	if err := u.store.Upload(ctx, sc.parquet, key.String()); err != nil {
		u.log.Warn("parquet mirror upload failed", "key", key.String(), "error", err)
	}
}

func (u *Unit) observe(res FileResult) {
	labels := metrics.Labels{City: res.Key.City, LocationID: res.Key.LocationID}

	switch res.Outcome {
	case OutcomeDone:
		u.log.Info("file processed",
			"key", res.Key.String(),
			"wide_uri", u.store.URI(res.Key.Wide().String()),
			"rows", res.RowCount,
			"duration", res.Duration.Round(time.Millisecond),
		)
		if m := metrics.Get(); m != nil {
			m.IncFilesProcessed(labels)
		}
	case OutcomeEmpty:
		u.log.Warn("file empty, skipping", "key", res.Key.String())
		if m := metrics.Get(); m != nil {
			m.IncFilesEmpty(labels)
		}
	default:
		u.log.Error("file failed",
			"key", res.Key.String(),
			"stage", string(res.Stage),
			"error", res.Err,
		)
		if m := metrics.Get(); m != nil {
			labels.Stage = string(res.Stage)
			m.IncFilesFailed(labels)
		}
	}
	if m := metrics.Get(); m != nil {
		m.ObserveFileDuration(metrics.Labels{City: res.Key.City, LocationID: res.Key.LocationID}, res.Duration.Seconds())
	}
}

// Package pivoter implements the transform-and-relocate pipeline: the
// per-file transform unit, the batch orchestrator with its shared
// worker pool, and the post-batch retry driver.
package pivoter

import (
	"fmt"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/storage"
)

// Partition is one unit of dispatch: all source files of a location in
// one year. It owns no state beyond its identity.
type Partition struct {
	City       string
	LocationID string
	Year       string
}

func (p Partition) String() string {
	return fmt.Sprintf("%s/%s/%s", p.City, p.LocationID, p.Year)
}

// Outcome classifies how processing one file ended.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
	OutcomeEmpty  Outcome = "empty"
)

// Stage names the lifecycle step a file reached. On failure it is the
// step that broke.
type Stage string

const (
	StageFetch       Stage = "fetch"
	StageDecode      Stage = "decode"
	StageValidate    Stage = "validate"
	StageArchive     Stage = "archive"
	StageDelete      Stage = "delete_source"
	StageReshape     Stage = "reshape"
	StageUploadWide  Stage = "upload_wide"
	StageFinalDelete Stage = "final_delete"
	StageDone        Stage = "done"
)

// FileResult is the explicit, contained outcome of one transform unit
// invocation. Failures never propagate past the unit boundary; callers
// read this struct instead.
type FileResult struct {
	Key      storage.ObjectKey
	Outcome  Outcome
	Stage    Stage
	Attempts int
	Err      error

	// Recorded is true when the transfer primitive already appended a
	// key to the failure ledger for this failure. The orchestrator
	// appends the source key itself only when this is false, so each
	// logical failure yields exactly one ledger entry.
	Recorded bool

	// Checksum of the wide artifact, set on success.
	Checksum string
	RowCount int64
	Duration time.Duration
}

// Summary aggregates the results of one batch pass. PartitionsFailed
// counts partitions whose listing failed before any file was processed;
// their files appear in no other counter.
type Summary struct {
	Partitions       int
	PartitionsFailed int
	Done             int
	Failed           int
	Empty            int
}

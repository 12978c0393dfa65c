// Package transfer implements the upload primitive: bounded retry with
// exponential backoff, and failure recording in the failure ledger.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/logging"
	"github.com/Quentincami/aq-pivoter/internal/metrics"
	"github.com/Quentincami/aq-pivoter/internal/storage"
)

// ErrAttemptsExhausted wraps the final upload error once the retry
// budget is gone.
var ErrAttemptsExhausted = errors.New("upload attempts exhausted")

// Result is the explicit outcome of an upload. Failure is returned here
// AND, in batch mode, recorded in the failure ledger; callers decide
// deletion and continuation from OK, never from the error channel alone.
type Result struct {
	OK       bool
	Attempts int
	Err      error
	Recorded bool // true when the remote key was appended to the ledger
}

// Uploader sends a local artifact to a remote key.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteKey string) Result
}

// RetryingUploader attempts an upload up to MaxAttempts times with
// exponential backoff, and records the remote key in the failure ledger
// on final exhaustion. Used by the main batch pass.
type RetryingUploader struct {
	store       storage.Store
	ledger      ledger.Ledger
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

// NewRetryingUploader creates the batch-mode uploader.
func NewRetryingUploader(store storage.Store, led ledger.Ledger, maxAttempts int, baseDelay time.Duration) *RetryingUploader {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &RetryingUploader{
		store:       store,
		ledger:      led,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		log:         logging.Component("transfer"),
	}
}

// Upload attempts the transfer. On success nothing is written to the
// ledger. On exhaustion the remote key is appended to the ledger and the
// failure surfaces in the returned Result.
func (u *RetryingUploader) Upload(ctx context.Context, localPath, remoteKey string) Result {
	var lastErr error

	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := u.baseDelay << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return u.exhausted(remoteKey, attempt, ctx.Err())
			}
		}

		err := u.store.Upload(ctx, localPath, remoteKey)
		if err == nil {
			return Result{OK: true, Attempts: attempt + 1}
		}
		lastErr = err

		if storage.IsNotFound(err) {
			// Local artifact or bucket is gone; retrying cannot help.
			u.log.Error("upload failed permanently", "key", remoteKey, "error", err)
			return u.exhausted(remoteKey, attempt+1, err)
		}

		u.log.Warn("upload attempt failed, retrying",
			"key", remoteKey,
			"attempt", attempt+1,
			"max_attempts", u.maxAttempts,
			"error", err,
		)

		if m := metrics.Get(); m != nil {
			m.IncUploadRetries(labelsForKey(remoteKey))
		}
	}

	return u.exhausted(remoteKey, u.maxAttempts, lastErr)
}

// exhausted records the failed key and builds the failure result.
func (u *RetryingUploader) exhausted(remoteKey string, attempts int, cause error) Result {
	err := fmt.Errorf("%w after %d attempts for %s: %v", ErrAttemptsExhausted, attempts, remoteKey, cause)

	recorded := true
	if appendErr := u.ledger.Append(remoteKey); appendErr != nil {
		recorded = false
		u.log.Error("failed to record key in failure ledger", "key", remoteKey, "error", appendErr)
	}

	if m := metrics.Get(); m != nil {
		m.IncUploadsExhausted(labelsForKey(remoteKey))
	}

	return Result{OK: false, Attempts: attempts, Err: err, Recorded: recorded}
}

// labelsForKey derives metric labels from a remote key's structure.
func labelsForKey(remoteKey string) metrics.Labels {
	if key, ok := storage.ParseObjectKey(remoteKey); ok {
		return metrics.Labels{City: key.City, LocationID: key.LocationID}
	}
	return metrics.Labels{}
}

// DirectUploader performs a single attempt with no ledger recording.
// The retry driver supplies its own outer retry loop, so the primitive's
// internal budget is bypassed.
type DirectUploader struct {
	store storage.Store
}

// NewDirectUploader creates the retry-driver uploader.
func NewDirectUploader(store storage.Store) *DirectUploader {
	return &DirectUploader{store: store}
}

// Upload performs one attempt; errors surface only in the Result.
func (u *DirectUploader) Upload(ctx context.Context, localPath, remoteKey string) Result {
	if err := u.store.Upload(ctx, localPath, remoteKey); err != nil {
		return Result{OK: false, Attempts: 1, Err: fmt.Errorf("upload %s: %w", remoteKey, err)}
	}
	return Result{OK: true, Attempts: 1}
}

var (
	_ Uploader = (*RetryingUploader)(nil)
	_ Uploader = (*DirectUploader)(nil)
)

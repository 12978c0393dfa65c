// Package storage provides the object store client, the structured
// object key type, and the work enumerator queries.
package storage

import (
	"context"
	"fmt"

	"gocloud.dev/gcerrors"
)

// Store abstracts the object store operations the pipeline depends on.
type Store interface {
	// Download fetches an object to a local file.
	Download(ctx context.Context, key, localPath string) error

	// Upload writes a local file to an object key.
	Upload(ctx context.Context, localPath, key string) error

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ListPrefixes lists the sub-prefixes one level below prefix
	// (delimiter-style listing), names without the trailing slash.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)

	// ListKeys lists all object keys under prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for the given key.
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "s3" | "gcs" | "file" | "mem"

	// Bucket name for s3/gcs.
	Bucket string

	// S3 (also works for B2, R2, MinIO)
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Root directory for the file backend.
	LocalDir string
}

// NewStore creates a storage backend based on configuration.
func NewStore(cfg StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.S3Endpoint, cfg.S3Region)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket)
	case "file":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for file backend")
		}
		return NewFileStore(cfg.LocalDir)
	case "mem":
		return NewMemStore()
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// IsNotFound reports whether err is an object-not-found error from the
// underlying blob driver.
func IsNotFound(err error) bool {
	return err != nil && gcerrors.Code(err) == gcerrors.NotFound
}

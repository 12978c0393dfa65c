package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local filesystem driver
	_ "gocloud.dev/blob/memblob"  // in-memory driver, used by tests
)

// NewFileStore opens a local directory tree as a bucket.
func NewFileStore(baseDir string) (Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", abs, err)
	}

	bucket, err := blob.OpenBucket(context.Background(),
		fmt.Sprintf("file://%s?create_dir=true", abs))
	if err != nil {
		return nil, fmt.Errorf("open file bucket %s: %w", abs, err)
	}

	return &blobStore{bucket: bucket, scheme: "file", name: abs}, nil
}

// NewMemStore opens an in-memory bucket. Contents do not survive the
// process; intended for tests.
func NewMemStore() (Store, error) {
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		return nil, fmt.Errorf("open mem bucket: %w", err)
	}
	return &blobStore{bucket: bucket, scheme: "mem"}, nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// blobStore implements Store over a gocloud blob.Bucket. All backends
// share this implementation; the per-backend constructors only differ in
// how they open the bucket.
type blobStore struct {
	bucket *blob.Bucket
	scheme string // "s3" | "gs" | "file" | "mem"
	name   string // bucket name or local root
}

// Download fetches an object into a local file.
func (s *blobStore) Download(ctx context.Context, key, localPath string) error {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open reader for %s: %w", key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", localPath, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("download %s: %w", key, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("close local file %s: %w", localPath, err)
	}
	return nil
}

// Upload writes a local file to an object key.
func (s *blobStore) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Delete removes an object.
func (s *blobStore) Delete(ctx context.Context, key string) error {
	return s.bucket.Delete(ctx, key)
}

// Exists checks whether an object is present.
func (s *blobStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// ListPrefixes returns the sub-prefix names one level below prefix.
func (s *blobStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix:    prefix,
		Delimiter: "/",
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list prefixes under %s: %w", prefix, err)
		}
		if !obj.IsDir {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}

	return names, nil
}

// ListKeys returns all object keys under prefix.
func (s *blobStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// URI returns the canonical URI for the given key.
func (s *blobStore) URI(key string) string {
	switch s.scheme {
	case "file":
		return "file://" + filepath.Join(s.name, key)
	case "mem":
		return "mem://" + key
	default:
		return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
	}
}

// Close releases the bucket connection.
func (s *blobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

var _ Store = (*blobStore)(nil)

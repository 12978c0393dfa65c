package pivoter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/Quentincami/aq-pivoter/internal/storage"
)

const longCSV = "datetime,parameter,value\n" +
	"2022-01-01T00:00,pm25,12.0\n" +
	"2022-01-01T00:00,no2,5.0\n"

const wideCSV = "datetime,sensor,pm25,no2\n" +
	"2022-01-01T00:00,3647,12.0,5.0\n"

func newMemStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewMemStore()
	if err != nil {
		t.Fatalf("mem store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func gzipBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func seedObject(t *testing.T, store storage.Store, key string, data []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Upload(context.Background(), path, key); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

func fetchObject(t *testing.T, store storage.Store, key string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fetch")
	if err := store.Download(context.Background(), key, path); err != nil {
		t.Fatalf("fetch %s: %v", key, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func objectExists(t *testing.T, store storage.Store, key string) bool {
	t.Helper()
	ok, err := store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists %s: %v", key, err)
	}
	return ok
}

func mustParseKey(t *testing.T, raw string) storage.ObjectKey {
	t.Helper()
	key, ok := storage.ParseObjectKey(raw)
	if !ok {
		t.Fatalf("unparseable key %s", raw)
	}
	return key
}

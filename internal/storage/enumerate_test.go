package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func seedObject(t *testing.T, store Store, key, content string) {
	t.Helper()
	local := filepath.Join(t.TempDir(), "seed")
	if err := os.WriteFile(local, []byte(content), 0644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	if err := store.Upload(context.Background(), local, key); err != nil {
		t.Fatalf("seed upload %s: %v", key, err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(StorageConfig{Backend: "mem"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := "lyon/3647/2022/loc3647-2022-01.csv.gz"
	seedObject(t, store, key, "payload bytes")

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("object should exist after upload")
	}

	local := filepath.Join(t.TempDir(), "out.csv.gz")
	if err := store.Download(ctx, key, local); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "payload bytes" {
		t.Errorf("downloaded content = %q", data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = store.Exists(ctx, key)
	if exists {
		t.Error("object should be gone after Delete")
	}
}

func TestDownloadMissingObjectIsNotFound(t *testing.T) {
	store, err := NewStore(StorageConfig{Backend: "mem"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	local := filepath.Join(t.TempDir(), "out")
	err = store.Download(context.Background(), "lyon/3647/2022/missing.csv.gz", local)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestListYearsSkipsNonYearPrefixes(t *testing.T) {
	store, err := NewStore(StorageConfig{Backend: "mem"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	seedObject(t, store, "lyon/3647/2021/loc3647-2021-01.csv.gz", "a")
	seedObject(t, store, "lyon/3647/2022/loc3647-2022-01.csv.gz", "b")
	seedObject(t, store, "lyon/3647/notes/readme.txt", "c")
	seedObject(t, store, "lyon/3648/2022/loc3648-2022-01.csv.gz", "d")

	years, err := ListYears(context.Background(), store, "lyon", "3647")
	if err != nil {
		t.Fatalf("ListYears failed: %v", err)
	}
	if len(years) != 2 || years[0] != "2021" || years[1] != "2022" {
		t.Errorf("ListYears = %v, want [2021 2022]", years)
	}
}

func TestListSourceFilesFiltersSuffix(t *testing.T) {
	store, err := NewStore(StorageConfig{Backend: "mem"})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	seedObject(t, store, "lyon/3647/2022/loc3647-2022-01.csv.gz", "a")
	seedObject(t, store, "lyon/3647/2022/loc3647-2022-02.csv", "b")
	seedObject(t, store, "lyon/3647/2022/manifest.json", "c")

	keys, err := ListSourceFiles(context.Background(), store, "lyon", "3647", "2022")
	if err != nil {
		t.Fatalf("ListSourceFiles failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ListSourceFiles returned %d keys, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if k.Zone != ZoneSource {
			t.Errorf("key %s has zone %q, want source", k, k.Zone)
		}
		if k.Year != "2022" || k.LocationID != "3647" {
			t.Errorf("unexpected key fields: %+v", k)
		}
	}
}

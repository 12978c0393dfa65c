package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestReadAllMissingFile(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))

	keys, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll on missing file should not error, got: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("ReadAll on missing file = %v, want empty", keys)
	}

	n, err := l.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Size = %d, want 0", n)
	}
}

func TestAppendAndReadAllPreservesOrder(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))

	want := []string{
		"lyon/3647/2020/loc3647-2020-01.csv.gz",
		"lyon/3647/2020/loc3647-2020-02.csv.gz",
		"lyon/3648/2021/loc3648-2021-01.csv.gz",
	}
	for _, k := range want {
		if err := l.Append(k); err != nil {
			t.Fatalf("Append(%s) failed: %v", k, err)
		}
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ReadAll returned %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConcurrentAppendsProduceExactlyNLines(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("lyon/%d/2022/loc%d-2022-01.csv.gz", id, id)
			if err := l.Append(key); err != nil {
				t.Errorf("worker %d Append failed: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	keys, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(keys) != workers {
		t.Fatalf("ledger has %d entries after %d concurrent appends", len(keys), workers)
	}

	// Every line must be one of the appended keys, intact.
	seen := make(map[string]bool, workers)
	for _, k := range keys {
		if seen[k] {
			t.Errorf("duplicate ledger entry: %s", k)
		}
		seen[k] = true
	}
	for i := 0; i < workers; i++ {
		key := fmt.Sprintf("lyon/%d/2022/loc%d-2022-01.csv.gz", i, i)
		if !seen[key] {
			t.Errorf("missing ledger entry: %s", key)
		}
	}
}

func TestRewriteReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed_files.txt")
	l := NewFileLedger(path)

	for i := 0; i < 5; i++ {
		if err := l.Append(fmt.Sprintf("lyon/3647/2022/loc3647-2022-%02d.csv.gz", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	residue := []string{"lyon/3647/2022/loc3647-2022-03.csv.gz"}
	if err := l.Rewrite(residue); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	keys, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != residue[0] {
		t.Errorf("after Rewrite keys = %v, want %v", keys, residue)
	}

	// No temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("rewrite temp file should be removed")
	}
}

func TestRewriteToEmpty(t *testing.T) {
	l := NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))

	if err := l.Append("lyon/3647/2022/loc3647-2022-01.csv.gz"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Rewrite(nil); err != nil {
		t.Fatalf("Rewrite(nil) failed: %v", err)
	}

	n, err := l.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Size after empty rewrite = %d, want 0", n)
	}
}

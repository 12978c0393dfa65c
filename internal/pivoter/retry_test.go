package pivoter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Quentincami/aq-pivoter/internal/ledger"
	"github.com/Quentincami/aq-pivoter/internal/transfer"
)

func newRetryLedger(t *testing.T, entries ...string) *ledger.FileLedger {
	t.Helper()
	led := ledger.NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))
	for _, e := range entries {
		if err := led.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	return led
}

func TestRetryDriverDrainsRecoverableEntry(t *testing.T) {
	store := newMemStore(t)
	srcKey := "lyon/3647/2022/recover.csv.gz"
	seedObject(t, store, srcKey, gzipBytes(t, longCSV))

	led := newRetryLedger(t, srcKey)
	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 5, 2, time.Millisecond)

	residue, passes, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(residue) != 0 {
		t.Errorf("residue = %v, want none", residue)
	}
	if passes != 1 {
		t.Errorf("passes = %d, want 1", passes)
	}
	if n, _ := led.Size(); n != 0 {
		t.Errorf("ledger size = %d, want 0", n)
	}
	if !objectExists(t, store, "lyon/wide/3647/2022/recover.csv") {
		t.Error("wide output missing after retry")
	}
}

func TestRetryDriverRetainsUnrecoverableKey(t *testing.T) {
	store := newMemStore(t)
	key := "lyon/3647/2022/hopeless.csv.gz"
	led := newRetryLedger(t, key)

	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 2, 2, time.Millisecond)

	residue, passes, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if passes != 2 {
		t.Errorf("passes = %d, want 2", passes)
	}
	if len(residue) != 1 || residue[0] != key {
		t.Errorf("residue = %v, want exactly [%s]", residue, key)
	}

	// The ledger holds exactly the residual entry afterwards.
	entries, err := led.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0] != key {
		t.Errorf("ledger = %v", entries)
	}
}

func TestRetryDriverDeduplicatesEntriesBySource(t *testing.T) {
	store := newMemStore(t)
	seedObject(t, store, "lyon/3647/2022/dup.csv.gz", gzipBytes(t, longCSV))

	// Source and archive forms of the same file, as a run that failed
	// across zones would leave behind.
	led := newRetryLedger(t,
		"lyon/3647/2022/dup.csv.gz",
		"lyon/archive/3647/2022/dup.csv",
	)

	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 5, 2, time.Millisecond)

	residue, _, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(residue) != 0 {
		t.Errorf("residue = %v, want none", residue)
	}
	if n, _ := led.Size(); n != 0 {
		t.Errorf("ledger size = %d, want 0", n)
	}
}

func TestRetryDriverRecoversPlainCSVFromArchiveEntry(t *testing.T) {
	store := newMemStore(t)
	// A plain .csv source whose archive upload exhausted its budget:
	// the ledger holds the archive-form key and the source still sits
	// at its uncompressed name.
	seedObject(t, store, "lyon/3647/2022/plain.csv", []byte(longCSV))
	led := newRetryLedger(t, "lyon/archive/3647/2022/plain.csv")

	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 5, 2, time.Millisecond)

	residue, _, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(residue) != 0 {
		t.Errorf("residue = %v, want none", residue)
	}
	if objectExists(t, store, "lyon/3647/2022/plain.csv") {
		t.Error("plain source should be deleted after retry")
	}
	if !objectExists(t, store, "lyon/archive/3647/2022/plain.csv") {
		t.Error("archive copy missing")
	}
	if !objectExists(t, store, "lyon/wide/3647/2022/plain.csv") {
		t.Error("wide output missing")
	}
}

func TestRetryDriverRetainsUnparseableEntry(t *testing.T) {
	store := newMemStore(t)
	led := newRetryLedger(t, "not-a-valid-key")

	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 1, 1, time.Millisecond)

	residue, _, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(residue) != 1 || residue[0] != "not-a-valid-key" {
		t.Errorf("residue = %v", residue)
	}
}

func TestRetryDriverNoEntriesNoPasses(t *testing.T) {
	store := newMemStore(t)
	led := ledger.NewFileLedger(filepath.Join(t.TempDir(), "failed_files.txt"))

	unit := NewUnit(store, transfer.NewDirectUploader(store), t.TempDir(), false)
	driver := NewRetryDriver(unit, led, 5, 5, time.Millisecond)

	residue, passes, err := driver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if passes != 0 || len(residue) != 0 {
		t.Errorf("passes = %d residue = %v, want 0 and none", passes, residue)
	}
}

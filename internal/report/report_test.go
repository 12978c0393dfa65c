package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	r := New("ab12cd34", Producer{Name: "aq-pivoter", Version: "1.2.0", GitSHA: "deadbeef"})
	r.Partitions = 2
	r.FilesDone = 7
	r.FilesFailed = 1
	r.Residual = []string{"lyon/3647/2022/broken.csv.gz"}
	r.Finish()

	path := filepath.Join(t.TempDir(), "state", "run_report.json")
	if err := r.WriteJSON(path); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != "ab12cd34" || got.FilesDone != 7 || len(got.Residual) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.FinishedAt.Before(got.StartedAt) {
		t.Error("finished_at before started_at")
	}

	// No temp file may survive the rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestEmptyResidualMarshalsAsArray(t *testing.T) {
	r := New("run1", Producer{Name: "aq-pivoter"})
	r.Finish()

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["residual"]) != "[]" {
		t.Errorf("residual = %s, want []", raw["residual"])
	}
}

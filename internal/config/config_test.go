package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.UploadAttempts != 5 {
		t.Errorf("upload attempts = %d, want 5", cfg.Pipeline.UploadAttempts)
	}
	if cfg.UploadBaseDelay() != 2*time.Second {
		t.Errorf("base delay = %v, want 2s", cfg.UploadBaseDelay())
	}
	if cfg.Retry.MaxPasses != 5 || cfg.Retry.UnitAttempts != 5 {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.RetryDelay() != 20*time.Second {
		t.Errorf("retry delay = %v, want 20s", cfg.RetryDelay())
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("backend = %s, want file", cfg.Storage.Backend)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
locations:
  - city: lyon
    location_id: "3647"
    year_from: 2020
    year_to: 2022
  - city: lyon
    location_id: "4021"
storage:
  backend: s3
  bucket: sensors
  s3_endpoint: https://s3.example.com
  s3_region: eu-west-1
pipeline:
  workers: 8
state:
  dir: /var/lib/pivoter
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Locations) != 2 {
		t.Fatalf("locations = %d, want 2", len(cfg.Locations))
	}
	loc := cfg.Locations[0]
	if loc.City != "lyon" || loc.LocationID != "3647" || loc.YearFrom != 2020 || loc.YearTo != 2022 {
		t.Errorf("location = %+v", loc)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "sensors" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.LedgerPath() != "/var/lib/pivoter/failed_files.txt" {
		t.Errorf("ledger path = %s", cfg.LedgerPath())
	}
	if cfg.ReportPath() != "/var/lib/pivoter/run_report.json" {
		t.Errorf("report path = %s", cfg.ReportPath())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: file
  local_dir: ./data
pipeline:
  workers: 2
`)
	t.Setenv("WORKERS", "6")
	t.Setenv("STORAGE_BACKEND", "mem")
	t.Setenv("STATE_DIR", "/tmp/pivoter-state")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.Workers != 6 {
		t.Errorf("workers = %d, want 6 from env", cfg.Pipeline.Workers)
	}
	if cfg.Storage.Backend != "mem" {
		t.Errorf("backend = %s, want mem from env", cfg.Storage.Backend)
	}
	if cfg.State.Dir != "/tmp/pivoter-state" {
		t.Errorf("state dir = %s", cfg.State.Dir)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "storage:\n  backend: ftp\n"},
		{"s3 without bucket", "storage:\n  backend: s3\n"},
		{"location missing id", "locations:\n  - city: lyon\n"},
		{"inverted year bounds", "locations:\n  - city: lyon\n    location_id: \"1\"\n    year_from: 2023\n    year_to: 2020\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, c.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

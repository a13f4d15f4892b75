package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"benchd/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, resolved, existed, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if existed {
		t.Fatal("expected missing config to report existed=false")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Workbench.BenchID != "bench-1" {
		t.Fatalf("unexpected default bench id: %q", cfg.Workbench.BenchID)
	}
	if cfg.Publish.Workers <= 0 {
		t.Fatal("expected positive default worker count")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[workbench]
bench_id = "  bench-7  "

[publish]
workers = 0
retry_ceiling = 3

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, existed, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !existed {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Workbench.BenchID != "bench-7" {
		t.Fatalf("bench id not trimmed: %q", cfg.Workbench.BenchID)
	}
	if cfg.Publish.Workers <= 0 {
		t.Fatal("expected worker count to be normalized to a positive value")
	}
	if cfg.Publish.RetryCeiling != 3 {
		t.Fatalf("retry ceiling not honored: %d", cfg.Publish.RetryCeiling)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("log format not lowercased: %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsEmptyBenchID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[workbench]\nbench_id = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "bench_id") {
		t.Fatalf("expected bench_id validation error, got %v", err)
	}
}

func TestValidateRejectsBadTargetURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[ledger]
enabled = true
node_url = "not a url"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected URL validation error")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, existed, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !existed {
		t.Fatal("expected sample config to exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	target := filepath.Join(home, "benchd-config.toml")
	stdout, stderr, err := runCLI(t,
		[]string{"config", "init", "--path", target},
		"/tmp/unused.sock", "")
	if err != nil {
		t.Fatalf("config init failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	requireContains(t, string(data), "bench_id")
}

func TestConfigInitRefusesExistingWithoutOverwrite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	target := filepath.Join(home, "benchd-config.toml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	_, _, err := runCLI(t, []string{"config", "init", "--path", target}, "/tmp/unused.sock", "")
	if err == nil {
		t.Fatal("expected error when config exists")
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "/tmp/unused.sock", "")
	if err != nil {
		t.Fatalf("config init --overwrite failed: %v", err)
	}
}

func TestConfigValidateWithDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	stdout, stderr, err := runCLI(t, []string{"config", "validate"}, "/tmp/unused.sock", "")
	if err != nil {
		t.Fatalf("config validate failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "Config file did not exist; defaults were used")
	requireContains(t, stdout, "Configuration valid")
}

package main

import (
	"context"
	"strings"
	"testing"
)

func TestCLIStatusWhenDaemonNotStarted(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, stderr, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status failed: %v (stderr: %s)", err, stderr)
	}

	requireContains(t, stdout, "System Status")
	requireContains(t, stdout, "Not running")
	requireContains(t, stdout, "bench-test")
	requireContains(t, stdout, "Queue is empty")
}

func TestCLISessionFlow(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, stderr, err := runCLI(t,
		[]string{"employee", "add", "E1", "--card", "card-1", "--name", "Alex"},
		env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("employee add failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "Employee E1 saved")

	stdout, stderr, err = runCLI(t,
		[]string{"unit", "create", "widget-mk2"},
		env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("unit create failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "Barcode: ")
	barcode := ""
	for _, line := range strings.Split(stdout, "\n") {
		if rest, ok := strings.CutPrefix(line, "Barcode: "); ok {
			barcode = strings.TrimSpace(rest)
		}
	}
	if len(barcode) != 12 {
		t.Fatalf("expected 12 digit barcode, got %q", barcode)
	}

	stdout, _, err = runCLI(t, []string{"session", "login", "card-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session login failed: %v", err)
	}
	requireContains(t, stdout, "awaiting_unit")

	stdout, _, err = runCLI(t, []string{"session", "bind", barcode}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session bind failed: %v", err)
	}
	requireContains(t, stdout, "in_progress")

	if _, _, err = runCLI(t, []string{"session", "stage", "start", "assembly"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("stage start failed: %v", err)
	}
	if _, _, err = runCLI(t, []string{"session", "stage", "end", "--outcome", "completed"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("stage end failed: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"session", "finalize"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("session finalize failed: %v", err)
	}
	requireContains(t, stdout, "Evidence record ")

	stdout, _, err = runCLI(t, []string{"publications", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("publications list failed: %v", err)
	}
	requireContains(t, stdout, "content_store")
	requireContains(t, stdout, "pending")
}

func TestCLIModelRequire(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, stderr, err := runCLI(t,
		[]string{"model", "require", "widget-mk2", "inspection", "--media"},
		env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("model require failed: %v (stderr: %s)", err, stderr)
	}
	requireContains(t, stdout, "Model widget-mk2 now requires stage inspection")

	reqs, err := env.store.ModelRequirements(context.Background(), "widget-mk2")
	if err != nil {
		t.Fatalf("ModelRequirements: %v", err)
	}
	if len(reqs) != 1 || !reqs[0].RequiresMedia {
		t.Fatalf("requirement not persisted: %+v", reqs)
	}
}

func TestCLILoginUnknownCardFails(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"session", "login", "no-such-card"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown card")
	}
}

func TestCLIPublicationRetryNoOp(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t,
		[]string{"publications", "retry", "rec-missing", "content_store"},
		env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("publications retry failed: %v", err)
	}
	requireContains(t, stdout, "nothing to do")
}

func TestCLIDialErrorMentionsStart(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, _, err := runCLI(t, []string{"session", "logout"}, "/nonexistent/benchd.sock", "")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "bench start") {
		t.Fatalf("expected hint to start the daemon, got %v", err)
	}
}

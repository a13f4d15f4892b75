package daemon

import (
	"context"
	"testing"
	"time"

	"benchd/internal/logging"
	"benchd/internal/publish"
	"benchd/internal/services/periphery"
	"benchd/internal/session"
	"benchd/internal/testsupport"
	"benchd/internal/workbench"
)

func newTestDaemon(t *testing.T, apiBind string) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workbench.APIBind = apiBind
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	sup := workbench.NewSupervisor(cfg, st, logger, nil, nil, nil, nil)
	pipeline := publish.NewPipeline(cfg, st, logger, nil)
	d, err := New(cfg, st, logger, sup, pipeline, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

type scriptedScanner struct {
	events chan periphery.IdentityEvent
}

func (s *scriptedScanner) Scan(ctx context.Context) (*periphery.IdentityEvent, error) {
	select {
	case ev := <-s.events:
		return &ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestScanLoopDrivesSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workbench.APIBind = ""
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	ctx := context.Background()

	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	sup := workbench.NewSupervisor(cfg, st, logger, nil, nil, nil, nil)
	pipeline := publish.NewPipeline(cfg, st, logger, nil)
	d, err := New(cfg, st, logger, sup, pipeline, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	scanner := &scriptedScanner{events: make(chan periphery.IdentityEvent, 2)}
	scanner.events <- periphery.IdentityEvent{Kind: periphery.KindRFID, Payload: "card-1"}
	scanner.events <- periphery.IdentityEvent{Kind: periphery.KindBarcode, Payload: "100200300400"}
	d.SetScanner(scanner)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if d.Status(ctx).Bench.State == session.StateInProgress {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never reached in_progress, state = %s", d.Status(ctx).Bench.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.Stop()
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t, "")
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.PID <= 0 {
		t.Fatalf("pid = %d", status.PID)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("daemon should report stopped")
	}

	// The lock is released; a fresh start must succeed.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestSecondInstanceBlockedByLock(t *testing.T) {
	first := newTestDaemon(t, "")
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A second daemon over the same log dir contends on the same lock file.
	cfg := testsupport.NewConfig(t)
	cfg.Paths = first.cfg.Paths
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	sup := workbench.NewSupervisor(cfg, st, logger, nil, nil, nil, nil)
	pipeline := publish.NewPipeline(cfg, st, logger, nil)
	second, err := New(cfg, st, logger, sup, pipeline, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		second.Close()
	})

	if err := second.Start(ctx); err == nil {
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "completed", want: "completed"},
		{raw: "FAILED", want: "failed"},
		{raw: " skipped ", want: "skipped"},
		{raw: "", want: "completed"},
		{raw: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseOutcome(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseOutcome(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOutcome(%q): %v", tt.raw, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("parseOutcome(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

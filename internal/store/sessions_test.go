package store_test

import (
	"context"
	"testing"

	"benchd/internal/session"
	"benchd/internal/testsupport"
)

func TestSaveSessionRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	sess := session.New("bench-test")
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	if err := sess.BindOperator("E1", "Alex"); err != nil {
		t.Fatalf("BindOperator: %v", err)
	}
	if err := sess.BindUnit("U1", false); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}
	if err := sess.StartStage("assembly"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := sess.EndStage(session.OutcomeCompleted, session.Artifacts{MediaHash: "hash"}); err != nil {
		t.Fatalf("EndStage: %v", err)
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}

	loaded, err := st.SessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionByID failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected session")
	}
	if loaded.State != session.StateInProgress {
		t.Fatalf("State = %s, want %s", loaded.State, session.StateInProgress)
	}
	if len(loaded.Stages) != 1 || loaded.Stages[0].Artifacts.MediaHash != "hash" {
		t.Fatalf("stage snapshot not preserved: %#v", loaded.Stages)
	}
}

func TestActiveSessionForBenchSkipsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()

	aborted := session.New("bench-test")
	if err := aborted.Abort("operator walked away"); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := st.SaveSession(ctx, aborted); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	active, err := st.ActiveSessionForBench(ctx, "bench-test")
	if err != nil {
		t.Fatalf("ActiveSessionForBench failed: %v", err)
	}
	if active != nil {
		t.Fatalf("aborted session reported active: %#v", active)
	}

	live := session.New("bench-test")
	if err := st.SaveSession(ctx, live); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	active, err = st.ActiveSessionForBench(ctx, "bench-test")
	if err != nil {
		t.Fatalf("ActiveSessionForBench failed: %v", err)
	}
	if active == nil || active.ID != live.ID {
		t.Fatalf("expected live session, got %#v", active)
	}
}

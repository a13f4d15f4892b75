package workbench

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"benchd/internal/config"
	"benchd/internal/evidence"
	"benchd/internal/services/periphery"
	"benchd/internal/session"
	"benchd/internal/store"
	"benchd/internal/testsupport"
)

type fakeCamera struct {
	started  int
	stopped  int
	startErr error
	stopErr  error
	ref      periphery.MediaRef
}

func (c *fakeCamera) StartRecording(ctx context.Context, operatorID string) (periphery.JobHandle, error) {
	c.started++
	if c.startErr != nil {
		return periphery.JobHandle{}, c.startErr
	}
	return periphery.JobHandle{ID: fmt.Sprintf("job-%d", c.started)}, nil
}

func (c *fakeCamera) StopRecording(ctx context.Context, handle periphery.JobHandle) (periphery.MediaRef, error) {
	c.stopped++
	if c.stopErr != nil {
		return periphery.MediaRef{}, c.stopErr
	}
	return c.ref, nil
}

type fakePrinter struct {
	jobs []periphery.PrintSpec
	err  error
}

func (p *fakePrinter) Print(ctx context.Context, spec periphery.PrintSpec) (periphery.PrintReceipt, error) {
	p.jobs = append(p.jobs, spec)
	if p.err != nil {
		return periphery.PrintReceipt{}, p.err
	}
	return periphery.PrintReceipt{JobID: "print-1"}, nil
}

func newTestSupervisor(t *testing.T, camera periphery.CameraController, printer periphery.PrinterController) (*Supervisor, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.ContentStore.Enabled = true
	cfg.Ledger.Enabled = true
	cfg.ShortLink.Enabled = false
	st := testsupport.MustOpenStore(t, cfg)
	sup := NewSupervisor(cfg, st, nil, nil, nil, camera, printer)
	return sup, st, cfg
}

func runThroughStage(t *testing.T, sup *Supervisor, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, "100200300400"); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}
	if err := sup.StartStage(ctx, "assembly"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := sup.EndStage(ctx, session.OutcomeCompleted); err != nil {
		t.Fatalf("EndStage: %v", err)
	}
}

func TestLoginUnknownCard(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, nil, nil)

	_, err := sup.Login(context.Background(), "no-such-card")
	if !errors.Is(err, ErrUnknownEmployee) {
		t.Fatalf("expected ErrUnknownEmployee, got %v", err)
	}
	if got := sup.Status().State; got != session.StateIdle {
		t.Fatalf("bench should stay idle after rejected login, state = %s", got)
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	camera := &fakeCamera{ref: periphery.MediaRef{Path: "/media/rec-1.mp4", Hash: "abc123"}}
	sup, st, _ := newTestSupervisor(t, camera, nil)
	ctx := context.Background()
	runThroughStage(t, sup, st)

	row, err := sup.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if row.UnitID != "U1" {
		t.Fatalf("evidence unit = %q, want U1", row.UnitID)
	}
	if camera.started != 1 || camera.stopped != 1 {
		t.Fatalf("camera starts/stops = %d/%d, want 1/1", camera.started, camera.stopped)
	}

	pubs, err := st.PublicationsForRecord(ctx, row.ID)
	if err != nil {
		t.Fatalf("PublicationsForRecord: %v", err)
	}
	targets := make(map[string]bool, len(pubs))
	for _, pub := range pubs {
		targets[pub.Target] = true
		if pub.Status != store.PubPending {
			t.Fatalf("publication %s status = %s, want pending", pub.Target, pub.Status)
		}
	}
	if !targets["content_store"] || !targets["ledger"] {
		t.Fatalf("enabled targets missing from queue: %v", targets)
	}
	if targets["short_link"] {
		t.Fatal("disabled short_link target was enqueued")
	}

	unit, err := st.UnitByID(ctx, "U1")
	if err != nil {
		t.Fatalf("UnitByID: %v", err)
	}
	if !unit.Finalized {
		t.Fatal("unit not marked finalized")
	}
	if got := sup.Status().State; got != session.StateIdle {
		t.Fatalf("bench should be free after finalize, state = %s", got)
	}
}

func TestSecondLoginWhileSessionActive(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()
	runThroughStage(t, sup, st)
	testsupport.SeedEmployee(t, st, "E2", "card-2", "Brook")

	if _, err := sup.Login(ctx, "card-2"); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
	if _, err := sup.Login(ctx, "card-1"); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("same-card relogin: expected ErrSessionAlreadyActive, got %v", err)
	}
	if got := sup.Status().State; got != session.StateInProgress {
		t.Fatalf("session state = %s, want in_progress after rejected logins", got)
	}
}

func TestFinalizeEnforcesModelRequirements(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()

	req := &store.StageRequirement{Model: "widget-mk2", Stage: "inspection"}
	if err := st.SetModelRequirement(ctx, req); err != nil {
		t.Fatalf("SetModelRequirement: %v", err)
	}

	runThroughStage(t, sup, st)

	if _, err := sup.Finalize(ctx); !errors.Is(err, evidence.ErrIncompleteSession) {
		t.Fatalf("expected ErrIncompleteSession for missing mandatory stage, got %v", err)
	}
	if got := sup.Status().State; got != session.StateInProgress {
		t.Fatalf("session state = %s, want in_progress so the stage can still run", got)
	}

	if err := sup.StartStage(ctx, "inspection"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := sup.EndStage(ctx, session.OutcomeCompleted); err != nil {
		t.Fatalf("EndStage: %v", err)
	}
	if _, err := sup.Finalize(ctx); err != nil {
		t.Fatalf("Finalize after mandatory stage: %v", err)
	}
}

func TestFinalizeRejectsUnknownSubunitRecord(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()

	runThroughStage(t, sup, st)
	first, err := sup.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize plain unit: %v", err)
	}

	composite := &store.Unit{ID: "U2", Barcode: "200300400500", Model: "rack-mk1", IsComposite: true}
	if err := st.UpsertUnit(ctx, composite); err != nil {
		t.Fatalf("UpsertUnit: %v", err)
	}
	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, composite.Barcode); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}
	if err := sup.StartStage(ctx, "rack assembly"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := sup.EndStage(ctx, session.OutcomeCompleted); err != nil {
		t.Fatalf("EndStage: %v", err)
	}

	if _, err := sup.Finalize(ctx, "no-such-record-1"); !errors.Is(err, evidence.ErrSubunitNotFinalized) {
		t.Fatalf("expected ErrSubunitNotFinalized for a dangling id, got %v", err)
	}

	row, err := sup.Finalize(ctx, first.ID)
	if err != nil {
		t.Fatalf("Finalize composite with real sub-unit record: %v", err)
	}
	if row.UnitID != "U2" {
		t.Fatalf("evidence unit = %q, want U2", row.UnitID)
	}
}

func TestBindUnknownBarcodeRegistersUnit(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()

	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sess, err := sup.BindUnit(ctx, "999888777666")
	if err != nil {
		t.Fatalf("BindUnit on unseen barcode: %v", err)
	}
	if sess.State != session.StateInProgress {
		t.Fatalf("state = %s, want in_progress", sess.State)
	}

	unit, err := st.UnitByBarcode(ctx, "999888777666")
	if err != nil {
		t.Fatalf("UnitByBarcode: %v", err)
	}
	if unit == nil {
		t.Fatal("expected scan to register the unit")
	}
	if unit.SessionID != sess.ID {
		t.Fatalf("unit claim = %q, want %q", unit.SessionID, sess.ID)
	}
}

func TestBindUnitBusyOnAnotherBench(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	if err := st.ClaimUnit(ctx, "U1", "session-elsewhere"); err != nil {
		t.Fatalf("ClaimUnit: %v", err)
	}

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err := sup.BindUnit(ctx, "100200300400")
	if !errors.Is(err, store.ErrUnitBusy) {
		t.Fatalf("expected ErrUnitBusy, got %v", err)
	}
	if got := sup.Status().State; got != session.StateAwaitingUnit {
		t.Fatalf("session should still await a unit, state = %s", got)
	}
}

func TestCameraStopFailureFailsStageOnly(t *testing.T) {
	camera := &fakeCamera{stopErr: errors.New("gateway timeout")}
	sup, st, _ := newTestSupervisor(t, camera, nil)
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, "100200300400"); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}
	if err := sup.StartStage(ctx, "inspection"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	err := sup.EndStage(ctx, session.OutcomeCompleted)
	if err == nil {
		t.Fatal("expected camera failure to surface")
	}

	status := sup.Status()
	if status.State != session.StateInProgress {
		t.Fatalf("session state = %s, want in_progress", status.State)
	}
	if status.OpenStage != "" {
		t.Fatalf("stage should be closed, still open: %s", status.OpenStage)
	}

	sess, lookupErr := st.SessionByID(ctx, status.SessionID)
	if lookupErr != nil {
		t.Fatalf("SessionByID: %v", lookupErr)
	}
	stage := sess.Stages[len(sess.Stages)-1]
	if stage.Outcome != session.OutcomeFailed {
		t.Fatalf("stage outcome = %s, want failed", stage.Outcome)
	}
	if stage.Artifacts.MediaPath != "" {
		t.Fatalf("failed stage should carry no media, got %q", stage.Artifacts.MediaPath)
	}

	// The stage can be rerun in the same session.
	if startErr := sup.StartStage(ctx, "inspection"); startErr != nil {
		t.Fatalf("rerun StartStage: %v", startErr)
	}
}

func TestCameraStartFailureKeepsStageClosed(t *testing.T) {
	camera := &fakeCamera{startErr: errors.New("camera offline")}
	sup, st, _ := newTestSupervisor(t, camera, nil)
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, "100200300400"); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}

	if err := sup.StartStage(ctx, "assembly"); err == nil {
		t.Fatal("expected camera start failure to surface")
	}
	if got := sup.Status().OpenStage; got != "" {
		t.Fatalf("no stage should be open after failed start, got %s", got)
	}
}

func TestAbortReleasesUnitClaim(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()
	runThroughStage(t, sup, st)

	if err := sup.Abort(ctx, "operator requested"); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if got := sup.Status().State; got != session.StateIdle {
		t.Fatalf("bench should be free after abort, state = %s", got)
	}

	unit, err := st.UnitByID(ctx, "U1")
	if err != nil {
		t.Fatalf("UnitByID: %v", err)
	}
	if unit.SessionID != "" {
		t.Fatalf("unit still claimed by %s", unit.SessionID)
	}
	if unit.Finalized {
		t.Fatal("aborted unit must stay unfinalized")
	}

	// A fresh session can pick the unit up again.
	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, "100200300400"); err != nil {
		t.Fatalf("second BindUnit: %v", err)
	}
}

func TestLogoutBeforeUnit(t *testing.T) {
	sup, st, _ := newTestSupervisor(t, nil, nil)
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	// A second badge of the same card releases the bench.
	err := sup.HandleIdentity(ctx, periphery.IdentityEvent{Kind: periphery.KindRFID, Payload: "card-1"})
	if err != nil {
		t.Fatalf("HandleIdentity logout: %v", err)
	}
	if got := sup.Status().EmployeeName; got != "" {
		t.Fatalf("employee still bound after logout: %s", got)
	}
}

func TestResumeAdoptsSnapshotAndClosesOpenStage(t *testing.T) {
	camera := &fakeCamera{ref: periphery.MediaRef{Path: "/media/rec-1.mp4", Hash: "abc123"}}
	sup, st, cfg := newTestSupervisor(t, camera, nil)
	ctx := context.Background()
	testsupport.SeedEmployee(t, st, "E1", "card-1", "Alex")
	testsupport.SeedUnit(t, st, "U1", "100200300400", "widget-mk2")

	if _, err := sup.Login(ctx, "card-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sup.BindUnit(ctx, "100200300400"); err != nil {
		t.Fatalf("BindUnit: %v", err)
	}
	if err := sup.StartStage(ctx, "assembly"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	// A new supervisor over the same store stands in for a restarted daemon.
	restarted := NewSupervisor(cfg, st, nil, nil, nil, camera, nil)
	if err := restarted.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	status := restarted.Status()
	if status.State != session.StateInProgress {
		t.Fatalf("resumed state = %s, want in_progress", status.State)
	}
	if status.OpenStage != "" {
		t.Fatalf("orphaned stage should be closed on resume, still open: %s", status.OpenStage)
	}
	if status.StagesClosed != 1 {
		t.Fatalf("stages closed = %d, want 1", status.StagesClosed)
	}
}

func TestCreateUnitPrintsLabel(t *testing.T) {
	printer := &fakePrinter{}
	sup, st, _ := newTestSupervisor(t, nil, printer)
	ctx := context.Background()

	unit, err := sup.CreateUnit(ctx, "widget-mk2", false)
	if err != nil {
		t.Fatalf("CreateUnit: %v", err)
	}
	if len(unit.Barcode) != 12 {
		t.Fatalf("barcode %q length = %d, want 12", unit.Barcode, len(unit.Barcode))
	}
	if len(printer.jobs) != 1 {
		t.Fatalf("print jobs = %d, want 1", len(printer.jobs))
	}
	if printer.jobs[0].Barcode != unit.Barcode {
		t.Fatalf("printed barcode %q, want %q", printer.jobs[0].Barcode, unit.Barcode)
	}

	stored, err := st.UnitByBarcode(ctx, unit.Barcode)
	if err != nil {
		t.Fatalf("UnitByBarcode: %v", err)
	}
	if stored == nil || stored.ID != unit.ID {
		t.Fatalf("created unit not resolvable by barcode")
	}
}

func TestPrinterFailureDoesNotBlockCreateUnit(t *testing.T) {
	printer := &fakePrinter{err: errors.New("printer jam")}
	sup, _, _ := newTestSupervisor(t, nil, printer)

	if _, err := sup.CreateUnit(context.Background(), "widget-mk2", false); err != nil {
		t.Fatalf("CreateUnit should tolerate printer failure: %v", err)
	}
}

func TestShortLinkSettlePrintsQRLabel(t *testing.T) {
	printer := &fakePrinter{}
	camera := &fakeCamera{ref: periphery.MediaRef{Path: "/media/rec-1.mp4", Hash: "abc123"}}
	sup, st, _ := newTestSupervisor(t, camera, printer)
	ctx := context.Background()
	runThroughStage(t, sup, st)

	row, err := sup.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sup.HandlePublicationSettled(ctx, &store.Publication{
		RecordID: row.ID,
		Target:   "short_link",
	}, "https://sl.example/unit-U1")

	if len(printer.jobs) != 1 {
		t.Fatalf("print jobs = %d, want 1", len(printer.jobs))
	}
	if printer.jobs[0].QRContent != "https://sl.example/unit-U1" {
		t.Fatalf("qr content = %q", printer.jobs[0].QRContent)
	}
}

func TestDeriveBarcode(t *testing.T) {
	got := DeriveBarcode("0d7a49a2-3f7b-4c6d-8e1a-2b3c4d5e6f70")
	if len(got) != 12 {
		t.Fatalf("barcode %q length = %d, want 12", got, len(got))
	}
	for _, r := range got {
		if r < '0' || r > '9' {
			t.Fatalf("barcode %q contains non-digit %q", got, r)
		}
	}
	if again := DeriveBarcode("0d7a49a2-3f7b-4c6d-8e1a-2b3c4d5e6f70"); again != got {
		t.Fatalf("barcode derivation not deterministic: %q vs %q", again, got)
	}
}

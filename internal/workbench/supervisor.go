package workbench

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"benchd/internal/config"
	"benchd/internal/evidence"
	"benchd/internal/logging"
	"benchd/internal/metrics"
	"benchd/internal/notifications"
	"benchd/internal/publish"
	"benchd/internal/services/periphery"
	"benchd/internal/session"
	"benchd/internal/store"
)

// Supervisor owns the bench's active session and mediates its peripherals.
type Supervisor struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	recorder *metrics.Recorder
	notifier notifications.Service

	camera  periphery.CameraController
	printer periphery.PrinterController

	mu        sync.Mutex
	current   *session.Session
	recording *periphery.JobHandle
}

// NewSupervisor constructs a supervisor. Camera and printer may be nil when
// the corresponding peripheral is disabled.
func NewSupervisor(
	cfg *config.Config,
	st *store.Store,
	logger *slog.Logger,
	recorder *metrics.Recorder,
	notifier notifications.Service,
	camera periphery.CameraController,
	printer periphery.PrinterController,
) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		cfg:      cfg,
		store:    st,
		logger:   logger.With(logging.String(logging.FieldComponent, "workbench")),
		recorder: recorder,
		notifier: notifier,
		camera:   camera,
		printer:  printer,
	}
}

// Resume adopts a session that survived a daemon restart. Any recording that
// was running is gone; an open stage is closed as failed so the operator can
// rerun it.
func (s *Supervisor) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.ActiveSessionForBench(ctx, s.cfg.Workbench.BenchID)
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	if sess == nil {
		return nil
	}

	if open := sess.OpenStage(); open != nil {
		if err := sess.EndStage(session.OutcomeFailed, session.Artifacts{}); err == nil {
			s.logger.Warn("closed stage left open by previous run",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.String(logging.FieldStage, open.Name),
				logging.String(logging.FieldEventType, "stage_reclaimed"),
			)
			if err := s.store.SaveSession(ctx, sess); err != nil {
				return fmt.Errorf("save reclaimed session: %w", err)
			}
		}
	}

	s.current = sess
	s.logger.Info("resumed session from snapshot",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String("state", string(sess.State)),
	)
	return nil
}

// Login authorizes the operator whose RFID card was scanned, opening a new
// session if the bench is free.
func (s *Supervisor) Login(ctx context.Context, cardID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		switch s.current.State {
		case session.StateIdle, session.StateAwaitingOperator:
		default:
			return nil, fmt.Errorf("%w: session %s is %s", ErrSessionAlreadyActive, s.current.ID, s.current.State)
		}
	}

	emp, err := s.store.EmployeeByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: card %s", ErrUnknownEmployee, cardID)
	}

	if s.current == nil {
		s.current = session.New(s.cfg.Workbench.BenchID)
	}
	if err := s.current.BindOperator(emp.ID, emp.Name); err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, s.current); err != nil {
		return nil, err
	}

	s.logger.Info("operator logged in",
		logging.String(logging.FieldSessionID, s.current.ID),
		logging.String(logging.FieldEmployeeID, emp.ID),
	)
	return s.current, nil
}

// Logout releases the operator binding before a unit is assigned.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}
	employeeID := s.current.EmployeeID
	if err := s.current.Logout(); err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, s.current); err != nil {
		return err
	}
	s.logger.Info("operator logged out",
		logging.String(logging.FieldSessionID, s.current.ID),
		logging.String(logging.FieldEmployeeID, employeeID),
	)
	return nil
}

// BindUnit claims the scanned unit for the session and starts work on it.
// An unseen barcode registers a new unit on the spot; the operator fills in
// the model later through the admin surface.
func (s *Supervisor) BindUnit(ctx context.Context, barcode string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNoSession
	}

	unit, err := s.store.UnitByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		unit = &store.Unit{
			ID:      uuid.NewString(),
			Barcode: barcode,
		}
		if err := s.store.UpsertUnit(ctx, unit); err != nil {
			return nil, err
		}
		s.logger.Info("unit registered from scan",
			logging.String(logging.FieldUnitID, unit.ID),
			logging.String("barcode", barcode),
		)
	}

	if err := s.store.ClaimUnit(ctx, unit.ID, s.current.ID); err != nil {
		return nil, err
	}
	if err := s.current.BindUnit(unit.ID, unit.IsComposite); err != nil {
		// The claim is ours; give it back before reporting the bad
		// transition.
		_ = s.store.ReleaseUnit(ctx, unit.ID, s.current.ID)
		return nil, err
	}
	if err := s.store.SaveSession(ctx, s.current); err != nil {
		return nil, err
	}

	s.logger.Info("unit bound to session",
		logging.String(logging.FieldSessionID, s.current.ID),
		logging.String(logging.FieldUnitID, unit.ID),
	)
	if s.notifier != nil {
		_ = s.notifier.Publish(ctx, notifications.EventSessionStarted, notifications.Payload{
			"unit":     unit.ID,
			"employee": s.current.EmployeeName,
			"bench":    s.cfg.Workbench.BenchID,
		})
	}
	return s.current, nil
}

// HandleIdentity routes a normalized scan: RFID cards log operators in and
// out, barcodes bind units.
func (s *Supervisor) HandleIdentity(ctx context.Context, ev periphery.IdentityEvent) error {
	switch ev.Kind {
	case periphery.KindRFID:
		s.mu.Lock()
		sess := s.current
		s.mu.Unlock()
		if sess != nil && sess.State == session.StateAwaitingUnit {
			// Second badge before a unit is scanned releases the bench.
			return s.Logout(ctx)
		}
		_, err := s.Login(ctx, ev.Payload)
		return err
	case periphery.KindBarcode:
		_, err := s.BindUnit(ctx, ev.Payload)
		return err
	default:
		return fmt.Errorf("unrecognized identity kind %q", ev.Kind)
	}
}

// StartStage opens a named production stage, starting the camera when one is
// attached. A camera that does not answer keeps the stage closed.
func (s *Supervisor) StartStage(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}

	var handle *periphery.JobHandle
	if s.camera != nil {
		h, err := s.camera.StartRecording(ctx, s.current.EmployeeID)
		if err != nil {
			s.recorder.IncPeripheryError("camera")
			return fmt.Errorf("start recording: %w", err)
		}
		handle = &h
	}

	if err := s.current.StartStage(name); err != nil {
		if handle != nil {
			_, _ = s.camera.StopRecording(ctx, *handle)
		}
		return err
	}
	s.recording = handle

	if err := s.store.SaveSession(ctx, s.current); err != nil {
		return err
	}
	s.logger.Info("stage started",
		logging.String(logging.FieldSessionID, s.current.ID),
		logging.String(logging.FieldStage, name),
	)
	return nil
}

// EndStage closes the open stage. The camera is stopped first; when it times
// out or fails, the stage is recorded as failed without media and the error
// is returned, leaving the session in progress.
func (s *Supervisor) EndStage(ctx context.Context, outcome session.StageOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}
	open := s.current.OpenStage()
	if open == nil {
		return session.ErrNoOpenStage
	}
	stageName := open.Name

	artifacts, cameraErr := s.collectMedia(ctx)
	finalOutcome := outcome
	if cameraErr != nil {
		finalOutcome = session.OutcomeFailed
	}

	if err := s.current.EndStage(finalOutcome, artifacts); err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, s.current); err != nil {
		return err
	}

	s.recorder.IncStageOutcome(stageName, string(finalOutcome))
	if cameraErr != nil {
		s.recorder.IncPeripheryError("camera")
		s.logger.Error("camera failed stopping; stage recorded as failed",
			logging.Error(cameraErr),
			logging.String(logging.FieldSessionID, s.current.ID),
			logging.String(logging.FieldStage, stageName),
			logging.String(logging.FieldErrorHint, "check the peripheral gateway and rerun the stage"),
		)
		return fmt.Errorf("stop recording: %w", cameraErr)
	}

	s.logger.Info("stage ended",
		logging.String(logging.FieldSessionID, s.current.ID),
		logging.String(logging.FieldStage, stageName),
		logging.String("outcome", string(finalOutcome)),
	)
	return nil
}

func (s *Supervisor) collectMedia(ctx context.Context) (session.Artifacts, error) {
	handle := s.recording
	s.recording = nil
	if handle == nil || s.camera == nil {
		return session.Artifacts{}, nil
	}

	ref, err := s.camera.StopRecording(ctx, *handle)
	if err != nil {
		return session.Artifacts{}, err
	}

	artifacts := session.Artifacts{MediaPath: ref.Path, MediaHash: ref.Hash}
	if artifacts.MediaHash == "" && artifacts.MediaPath != "" {
		hash, hashErr := hashFile(artifacts.MediaPath)
		if hashErr != nil {
			s.logger.Warn("recording saved but could not be hashed",
				logging.Error(hashErr),
				logging.String("media_path", artifacts.MediaPath),
			)
		} else {
			artifacts.MediaHash = hash
		}
	}
	return artifacts, nil
}

// Pause suspends work without closing the open stage.
func (s *Supervisor) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	if err := s.current.Pause(); err != nil {
		return err
	}
	return s.store.SaveSession(ctx, s.current)
}

// Resume returns a paused session to work. Distinct from the startup Resume;
// this one flips Paused back to InProgress.
func (s *Supervisor) ResumeSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	if err := s.current.Resume(); err != nil {
		return err
	}
	return s.store.SaveSession(ctx, s.current)
}

// Finalize freezes the session: evidence is assembled and persisted, the
// enabled publication targets are enqueued, the unit claim is dropped, and
// the bench frees up. Evidence assembly runs before any state transition so
// an incomplete session stays in progress. A session interrupted mid
// finalization resumes from the persisted evidence on the next call.
func (s *Supervisor) Finalize(ctx context.Context, subunitRecordIDs ...string) (*store.EvidenceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNoSession
	}
	sess := s.current

	unit, err := s.store.UnitByID(ctx, sess.UnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("%w: unit %s", ErrUnknownUnit, sess.UnitID)
	}

	// Sub-unit ids must point at frozen evidence; a typo here would embed a
	// dangling reference in the published record.
	for _, id := range subunitRecordIDs {
		sub, err := s.store.EvidenceByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, fmt.Errorf("%w: no evidence record %s", evidence.ErrSubunitNotFinalized, id)
		}
	}

	var requirements []evidence.StageRequirement
	if unit.Model != "" {
		stored, err := s.store.ModelRequirements(ctx, unit.Model)
		if err != nil {
			return nil, err
		}
		for _, req := range stored {
			requirements = append(requirements, evidence.StageRequirement{
				Name:          req.Stage,
				RequiresMedia: req.RequiresMedia,
			})
		}
	}

	record, err := evidence.Assemble(evidence.Input{
		Session:          sess,
		UnitModel:        unit.Model,
		Requirements:     requirements,
		SubunitRecordIDs: subunitRecordIDs,
	})
	if err != nil {
		return nil, err
	}

	if sess.State == session.StateInProgress {
		if err := sess.BeginFinalize(); err != nil {
			return nil, err
		}
		if err := s.store.SaveSession(ctx, sess); err != nil {
			return nil, err
		}
	} else if sess.State != session.StateFinalizing {
		return nil, fmt.Errorf("%w: finalize in %s", session.ErrInvalidTransition, sess.State)
	}

	row, err := s.store.InsertEvidence(ctx, record)
	if err != nil {
		// A crash after the first insert leaves the record in place;
		// adopt it instead of failing the retry.
		existing, lookupErr := s.store.EvidenceBySession(ctx, sess.ID)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		row = existing
	}

	if err := s.store.EnqueuePublications(ctx, row.ID, publish.EnabledTargets(s.cfg)); err != nil {
		return nil, err
	}
	if err := s.store.FinalizeUnit(ctx, unit.ID, sess.ID); err != nil {
		return nil, err
	}
	if err := sess.CompleteFinalize(); err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	duration := time.Since(sess.CreatedAt)
	s.recorder.IncSessionOutcome("finalized")
	s.recorder.ObserveSessionDuration(duration)
	s.logger.Info("session finalized",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String(logging.FieldUnitID, unit.ID),
		logging.String(logging.FieldRecordID, row.ID),
		logging.Duration("duration", duration),
	)
	if s.notifier != nil {
		_ = s.notifier.Publish(ctx, notifications.EventSessionFinalized, notifications.Payload{
			"unit":     unit.ID,
			"bench":    s.cfg.Workbench.BenchID,
			"duration": duration.Round(time.Second).String(),
		})
	}

	s.current = nil
	s.recording = nil
	return row, nil
}

// Abort discards the session, releasing any unit claim. The unit stays
// publishable by a later session.
func (s *Supervisor) Abort(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoSession
	}
	sess := s.current

	if s.recording != nil && s.camera != nil {
		_, _ = s.camera.StopRecording(ctx, *s.recording)
		s.recording = nil
	}
	if sess.UnitID != "" {
		if err := s.store.ReleaseUnit(ctx, sess.UnitID, sess.ID); err != nil {
			return err
		}
	}
	if err := sess.Abort(reason); err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return err
	}

	s.recorder.IncSessionOutcome("aborted")
	s.logger.Warn("session aborted",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String(logging.FieldUnitID, sess.UnitID),
		logging.String("reason", reason),
	)
	if s.notifier != nil {
		_ = s.notifier.Publish(ctx, notifications.EventSessionAborted, notifications.Payload{
			"unit":   sess.UnitID,
			"reason": reason,
		})
	}

	s.current = nil
	return nil
}

// CreateUnit registers a new production unit and prints its barcode label
// when a printer is attached.
func (s *Supervisor) CreateUnit(ctx context.Context, model string, isComposite bool) (*store.Unit, error) {
	id := uuid.NewString()
	unit := &store.Unit{
		ID:          id,
		Barcode:     DeriveBarcode(id),
		Model:       model,
		IsComposite: isComposite,
	}
	if err := s.store.UpsertUnit(ctx, unit); err != nil {
		return nil, err
	}

	if s.printer != nil {
		if _, err := s.printer.Print(ctx, periphery.PrintSpec{
			UnitID:     unit.ID,
			Barcode:    unit.Barcode,
			Annotation: model,
		}); err != nil {
			s.recorder.IncPeripheryError("printer")
			s.logger.Warn("barcode label print failed",
				logging.Error(err),
				logging.String(logging.FieldUnitID, unit.ID),
			)
		}
	}
	return unit, nil
}

// HandlePublicationSettled prints the short-link QR label once the short
// link for a record lands. Wired as the pipeline's settle hook; best effort.
func (s *Supervisor) HandlePublicationSettled(ctx context.Context, pub *store.Publication, receipt string) {
	if pub.Target != publish.TargetShortLink || s.printer == nil {
		return
	}
	rec, err := s.store.EvidenceByID(ctx, pub.RecordID)
	if err != nil || rec == nil {
		return
	}
	unit, err := s.store.UnitByID(ctx, rec.UnitID)
	if err != nil || unit == nil {
		return
	}
	if _, err := s.printer.Print(ctx, periphery.PrintSpec{
		UnitID:     unit.ID,
		Barcode:    unit.Barcode,
		Annotation: unit.Model,
		QRContent:  receipt,
	}); err != nil {
		s.recorder.IncPeripheryError("printer")
		s.logger.Warn("short-link label print failed",
			logging.Error(err),
			logging.String(logging.FieldUnitID, unit.ID),
			logging.String(logging.FieldRecordID, pub.RecordID),
		)
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

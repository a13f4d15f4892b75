package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"benchd/internal/config"
	"benchd/internal/logging"
	"benchd/internal/metrics"
	"benchd/internal/notifications"
	"benchd/internal/publish"
	"benchd/internal/services/periphery"
	"benchd/internal/session"
	"benchd/internal/store"
	"benchd/internal/workbench"
)

// Daemon coordinates the bench services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	supervisor *workbench.Supervisor
	pipeline   *publish.Pipeline
	monitor    *periphery.ScannerMonitor
	scanner    periphery.IdentityScanner
	recorder   *metrics.Recorder
	logPath    string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	scanWG  sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	StorePath      string
	LockFilePath   string
	Bench          workbench.Status
	Publications   store.PublicationStats
	ScannerPresent bool
}

// New constructs a daemon with initialized dependencies. The scanner monitor
// may be nil when hotplug detection is disabled.
func New(
	cfg *config.Config,
	st *store.Store,
	logger *slog.Logger,
	sup *workbench.Supervisor,
	pipeline *publish.Pipeline,
	monitor *periphery.ScannerMonitor,
	recorder *metrics.Recorder,
) (*Daemon, error) {
	if cfg == nil || st == nil || sup == nil || pipeline == nil {
		return nil, errors.New("daemon requires config, store, supervisor, and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "benchd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		supervisor: sup,
		pipeline:   pipeline,
		monitor:    monitor,
		recorder:   recorder,
		logPath:    filepath.Join(cfg.Paths.LogDir, "benchd.log"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// SetScanner attaches the identity scan source the daemon polls for RFID and
// barcode reads. Call before Start; a nil scanner disables polling.
func (d *Daemon) SetScanner(scanner periphery.IdentityScanner) {
	d.scanner = scanner
}

// Start acquires the daemon lock, adopts any persisted session, and launches
// the publication pipeline and local API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another benchd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.supervisor.Resume(d.ctx); err != nil {
		d.teardownAfterFailedStart()
		return fmt.Errorf("resume session: %w", err)
	}
	if err := d.pipeline.Start(d.ctx); err != nil {
		d.teardownAfterFailedStart()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if d.monitor != nil {
		if err := d.monitor.Start(d.ctx); err != nil {
			// Hotplug detection is advisory; the bench works without it.
			d.logger.Warn("scanner monitor unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check udev access or disable the scanner vendor filter"))
		}
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.pipeline.Stop()
			if d.monitor != nil {
				d.monitor.Stop()
			}
			d.teardownAfterFailedStart()
			return err
		}
	}

	if d.scanner != nil {
		d.scanWG.Add(1)
		go d.runScanLoop(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("benchd started",
		logging.String(logging.FieldBenchID, d.cfg.Workbench.BenchID),
		logging.String("lock", d.lockPath))
	return nil
}

// runScanLoop drains the identity scan source and routes events into the
// supervisor. Out-of-sequence scans are the operator's problem to correct;
// they are logged here, never fatal.
func (d *Daemon) runScanLoop(ctx context.Context) {
	defer d.scanWG.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		ev, err := d.scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("identity scan failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the peripheral gateway"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if ev == nil {
			continue
		}
		if err := d.supervisor.HandleIdentity(ctx, *ev); err != nil {
			d.logger.Warn("scan rejected",
				logging.Error(err),
				logging.String("kind", string(ev.Kind)))
		}
	}
}

func (d *Daemon) teardownAfterFailedStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.pipeline.Stop()
	if d.monitor != nil {
		d.monitor.Stop()
	}
	d.scanWG.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("benchd stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.PublicationStats(ctx)
	if err != nil {
		d.logger.Warn("publication stats unavailable", logging.Error(err))
	}
	scannerPresent := false
	if d.monitor != nil {
		scannerPresent = d.monitor.ScannerPresent()
	}
	return Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		StorePath:      d.store.Path(),
		LockFilePath:   d.lockPath,
		Bench:          d.supervisor.Status(),
		Publications:   stats,
		ScannerPresent: scannerPresent,
	}
}

// Login authorizes the operator with the given RFID card.
func (d *Daemon) Login(ctx context.Context, cardID string) (workbench.Status, error) {
	if _, err := d.supervisor.Login(ctx, cardID); err != nil {
		return d.supervisor.Status(), err
	}
	return d.supervisor.Status(), nil
}

// Logout releases the operator binding.
func (d *Daemon) Logout(ctx context.Context) (workbench.Status, error) {
	err := d.supervisor.Logout(ctx)
	return d.supervisor.Status(), err
}

// BindUnit claims the unit with the given barcode for the active session.
func (d *Daemon) BindUnit(ctx context.Context, barcode string) (workbench.Status, error) {
	if _, err := d.supervisor.BindUnit(ctx, barcode); err != nil {
		return d.supervisor.Status(), err
	}
	return d.supervisor.Status(), nil
}

// StartStage opens a production stage on the active session.
func (d *Daemon) StartStage(ctx context.Context, name string) (workbench.Status, error) {
	err := d.supervisor.StartStage(ctx, name)
	return d.supervisor.Status(), err
}

// EndStage closes the open stage with the given outcome.
func (d *Daemon) EndStage(ctx context.Context, outcome string) (workbench.Status, error) {
	parsed, err := parseOutcome(outcome)
	if err != nil {
		return d.supervisor.Status(), err
	}
	err = d.supervisor.EndStage(ctx, parsed)
	return d.supervisor.Status(), err
}

// Pause suspends the active session.
func (d *Daemon) Pause(ctx context.Context) (workbench.Status, error) {
	err := d.supervisor.Pause(ctx)
	return d.supervisor.Status(), err
}

// ResumeSession returns a paused session to work.
func (d *Daemon) ResumeSession(ctx context.Context) (workbench.Status, error) {
	err := d.supervisor.ResumeSession(ctx)
	return d.supervisor.Status(), err
}

// Finalize freezes the active session into an evidence record and enqueues
// publication.
func (d *Daemon) Finalize(ctx context.Context, subunitRecordIDs []string) (*store.EvidenceRow, error) {
	return d.supervisor.Finalize(ctx, subunitRecordIDs...)
}

// Abort discards the active session.
func (d *Daemon) Abort(ctx context.Context, reason string) error {
	return d.supervisor.Abort(ctx, reason)
}

// CreateUnit registers a new production unit.
func (d *Daemon) CreateUnit(ctx context.Context, model string, isComposite bool) (*store.Unit, error) {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" {
		return nil, errors.New("unit model is required")
	}
	return d.supervisor.CreateUnit(ctx, trimmed, isComposite)
}

// AddEmployee registers or updates an employee record.
func (d *Daemon) AddEmployee(ctx context.Context, emp *store.Employee) error {
	if emp == nil || strings.TrimSpace(emp.ID) == "" || strings.TrimSpace(emp.CardID) == "" {
		return errors.New("employee id and card id are required")
	}
	return d.store.UpsertEmployee(ctx, emp)
}

// SetModelRequirement marks a stage as mandatory for a unit model. Sessions
// on that model cannot finalize unless the stage ran, with media when
// requiresMedia is set.
func (d *Daemon) SetModelRequirement(ctx context.Context, model, stage string, requiresMedia bool) error {
	if strings.TrimSpace(model) == "" || strings.TrimSpace(stage) == "" {
		return errors.New("model and stage are required")
	}
	return d.store.SetModelRequirement(ctx, &store.StageRequirement{
		Model:         strings.TrimSpace(model),
		Stage:         strings.TrimSpace(stage),
		RequiresMedia: requiresMedia,
	})
}

// ListPublications returns publication rows optionally filtered by status.
func (d *Daemon) ListPublications(ctx context.Context, statuses []string) ([]*store.Publication, error) {
	parsed := make([]store.PublicationStatus, 0, len(statuses))
	for _, raw := range statuses {
		status, ok := parsePublicationStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown publication status %q", raw)
		}
		parsed = append(parsed, status)
	}
	return d.store.ListPublications(ctx, parsed...)
}

// RetryPublication returns a parked publication to the queue.
func (d *Daemon) RetryPublication(ctx context.Context, recordID, target string) (bool, error) {
	return d.store.RequeuePublication(ctx, recordID, target)
}

// SkipPublication marks a publication skipped, the only cancellation path.
func (d *Daemon) SkipPublication(ctx context.Context, recordID, target string) (bool, error) {
	return d.store.SkipPublication(ctx, recordID, target)
}

// PublicationStats returns per-status queue counts.
func (d *Daemon) PublicationStats(ctx context.Context) (store.PublicationStats, error) {
	return d.store.PublicationStats(ctx)
}

// TestNotification sends a test push notification with the current settings.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

func parseOutcome(raw string) (session.StageOutcome, error) {
	switch session.StageOutcome(strings.ToLower(strings.TrimSpace(raw))) {
	case session.OutcomeCompleted:
		return session.OutcomeCompleted, nil
	case session.OutcomeFailed:
		return session.OutcomeFailed, nil
	case session.OutcomeSkipped:
		return session.OutcomeSkipped, nil
	case "":
		return session.OutcomeCompleted, nil
	default:
		return "", fmt.Errorf("unknown stage outcome %q", raw)
	}
}

func parsePublicationStatus(raw string) (store.PublicationStatus, bool) {
	switch store.PublicationStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case store.PubPending:
		return store.PubPending, true
	case store.PubInflight:
		return store.PubInflight, true
	case store.PubSucceeded:
		return store.PubSucceeded, true
	case store.PubFailed:
		return store.PubFailed, true
	case store.PubSkipped:
		return store.PubSkipped, true
	default:
		return "", false
	}
}

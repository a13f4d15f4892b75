package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"benchd/internal/config"
	"benchd/internal/logging"
	"benchd/internal/metrics"
	"benchd/internal/notifications"
	"benchd/internal/services"
	"benchd/internal/store"
)

// Pipeline runs the publication workers.
type Pipeline struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	recorder *metrics.Recorder

	targets      map[string]Target
	pollInterval time.Duration

	notifier   notifications.Service
	settleHook func(ctx context.Context, pub *store.Publication, receipt string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPipeline constructs a pipeline over the given delivery targets.
func NewPipeline(cfg *config.Config, st *store.Store, logger *slog.Logger, recorder *metrics.Recorder, targets ...Target) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	byName := make(map[string]Target, len(targets))
	for _, target := range targets {
		byName[target.Name()] = target
	}
	return &Pipeline{
		cfg:          cfg,
		store:        st,
		logger:       logger.With(logging.String(logging.FieldComponent, "publish")),
		recorder:     recorder,
		targets:      byName,
		pollInterval: cfg.PublishPollInterval(),
	}
}

// SetNotifier attaches a notification service for settled and parked rows.
// Call before Start.
func (p *Pipeline) SetNotifier(notifier notifications.Service) {
	p.notifier = notifier
}

// OnSettled registers a hook invoked after a delivery settles. Used for
// follow-up actions like printing the short-link label. Call before Start.
func (p *Pipeline) OnSettled(fn func(ctx context.Context, pub *store.Publication, receipt string)) {
	p.settleHook = fn
}

// Start reclaims orphaned leases and launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("publish pipeline already running")
	}

	reclaimed, err := p.store.ReclaimInflight(ctx)
	if err != nil {
		return fmt.Errorf("reclaim inflight publications: %w", err)
	}
	if reclaimed > 0 {
		p.logger.Info("reclaimed orphaned publication leases",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "publish_reclaim"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	workers := p.cfg.Publish.Workers
	if workers <= 0 {
		workers = 1
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker(runCtx)
	}
	return nil
}

// Stop terminates the workers and waits for in-flight deliveries to settle.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The ledger is order-sensitive: records reach it in the order
		// they were finalized, so its rows lease strictly FIFO.
		pub, err := p.store.NextDue(ctx, time.Now().UTC(), TargetLedger)
		if err != nil {
			p.logger.Error("failed to lease next publication",
				logging.Error(err),
				logging.String(logging.FieldEventType, "publish_lease_failed"),
				logging.String(logging.FieldErrorHint, "check records database access"),
			)
			p.waitOrShutdown(ctx)
			continue
		}
		if pub == nil {
			p.updateQueueDepth(ctx)
			p.waitOrShutdown(ctx)
			continue
		}

		p.process(ctx, pub)
	}
}

func (p *Pipeline) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}

func (p *Pipeline) process(ctx context.Context, pub *store.Publication) {
	logger := p.logger.With(
		logging.String(logging.FieldRecordID, pub.RecordID),
		logging.String(logging.FieldTarget, pub.Target),
	)

	target, ok := p.targets[pub.Target]
	if !ok {
		logger.Warn("no delivery target registered; parking publication",
			logging.String(logging.FieldEventType, "publish_target_missing"),
			logging.String(logging.FieldErrorHint, "enable the target in config and requeue"),
		)
		p.park(ctx, logger, pub, "target not configured")
		return
	}

	rec, err := p.store.EvidenceByID(ctx, pub.RecordID)
	if err != nil {
		logger.Error("failed to load evidence record",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_load_failed"),
		)
		p.reschedule(ctx, logger, pub, err)
		return
	}
	if rec == nil {
		p.park(ctx, logger, pub, "evidence record missing")
		return
	}

	// The marker lands before the network call so a crash mid-submit is
	// visible to the next attempt.
	if err := p.store.MarkAttempted(ctx, pub.RecordID, pub.Target); err != nil {
		logger.Error("failed to record attempt marker",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_marker_failed"),
		)
		p.reschedule(ctx, logger, pub, err)
		return
	}

	receipt, err := target.Publish(ctx, rec, pub)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-delivery; the startup reclaim returns the lease.
			return
		}
		p.handleFailure(ctx, logger, pub, err)
		return
	}

	if err := p.store.MarkSucceeded(ctx, pub.RecordID, pub.Target, receipt); err != nil {
		logger.Error("delivery succeeded but settling failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_settle_failed"),
			logging.String(logging.FieldErrorHint, "row will redeliver; targets reconcile duplicates"),
		)
		return
	}
	p.recorder.IncPublishOutcome(pub.Target, "success")
	logger.Info("publication delivered",
		logging.String(logging.FieldEventType, "publish_succeeded"),
		logging.Int("attempts", pub.Attempts+1),
	)
	if p.notifier != nil {
		_ = p.notifier.Publish(ctx, notifications.EventPublicationSettled, notifications.Payload{
			"record": pub.RecordID,
			"target": pub.Target,
		})
	}
	if p.settleHook != nil {
		p.settleHook(ctx, pub, receipt)
	}
	p.updateQueueDepth(ctx)
}

func (p *Pipeline) handleFailure(ctx context.Context, logger *slog.Logger, pub *store.Publication, cause error) {
	attempts := pub.Attempts + 1
	ceiling := p.cfg.Publish.RetryCeiling
	final := !services.Retryable(cause) || (ceiling > 0 && attempts >= ceiling)

	if final {
		p.park(ctx, logger, pub, cause.Error())
		return
	}

	next := time.Now().UTC().Add(Delay(attempts, p.cfg.PublishBackoffBase(), p.cfg.PublishBackoffCeiling()))
	if err := p.store.MarkFailed(ctx, pub.RecordID, pub.Target, cause.Error(), next, false); err != nil {
		logger.Error("failed to reschedule publication",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_reschedule_failed"),
		)
		return
	}
	p.recorder.IncPublishOutcome(pub.Target, "retry")
	p.recorder.IncPublishRetry(pub.Target)
	logger.Warn("publication attempt failed; rescheduled",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "publish_retry_scheduled"),
		logging.Int("attempts", attempts),
		logging.String("next_attempt_at", next.Format(time.RFC3339)),
	)
}

func (p *Pipeline) reschedule(ctx context.Context, logger *slog.Logger, pub *store.Publication, cause error) {
	next := time.Now().UTC().Add(Delay(pub.Attempts+1, p.cfg.PublishBackoffBase(), p.cfg.PublishBackoffCeiling()))
	if err := p.store.MarkFailed(ctx, pub.RecordID, pub.Target, cause.Error(), next, false); err != nil {
		logger.Error("failed to reschedule publication",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_reschedule_failed"),
		)
	}
}

func (p *Pipeline) park(ctx context.Context, logger *slog.Logger, pub *store.Publication, reason string) {
	if err := p.store.MarkFailed(ctx, pub.RecordID, pub.Target, reason, time.Now().UTC(), true); err != nil {
		logger.Error("failed to park publication",
			logging.Error(err),
			logging.String(logging.FieldEventType, "publish_park_failed"),
		)
		return
	}
	p.recorder.IncPublishOutcome(pub.Target, "failed")
	p.recorder.IncPublishExhausted(pub.Target)
	logger.Error("publication parked until requeued",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "publish_parked"),
		logging.String(logging.FieldErrorHint, "inspect the target and run 'bench publications retry'"),
	)
	if p.notifier != nil {
		_ = p.notifier.Publish(ctx, notifications.EventPublicationParked, notifications.Payload{
			"record": pub.RecordID,
			"target": pub.Target,
			"reason": reason,
		})
	}
}

func (p *Pipeline) updateQueueDepth(ctx context.Context) {
	if p.recorder == nil {
		return
	}
	stats, err := p.store.PublicationStats(ctx)
	if err != nil {
		return
	}
	p.recorder.SetQueueDepth(string(store.PubPending), stats.Pending)
	p.recorder.SetQueueDepth(string(store.PubInflight), stats.Inflight)
	p.recorder.SetQueueDepth(string(store.PubSucceeded), stats.Succeeded)
	p.recorder.SetQueueDepth(string(store.PubFailed), stats.Failed)
	p.recorder.SetQueueDepth(string(store.PubSkipped), stats.Skipped)
}

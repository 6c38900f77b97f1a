// Package worker provides the background workers of the chimera service.
// outbox_worker.go dispatches queued publications to the platform channels.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	infralogger "github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

const (
	defaultPollInterval     = 5 * time.Second
	defaultBatchSize        = 100
	defaultPublishTimeout   = 10 * time.Second
	defaultStaleAfter       = 5 * time.Minute
	defaultCleanupInterval  = time.Hour
	defaultRetention        = 7 * 24 * time.Hour
	defaultRecoveryInterval = time.Minute
	retryBatchDivisor       = 2 // Retry batch = batchSize / divisor
)

// Dispatch outcomes reported to Metrics.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
)

// Outbox is the publication table as the worker sees it.
type Outbox interface {
	FetchDue(ctx context.Context, limit int) ([]domain.Publication, error)
	FetchRetryable(ctx context.Context, limit int) ([]domain.Publication, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error)
	GetStats(ctx context.Context) (*domain.OutboxStats, error)
}

// DraftReader loads the draft a publication refers to.
type DraftReader interface {
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
}

// Metrics records dispatch outcomes.
type Metrics interface {
	PublicationDispatched(platform, outcome string)
}

// OutboxWorker polls the outbox and hands publications to the platform channels.
type OutboxWorker struct {
	outbox     Outbox
	drafts     DraftReader
	dispatcher Dispatcher
	metrics    Metrics
	logger     infralogger.Logger
	tracer     trace.Tracer

	cfg OutboxWorkerConfig

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// OutboxWorkerConfig holds configuration options
type OutboxWorkerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	PublishTimeout   time.Duration
	StaleAfter       time.Duration
	CleanupInterval  time.Duration
	Retention        time.Duration
	RecoveryInterval time.Duration
}

// DefaultOutboxWorkerConfig returns sensible defaults
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval:     defaultPollInterval,
		BatchSize:        defaultBatchSize,
		PublishTimeout:   defaultPublishTimeout,
		StaleAfter:       defaultStaleAfter,
		CleanupInterval:  defaultCleanupInterval,
		Retention:        defaultRetention,
		RecoveryInterval: defaultRecoveryInterval,
	}
}

func (c *OutboxWorkerConfig) setDefaults() {
	d := DefaultOutboxWorkerConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = d.RecoveryInterval
	}
}

// NewOutboxWorker creates a new outbox worker. metrics may be nil.
func NewOutboxWorker(
	outbox Outbox,
	drafts DraftReader,
	dispatcher Dispatcher,
	metrics Metrics,
	cfg OutboxWorkerConfig,
	logger infralogger.Logger,
) *OutboxWorker {
	cfg.setDefaults()
	return &OutboxWorker{
		outbox:     outbox,
		drafts:     drafts,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer("outbox-worker"),
		cfg:        cfg,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the polling, cleanup and recovery loops. A stopped worker
// cannot be started again.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.every(ctx, w.cfg.CleanupInterval, w.cleanup)

	w.wg.Add(1)
	go w.every(ctx, w.cfg.RecoveryInterval, w.recoverStale)

	w.logger.Info("Outbox worker started",
		infralogger.Duration("poll_interval", w.cfg.PollInterval),
		infralogger.Int("batch_size", w.cfg.BatchSize))
}

// Stop gracefully stops the worker and waits for in-flight dispatches.
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Outbox worker stopped")
}

// IsRunning returns whether the worker is currently running
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *OutboxWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *OutboxWorker) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce claims and dispatches one batch of due publications followed by
// a smaller batch of retries. It returns the number of publications handled.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) int {
	handled := 0

	due, err := w.outbox.FetchDue(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("Failed to fetch due publications", infralogger.Error(err))
	} else if len(due) > 0 {
		w.logger.Debug("Dispatching due publications", infralogger.Int("count", len(due)))
		handled += w.publishBatch(ctx, due)
	}

	// Reduced retry batch so new publications are not starved.
	retryable, err := w.outbox.FetchRetryable(ctx, max(w.cfg.BatchSize/retryBatchDivisor, 1))
	if err != nil {
		w.logger.Error("Failed to fetch retryable publications", infralogger.Error(err))
	} else if len(retryable) > 0 {
		w.logger.Debug("Retrying failed publications", infralogger.Int("count", len(retryable)))
		handled += w.publishBatch(ctx, retryable)
	}
	return handled
}

func (w *OutboxWorker) publishBatch(ctx context.Context, pubs []domain.Publication) int {
	for i := range pubs {
		w.publishOne(ctx, &pubs[i])
	}
	return len(pubs)
}

func (w *OutboxWorker) publishOne(ctx context.Context, p *domain.Publication) {
	ctx, span := w.tracer.Start(ctx, "outbox.publish",
		trace.WithAttributes(
			attribute.String("publish_id", p.ID),
			attribute.String("content_id", p.ContentID),
			attribute.String("platform", p.Platform),
			attribute.String("channel", p.Channel()),
			attribute.Int("attempt", p.RetryCount+1),
		))
	defer span.End()

	draft, err := w.drafts.GetByID(ctx, p.ContentID)
	if err != nil {
		w.handlePublishError(ctx, span, p, fmt.Errorf("load draft: %w", err))
		return
	}

	payload, err := json.Marshal(p.ToPublishMessage(draft))
	if err != nil {
		w.handlePublishError(ctx, span, p, fmt.Errorf("marshal message: %w", err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.cfg.PublishTimeout)
	defer cancel()

	if err = w.dispatcher.Dispatch(pubCtx, p.Channel(), payload); err != nil {
		w.handlePublishError(ctx, span, p, fmt.Errorf("dispatch: %w", err))
		return
	}

	// The message is out; a failed status update is only logged and the row
	// is picked up again by recovery.
	if markErr := w.outbox.MarkPublished(ctx, p.ID); markErr != nil {
		w.logger.Error("Failed to mark publication as published",
			infralogger.String("publish_id", p.ID),
			infralogger.Error(markErr))
	}
	w.observe(p.Platform, OutcomePublished)

	w.logger.Info("Publication dispatched",
		infralogger.String("publish_id", p.ID),
		infralogger.String("content_id", p.ContentID),
		infralogger.String("channel", p.Channel()),
		infralogger.Int("retry_count", p.RetryCount))
}

func (w *OutboxWorker) handlePublishError(ctx context.Context, span trace.Span, p *domain.Publication, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.observe(p.Platform, OutcomeFailed)

	w.logger.Error("Failed to dispatch publication",
		infralogger.String("publish_id", p.ID),
		infralogger.String("content_id", p.ContentID),
		infralogger.Int("retry_count", p.RetryCount),
		infralogger.Error(err))

	if markErr := w.outbox.MarkFailed(ctx, p.ID, err.Error()); markErr != nil {
		w.logger.Error("Failed to mark publication as failed",
			infralogger.String("publish_id", p.ID),
			infralogger.Error(markErr))
	}
}

func (w *OutboxWorker) observe(platform, outcome string) {
	if w.metrics != nil {
		w.metrics.PublicationDispatched(platform, outcome)
	}
}

// cleanup removes published rows past retention.
func (w *OutboxWorker) cleanup(ctx context.Context) {
	deleted, err := w.outbox.CleanupPublished(ctx, w.cfg.Retention)
	if err != nil {
		w.logger.Error("Outbox cleanup failed", infralogger.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("Cleaned up published publications", infralogger.Int64("deleted", deleted))
	}
}

// recoverStale resets publications stuck in "publishing" back to "queued".
// This handles rows claimed by a worker that crashed before completing.
func (w *OutboxWorker) recoverStale(ctx context.Context) {
	reset, err := w.outbox.ResetStale(ctx, w.cfg.StaleAfter)
	if err != nil {
		w.logger.Error("Outbox recovery failed", infralogger.Error(err))
		return
	}
	if reset > 0 {
		w.logger.Warn("Recovered stale publications", infralogger.Int64("reset", reset))
	}
}

// GetStats returns current worker statistics
func (w *OutboxWorker) GetStats(ctx context.Context) (map[string]any, error) {
	stats, err := w.outbox.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"queued":           stats.Queued,
		"scheduled":        stats.Scheduled,
		"publishing":       stats.Publishing,
		"published":        stats.Published,
		"failed_retryable": stats.FailedRetryable,
		"failed_exhausted": stats.FailedExhausted,
		"poll_interval":    w.cfg.PollInterval.String(),
		"batch_size":       w.cfg.BatchSize,
		"running":          w.IsRunning(),
	}, nil
}

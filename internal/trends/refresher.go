package trends

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
)

// Refresh runs are bounded so that a slow source cannot pile up runs.
const refreshTimeout = 2 * time.Minute

// Refreshable is refreshed on every tick.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher keeps the source cache warm on a cron schedule.
type Refresher struct {
	target   Refreshable
	cron     *cron.Cron
	schedule string
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	busy   bool
}

// NewRefresher creates a refresher. schedule is a 5-field cron expression.
func NewRefresher(target Refreshable, schedule string, log logger.Logger) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Refresher{
		target:   target,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		schedule: schedule,
		log:      log.With(logger.Component("trend-refresher")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start schedules the refresh job and starts the cron scheduler.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.RunOnce); err != nil {
		return fmt.Errorf("schedule trend refresh %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.log.Info("Trend refresher started", logger.String("schedule", r.schedule))
	return nil
}

// Stop cancels a running refresh and waits for it to return.
func (r *Refresher) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.log.Info("Trend refresher stopped")
}

// RunOnce refreshes every source. Overlapping runs are skipped.
func (r *Refresher) RunOnce() {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		r.log.Warn("Previous trend refresh still running, skipping")
		return
	}
	r.busy = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(r.ctx, refreshTimeout)
	defer cancel()

	start := time.Now()
	if err := r.target.Refresh(ctx); err != nil {
		r.log.Warn("Trend refresh finished with errors",
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return
	}
	r.log.Debug("Trend refresh finished", logger.Duration("elapsed", time.Since(start)))
}

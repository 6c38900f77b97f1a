package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

var (
	// ErrUnknownSource is returned when a query names a source that is not enabled.
	ErrUnknownSource = errors.New("unknown source")
	// ErrAllSourcesFailed is returned when no selected source produced a result.
	ErrAllSourcesFailed = errors.New("all trend sources failed")
	// ErrNoSources is returned when no source is enabled.
	ErrNoSources = errors.New("no trend sources enabled")
)

// Fetch outcomes reported to Metrics.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
)

// Metrics receives one observation per source fetch.
type Metrics interface {
	SourceFetched(source, outcome string, elapsed time.Duration)
}

// Query selects trends.
type Query struct {
	// Sources restricts the fetch. Empty means every enabled source.
	Sources []string
	// Since drops trends observed before it when set.
	Since *time.Time
	Limit int
}

// ServiceConfig tunes upstream calls.
type ServiceConfig struct {
	Retry        retry.Config
	Breaker      circuitbreaker.Config
	FetchTimeout time.Duration
	Concurrency  int
}

type guardedSource struct {
	Source
	breaker *circuitbreaker.Breaker
}

// Service fans out to the sources, caches their results and merges them.
type Service struct {
	sources map[string]*guardedSource
	order   []string
	cache   Cache
	index   Index
	cfg     ServiceConfig
	metrics Metrics
	log     logger.Logger
}

// NewService creates a service over sources. metrics may be nil.
func NewService(sources []Source, cache Cache, index Index, cfg ServiceConfig, metrics Metrics, log logger.Logger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Retry.IsRetryable == nil {
		cfg.Retry.IsRetryable = isRetryable
	}
	log = log.With(logger.Component("trends"))

	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		log.Warn("Trend source circuit changed state",
			logger.String("source", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}

	s := &Service{
		sources: make(map[string]*guardedSource, len(sources)),
		order:   make([]string, 0, len(sources)),
		cache:   cache,
		index:   index,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
	}
	for _, src := range sources {
		s.sources[src.Name()] = &guardedSource{Source: src, breaker: circuitbreaker.New(src.Name(), breakerCfg)}
		s.order = append(s.order, src.Name())
	}
	return s
}

// SourceNames returns the enabled sources in configuration order.
func (s *Service) SourceNames() []string {
	return append([]string(nil), s.order...)
}

// HasSource reports whether name is an enabled source.
func (s *Service) HasSource(name string) bool {
	_, ok := s.sources[name]
	return ok
}

// Fetch returns the merged trends of the selected sources, newest first.
// Partial failures are logged; only a failure of every source is an error.
func (s *Service) Fetch(ctx context.Context, q Query) ([]domain.Trend, error) {
	names, err := s.selectSources(q.Sources)
	if err != nil {
		return nil, err
	}

	results, errs := s.fetchAll(ctx, names, true)

	var (
		merged []domain.Trend
		failed []error
	)
	for i, name := range names {
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("%s: %w", name, errs[i]))
			continue
		}
		merged = append(merged, results[i]...)
	}
	if len(failed) == len(names) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(failed...))
	}
	if len(failed) > 0 {
		s.log.Warn("Some trend sources failed",
			logger.Int("failed", len(failed)),
			logger.Int("selected", len(names)),
			logger.Error(errors.Join(failed...)))
	}

	out := Merge(merged, q.Since, q.Limit)
	if err := s.index.Put(ctx, out); err != nil {
		s.log.Warn("Failed to index trends", logger.Error(err))
	}
	return out, nil
}

// Refresh re-fetches every source, bypassing and rewriting the cache.
func (s *Service) Refresh(ctx context.Context) error {
	if len(s.order) == 0 {
		return nil
	}
	results, errs := s.fetchAll(ctx, s.order, false)

	var all []domain.Trend
	for i := range s.order {
		all = append(all, results[i]...)
	}
	if err := s.index.Put(ctx, all); err != nil {
		s.log.Warn("Failed to index trends", logger.Error(err))
	}
	return errors.Join(errs...)
}

func (s *Service) selectSources(requested []string) ([]string, error) {
	if len(requested) == 0 {
		if len(s.order) == 0 {
			return nil, ErrNoSources
		}
		return s.order, nil
	}

	seen := make(map[string]bool, len(requested))
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if !s.HasSource(name) {
			return nil, fmt.Errorf("%w %q", ErrUnknownSource, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// fetchAll fetches names concurrently. Each slot holds either trends or an error.
func (s *Service) fetchAll(ctx context.Context, names []string, useCache bool) ([][]domain.Trend, []error) {
	results := make([][]domain.Trend, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i], errs[i] = s.fetchSource(gctx, s.sources[name], useCache)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

func (s *Service) fetchSource(ctx context.Context, src *guardedSource, useCache bool) ([]domain.Trend, error) {
	name := src.Name()
	start := time.Now()

	if useCache {
		trends, ok, err := s.cache.Get(ctx, name)
		if err != nil {
			s.log.Warn("Trend cache read failed", logger.String("source", name), logger.Error(err))
		}
		if ok {
			s.observe(name, OutcomeCacheHit, start)
			return trends, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var trends []domain.Trend
	err := src.breaker.Execute(fetchCtx, func() error {
		return retry.Retry(fetchCtx, s.cfg.Retry, func() error {
			var fetchErr error
			trends, fetchErr = src.Fetch(fetchCtx)
			return fetchErr
		})
	})
	if err != nil {
		s.observe(name, OutcomeError, start)
		s.log.Error("Trend source fetch failed", logger.String("source", name), logger.Error(err))
		return nil, err
	}
	s.observe(name, OutcomeSuccess, start)

	if err := s.cache.Set(ctx, name, trends); err != nil {
		s.log.Warn("Trend cache write failed", logger.String("source", name), logger.Error(err))
	}
	return trends, nil
}

func (s *Service) observe(source, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.SourceFetched(source, outcome, time.Since(start))
	}
}

// Merge de-duplicates trends by id keeping the newest observation, drops those
// observed before since, orders newest first (ties by id) and keeps at most limit.
// The result is never nil.
func Merge(trends []domain.Trend, since *time.Time, limit int) []domain.Trend {
	byID := make(map[string]domain.Trend, len(trends))
	for _, tr := range trends {
		if since != nil && tr.ObservedAt.Before(*since) {
			continue
		}
		if prev, ok := byID[tr.ID]; ok && !tr.ObservedAt.After(prev.ObservedAt) {
			continue
		}
		byID[tr.ID] = tr
	}

	out := make([]domain.Trend, 0, len(byID))
	for _, tr := range byID {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.After(out[j].ObservedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

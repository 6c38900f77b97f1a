// Package app wires the chimera components together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	infraes "github.com/jonesrussell/north-cloud/chimera/infrastructure/elasticsearch"
	infragin "github.com/jonesrussell/north-cloud/chimera/infrastructure/gin"
	infrahttp "github.com/jonesrussell/north-cloud/chimera/infrastructure/http"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	inframetrics "github.com/jonesrussell/north-cloud/chimera/infrastructure/metrics"
	infraredis "github.com/jonesrussell/north-cloud/chimera/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/chimera/internal/api"
	"github.com/jonesrussell/north-cloud/chimera/internal/config"
	"github.com/jonesrussell/north-cloud/chimera/internal/database"
	"github.com/jonesrussell/north-cloud/chimera/internal/generation"
	"github.com/jonesrussell/north-cloud/chimera/internal/metrics"
	"github.com/jonesrussell/north-cloud/chimera/internal/publishing"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
	"github.com/jonesrussell/north-cloud/chimera/internal/trends"
	"github.com/jonesrussell/north-cloud/chimera/internal/worker"
)

// App represents the chimera application with all its dependencies
type App struct {
	config *config.Config
	logger logger.Logger

	db          *sqlx.DB
	redisClient *redis.Client

	trends     *trends.Service
	refresher  *trends.Refresher
	generation *generation.Service
	publishing *publishing.Service
	skills     *skill.Registry
	worker     *worker.OutboxWorker
	server     *infragin.Server
}

// NewLogger creates the application logger from configuration.
func NewLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
}

// LoadConfig loads and validates the configuration at path.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// New connects to the backing stores and creates every component.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{config: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.config, a.logger

	var err error
	a.db, err = database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Database connection established",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.Database))

	a.redisClient, err = infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collected := metrics.New(reg)

	index := trends.NewRedisIndex(a.redisClient, cfg.Trends.IndexTTL)
	if a.trends, err = a.newTrendService(ctx, index, collected); err != nil {
		return err
	}
	a.refresher = trends.NewRefresher(a.trends, cfg.Trends.RefreshSchedule, log)

	writer, err := newWriter(cfg.Generation)
	if err != nil {
		return err
	}
	media, err := newMediaStore(ctx, cfg.Generation.Storage, log)
	if err != nil {
		return err
	}

	drafts := database.NewDraftRepository(a.db)
	publications := database.NewPublicationRepository(a.db)

	a.generation = generation.NewService(writer, media, drafts, index, generation.Defaults{
		Language: cfg.Generation.DefaultLanguage,
		Tone:     cfg.Generation.DefaultTone,
	}, log.With(logger.Component("generation")))

	limiter := publishing.NewRedisLimiter(a.redisClient, cfg.Publishing.RateLimit.MaxRequests, cfg.Publishing.RateLimit.Window)
	a.publishing = publishing.NewService(publications, drafts, limiter, publishing.Config{
		MaxScheduleAhead: cfg.Publishing.MaxScheduleAhead,
		PastTolerance:    cfg.Publishing.PastTolerance,
	}, log.With(logger.Component("publishing")))

	a.skills = skill.NewRegistry(log, collected, a.enabledHandlers()...)

	wc := cfg.Publishing.Worker
	a.worker = worker.NewOutboxWorker(
		publications,
		drafts,
		worker.NewRedisDispatcher(a.redisClient, wc.RequireSubscribers),
		collected,
		worker.OutboxWorkerConfig{
			PollInterval:    wc.PollInterval,
			BatchSize:       wc.BatchSize,
			PublishTimeout:  wc.PublishTimeout,
			StaleAfter:      wc.StaleAfter,
			CleanupInterval: wc.CleanupInterval,
			Retention:       wc.Retention,
		},
		log.With(logger.Component("outbox-worker")),
	)

	a.server = api.NewRouter(api.Dependencies{
		Skills:       a.skills,
		Content:      a.generation,
		Publications: a.publishing,
		Outbox:       publications,
		Gatherer:     reg,
		HTTPMetrics:  inframetrics.NewHTTPMetrics("chimera", reg),
		PingDB:       a.db.PingContext,
		PingRedis:    func(ctx context.Context) error { return a.redisClient.Ping(ctx).Err() },
	}, cfg).NewServer(log)

	return nil
}

func (a *App) newTrendService(ctx context.Context, index trends.Index, m trends.Metrics) (*trends.Service, error) {
	cfg := a.config.Trends

	var esClient *es.Client
	if trends.NeedsElasticsearch(cfg.Sources) {
		client, err := infraes.NewClient(ctx, cfg.Elasticsearch, cfg.Retry, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to elasticsearch: %w", err)
		}
		esClient = client
	}

	httpClient := infrahttp.NewClient(infrahttp.ClientConfig{Timeout: cfg.FetchTimeout})
	sources, err := trends.NewSources(cfg.Sources, httpClient, esClient, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create trend sources: %w", err)
	}
	if len(sources) == 0 {
		a.logger.Warn("No trend sources enabled; fetch_trends will answer 503")
	}

	return trends.NewService(sources, trends.NewRedisCache(a.redisClient, cfg.CacheTTL), index, trends.ServiceConfig{
		Retry:        cfg.Retry,
		Breaker:      cfg.Breaker,
		FetchTimeout: cfg.FetchTimeout,
		Concurrency:  cfg.Concurrency,
	}, m, a.logger), nil
}

func (a *App) enabledHandlers() []skill.Handler {
	all := []skill.Handler{
		trends.NewHandler(a.trends, a.config.Trends.DefaultLimit, a.config.Trends.MaxLimit),
		generation.NewHandler(a.generation),
		publishing.NewHandler(a.publishing),
	}

	enabled := make([]skill.Handler, 0, len(all))
	for _, h := range all {
		if !a.config.Service.SkillEnabled(h.Skill()) {
			a.logger.Info("Skill disabled", logger.String("skill", string(h.Skill())))
			continue
		}
		enabled = append(enabled, h)
	}
	return enabled
}

func newWriter(cfg config.GenerationConfig) (generation.Writer, error) {
	switch cfg.Writer {
	case config.WriterTemplate:
		return generation.NewTemplateWriter(), nil
	case config.WriterAnthropic:
		retries := 0
		if cfg.Anthropic.MaxRetries != nil {
			retries = *cfg.Anthropic.MaxRetries
		}
		return generation.NewAnthropicWriter(generation.AnthropicConfig{
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			Model:      cfg.Anthropic.Model,
			MaxTokens:  cfg.Anthropic.MaxTokens,
			MaxRetries: retries,
			Timeout:    cfg.Anthropic.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown writer %q", cfg.Writer)
	}
}

func newMediaStore(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (generation.MediaStore, error) {
	switch cfg.Driver {
	case config.StorageLocal:
		return generation.NewLocalStore(cfg.LocalDir), nil
	case config.StorageS3:
		store, err := generation.NewS3Store(ctx, generation.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.Prefix,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("create s3 media store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// RunAPI serves HTTP until ctx is cancelled.
func (a *App) RunAPI(ctx context.Context) error {
	return a.server.Run(ctx)
}

// RunWorker runs the outbox worker and the trend refresher until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if err := a.refresher.Start(); err != nil {
		return err
	}
	defer a.refresher.Stop()

	a.worker.Start(ctx)
	defer a.worker.Stop()

	a.logger.Info("Background workers started",
		logger.Duration("poll_interval", a.config.Publishing.Worker.PollInterval),
		logger.String("refresh_schedule", a.config.Trends.RefreshSchedule))

	<-ctx.Done()
	a.logger.Info("Stopping background workers")
	return nil
}

// Run serves HTTP and runs the background workers. The first failure stops both.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunAPI(gctx) })
	g.Go(func() error { return a.RunWorker(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Invoke runs a skill the way POST /api/v1/skills/:name does.
func (a *App) Invoke(ctx context.Context, name skill.Name, body []byte) (any, error) {
	return a.skills.Invoke(ctx, name, body)
}

// RefreshTrends re-fetches every trend source and rewrites the cache.
func (a *App) RefreshTrends(ctx context.Context) error {
	return a.trends.Refresh(ctx)
}

// Close cleans up resources
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
}

// Package api exposes the skills and their supporting resources over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	infragin "github.com/jonesrussell/north-cloud/chimera/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	inframetrics "github.com/jonesrussell/north-cloud/chimera/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/chimera/internal/config"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

// Default timeout and limit constants.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	healthCheckTimeout  = 2 * time.Second
	maxBodyBytes        = 1 << 20
	defaultListLimit    = 50
	maxListLimit        = 200
)

// SkillInvoker runs skills by name.
type SkillInvoker interface {
	Invoke(ctx context.Context, name skill.Name, body []byte) (any, error)
	Enabled(name skill.Name) bool
}

// ContentService reads and evaluates drafts.
type ContentService interface {
	Get(ctx context.Context, id string) (*domain.Draft, error)
	List(ctx context.Context, f domain.DraftFilter) ([]domain.Draft, error)
	Evaluate(ctx context.Context, id string, e domain.Evaluation) (*domain.Draft, error)
}

// PublicationReader reads publications.
type PublicationReader interface {
	Get(ctx context.Context, id string) (*domain.Publication, error)
}

// OutboxStats reports the outbox state.
type OutboxStats interface {
	GetStats(ctx context.Context) (*domain.OutboxStats, error)
}

// Dependencies groups what the router serves. Nil services leave their routes out.
type Dependencies struct {
	Skills       SkillInvoker
	Content      ContentService
	Publications PublicationReader
	Outbox       OutboxStats
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *inframetrics.HTTPMetrics
	PingDB       func(ctx context.Context) error
	PingRedis    func(ctx context.Context) error
}

// Router holds the API dependencies
type Router struct {
	deps Dependencies
	cfg  *config.Config
}

// NewRouter creates a new API router
func NewRouter(deps Dependencies, cfg *config.Config) *Router {
	return &Router{deps: deps, cfg: cfg}
}

// NewServer creates a new HTTP server using the infrastructure gin package.
func (r *Router) NewServer(log logger.Logger) *infragin.Server {
	builder := infragin.NewServerBuilder(r.cfg.Service.Name, r.cfg.Service.Port).
		WithLogger(log).
		WithDebug(r.cfg.Service.Debug).
		WithVersion(r.cfg.Service.Version).
		WithTimeouts(defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout)

	if len(r.cfg.Service.CORSOrigins) > 0 {
		builder = builder.WithCORS(infragin.CORSConfig{
			Enabled:        true,
			AllowedOrigins: r.cfg.Service.CORSOrigins,
		})
	}
	if r.deps.HTTPMetrics != nil {
		builder = builder.WithMiddleware(r.deps.HTTPMetrics.Middleware())
	}
	if r.deps.PingDB != nil {
		builder = builder.WithDatabaseHealthCheck(withTimeout(r.deps.PingDB))
	}
	if r.deps.PingRedis != nil {
		builder = builder.WithRedisHealthCheck(withTimeout(r.deps.PingRedis))
	}

	return builder.WithRoutes(r.setupServiceRoutes).Build()
}

func withTimeout(ping func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		return ping(ctx)
	}
}

// setupServiceRoutes configures service-specific API routes (not health routes).
func (r *Router) setupServiceRoutes(router *gin.Engine) {
	if r.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(inframetrics.Handler(r.deps.Gatherer)))
	}

	v1 := infragin.ProtectedGroup(router, "/api/v1", r.cfg.Auth.JWTSecret)

	skills := v1.Group("/skills")
	skills.GET("", r.listSkills)
	skills.GET("/:name", r.getSkill)
	if r.deps.Skills != nil {
		skills.POST("/:name", r.invokeSkill)
	}

	if r.deps.Content != nil {
		content := v1.Group("/content")
		content.GET("", r.listContent)
		content.GET("/:id", r.getContent)
		content.POST("/:id/evaluation", r.evaluateContent)
	}

	if r.deps.Publications != nil {
		publications := v1.Group("/publications")
		if r.deps.Outbox != nil {
			publications.GET("/stats", r.outboxStats) // More specific route before :id
		}
		publications.GET("/:id", r.getPublication)
	}
}

// Package publishing implements publish_content: it checks that a draft may
// go out and records the publication in the outbox for the worker to dispatch.
package publishing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

const hoursPerDay = 24

// PublicationStore is the outbox table.
type PublicationStore interface {
	Create(ctx context.Context, p *domain.Publication) error
	GetByID(ctx context.Context, id string) (*domain.Publication, error)
	GetByIdempotencyKey(ctx context.Context, agentID, key string) (*domain.Publication, error)
}

// DraftReader loads drafts.
type DraftReader interface {
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
}

// Limiter counts publish requests per agent and platform.
type Limiter interface {
	Allow(ctx context.Context, agentID, platform string) (bool, time.Duration, error)
}

// Request is a validated publish_content input.
type Request struct {
	ContentID      string
	AgentID        string
	Platform       string
	ScheduledAt    *time.Time
	IdempotencyKey string
}

// Output is the publish_content result.
type Output struct {
	PublishID string                   `json:"publish_id"`
	ContentID string                   `json:"content_id"`
	Platform  string                   `json:"platform"`
	Status    domain.PublicationStatus `json:"status"`
}

// Config bounds schedules and retries.
type Config struct {
	MaxScheduleAhead time.Duration
	PastTolerance    time.Duration
	MaxRetries       int
}

// Service accepts publish requests.
type Service struct {
	publications PublicationStore
	drafts       DraftReader
	limiter      Limiter
	cfg          Config
	logger       logger.Logger
	now          func() time.Time
}

// NewService creates the publishing service.
func NewService(publications PublicationStore, drafts DraftReader, limiter Limiter, cfg Config, log logger.Logger) *Service {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = domain.DefaultPublicationMaxRetries
	}
	return &Service{
		publications: publications,
		drafts:       drafts,
		limiter:      limiter,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

// Publish runs the publish checks in order and enqueues the publication.
// Errors are skill errors.
func (s *Service) Publish(ctx context.Context, req Request) (*Output, error) {
	if req.IdempotencyKey != "" {
		out, err := s.replay(ctx, req)
		if err != nil || out != nil {
			return out, err
		}
	}

	draft, err := s.drafts.GetByID(ctx, req.ContentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, skill.NotFound("content %s not found", req.ContentID)
	case err != nil:
		return nil, skill.Unavailable(err, "draft storage unavailable; retry with backoff")
	case draft.AgentID != req.AgentID:
		return nil, skill.NotFound("content %s not found", req.ContentID)
	}

	now := s.now()
	if err = s.checkPublishable(draft, req, now); err != nil {
		return nil, err
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, req.AgentID, req.Platform)
	if err != nil {
		return nil, skill.Unavailable(err, "rate limiter unavailable; retry with backoff")
	}
	if !allowed {
		return nil, skill.RateLimited("publish rate limit reached for %s; retry in %ds",
			req.Platform, int(math.Ceil(retryAfter.Seconds())))
	}

	p := &domain.Publication{
		ID:         uuid.NewString(),
		ContentID:  req.ContentID,
		AgentID:    req.AgentID,
		Platform:   req.Platform,
		Status:     domain.PublicationQueued,
		MaxRetries: s.cfg.MaxRetries,
	}
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		p.ScheduledAt = &at
		if at.After(now) {
			p.Status = domain.PublicationScheduled
		}
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		p.IdempotencyKey = &key
	}

	err = s.publications.Create(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyConflict):
		// A concurrent request with the same key won the insert.
		out, rerr := s.replay(ctx, req)
		if rerr != nil || out != nil {
			return out, rerr
		}
		return nil, skill.Unavailable(err, "publication storage unavailable; retry with backoff")
	case errors.Is(err, domain.ErrDuplicateActive):
		return nil, skill.Conflict("content already published or queued for %s", req.Platform)
	default:
		return nil, skill.Unavailable(err, "publication storage unavailable; retry with backoff")
	}

	s.logger.Info("Publication queued",
		logger.String("publish_id", p.ID),
		logger.String("content_id", p.ContentID),
		logger.String("agent_id", p.AgentID),
		logger.String("platform", p.Platform),
		logger.String("status", string(p.Status)),
	)
	return toOutput(p), nil
}

// replay returns the stored publication for an idempotency key, nil when the
// key is unused, or 409 when it was used for a different request.
func (s *Service) replay(ctx context.Context, req Request) (*Output, error) {
	p, err := s.publications.GetByIdempotencyKey(ctx, req.AgentID, req.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, skill.Unavailable(err, "publication storage unavailable; retry with backoff")
	}
	if !p.SameRequest(req.ContentID, req.Platform, req.ScheduledAt) {
		return nil, skill.Conflict("idempotency key reused with a different request")
	}

	s.logger.Debug("Idempotent publish replayed",
		logger.String("publish_id", p.ID),
		logger.String("agent_id", req.AgentID),
	)
	return toOutput(p), nil
}

func (s *Service) checkPublishable(d *domain.Draft, req Request, now time.Time) error {
	switch err := d.Publishable(); {
	case errors.Is(err, domain.ErrDraftPending):
		return skill.Unprocessable("content %s is pending evaluation", d.ID)
	case errors.Is(err, domain.ErrDraftRejected):
		return skill.Unprocessable("content %s was rejected in evaluation", d.ID)
	case err != nil:
		return skill.Unprocessable("content %s is not publishable", d.ID)
	}

	if d.Platform != req.Platform {
		return skill.Unprocessable("content %s was generated for %s, not %s", d.ID, d.Platform, req.Platform)
	}

	if req.ScheduledAt != nil {
		if req.ScheduledAt.Before(now.Add(-s.cfg.PastTolerance)) {
			return skill.Unprocessable("scheduled_at is in the past")
		}
		if req.ScheduledAt.After(now.Add(s.cfg.MaxScheduleAhead)) {
			return skill.Unprocessable("scheduled_at must be within %d days",
				int(s.cfg.MaxScheduleAhead.Hours()/hoursPerDay))
		}
	}
	return nil
}

// Get returns a publication.
func (s *Service) Get(ctx context.Context, id string) (*domain.Publication, error) {
	return s.publications.GetByID(ctx, id)
}

func toOutput(p *domain.Publication) *Output {
	return &Output{
		PublishID: p.ID,
		ContentID: p.ContentID,
		Platform:  p.Platform,
		Status:    p.Status,
	}
}

package publishing

import (
	"context"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/chimera/internal/platform"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

const (
	maxIDLength             = 128
	maxIdempotencyKeyLength = 255
)

// Publisher is the part of Service the skill handler needs.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Output, error)
}

// Handler implements the publish_content skill.
type Handler struct {
	publisher Publisher
}

// NewHandler creates the skill handler.
func NewHandler(publisher Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// Skill implements skill.Handler.
func (h *Handler) Skill() skill.Name { return skill.PublishContent }

type publishInput struct {
	ContentID      string  `json:"content_id"`
	AgentID        string  `json:"agent_id"`
	Platform       string  `json:"platform"`
	ScheduledAt    *string `json:"scheduled_at"`
	IdempotencyKey *string `json:"idempotency_key"`
}

// Invoke validates the input and publishes.
func (h *Handler) Invoke(ctx context.Context, body []byte) (any, error) {
	var in publishInput
	if err := skill.DecodeInput(body, &in); err != nil {
		return nil, err
	}
	req, err := parseRequest(in)
	if err != nil {
		return nil, err
	}
	out, err := h.publisher.Publish(ctx, req)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseRequest(in publishInput) (Request, error) {
	req := Request{
		ContentID: strings.TrimSpace(in.ContentID),
		AgentID:   strings.TrimSpace(in.AgentID),
		Platform:  strings.ToLower(strings.TrimSpace(in.Platform)),
	}

	if req.ContentID == "" {
		return req, skill.BadRequest("content_id must not be blank")
	}
	if len(req.ContentID) > maxIDLength {
		return req, skill.BadRequest("content_id must be at most %d characters", maxIDLength)
	}
	if req.AgentID == "" {
		return req, skill.BadRequest("agent_id must not be blank")
	}
	if len(req.AgentID) > maxIDLength {
		return req, skill.BadRequest("agent_id must be at most %d characters", maxIDLength)
	}
	if _, ok := platform.Lookup(req.Platform); !ok {
		return req, skill.BadRequest("platform must be one of %s", strings.Join(platform.Names(), ", "))
	}

	if in.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, *in.ScheduledAt)
		if err != nil {
			return req, skill.BadRequest("scheduled_at must be an RFC 3339 timestamp")
		}
		req.ScheduledAt = &at
	}

	if in.IdempotencyKey != nil {
		key := *in.IdempotencyKey
		if key == "" || len(key) > maxIdempotencyKeyLength {
			return req, skill.BadRequest("idempotency_key must be 1 to %d characters", maxIdempotencyKeyLength)
		}
		req.IdempotencyKey = key
	}
	return req, nil
}

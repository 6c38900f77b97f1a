package trends

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

// MaxAgentIDLength bounds agent identifiers across skills.
const MaxAgentIDLength = 128

// Fetcher is the part of Service the skill handler needs.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]domain.Trend, error)
}

// Handler implements the fetch_trends skill.
type Handler struct {
	fetcher      Fetcher
	defaultLimit int
	maxLimit     int
}

// NewHandler creates the skill handler.
func NewHandler(fetcher Fetcher, defaultLimit, maxLimit int) *Handler {
	return &Handler{fetcher: fetcher, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Skill implements skill.Handler.
func (h *Handler) Skill() skill.Name { return skill.FetchTrends }

type fetchInput struct {
	AgentID string   `json:"agent_id"`
	Sources []string `json:"sources"`
	Since   *string  `json:"since"`
	Limit   *int     `json:"limit"`
}

// Output is the fetch_trends result.
type Output struct {
	Trends []domain.Trend `json:"trends"`
}

// Invoke validates the input and fetches trends.
func (h *Handler) Invoke(ctx context.Context, body []byte) (any, error) {
	var in fetchInput
	if err := skill.DecodeInput(body, &in); err != nil {
		return nil, err
	}
	q, err := h.parse(in)
	if err != nil {
		return nil, err
	}

	trends, err := h.fetcher.Fetch(ctx, q)
	switch {
	case err == nil:
		return Output{Trends: trends}, nil
	case errors.Is(err, ErrUnknownSource):
		return nil, skill.BadRequest("%s", err.Error())
	case errors.Is(err, ErrNoSources):
		return nil, skill.Unavailable(err, "no trend sources enabled; retry with backoff")
	default:
		return nil, skill.Unavailable(err, "trend source unavailable; retry with backoff")
	}
}

func (h *Handler) parse(in fetchInput) (Query, error) {
	agentID := strings.TrimSpace(in.AgentID)
	if agentID == "" {
		return Query{}, skill.BadRequest("agent_id must not be blank")
	}
	if len(agentID) > MaxAgentIDLength {
		return Query{}, skill.BadRequest("agent_id must be at most %d characters", MaxAgentIDLength)
	}

	q := Query{Limit: h.defaultLimit}
	for _, name := range in.Sources {
		name = strings.TrimSpace(name)
		if name == "" {
			return Query{}, skill.BadRequest("sources must not contain blank names")
		}
		q.Sources = append(q.Sources, name)
	}

	if in.Since != nil {
		since, err := time.Parse(time.RFC3339, *in.Since)
		if err != nil {
			return Query{}, skill.BadRequest("since must be an RFC 3339 timestamp")
		}
		q.Since = &since
	}

	if in.Limit != nil {
		if *in.Limit < 1 || *in.Limit > h.maxLimit {
			return Query{}, skill.BadRequest("limit must be between 1 and %d", h.maxLimit)
		}
		q.Limit = *in.Limit
	}
	return q, nil
}

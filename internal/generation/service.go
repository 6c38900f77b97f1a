package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/platform"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

const (
	defaultShortVideoSeconds = 30
	defaultVideoSeconds      = 90
	manifestContentType      = "application/json"
)

// TrendLookup resolves trend ids returned by fetch_trends.
type TrendLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]domain.Trend, error)
}

// DraftStore persists drafts.
type DraftStore interface {
	Create(ctx context.Context, d *domain.Draft) error
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
	List(ctx context.Context, f domain.DraftFilter) ([]domain.Draft, error)
	Evaluate(ctx context.Context, id string, e domain.Evaluation) (*domain.Draft, error)
}

// Request is a validated generate_video input.
type Request struct {
	AgentID     string
	SlotID      string
	ContentType domain.ContentType
	Platform    string
	Topic       string
	ContextRefs []string

	// Zero values mean the constraint was not given.
	MaxDurationSeconds int
	AspectRatio        string
	Language           string
	Tone               string
	MaxCaptionChars    int
}

// Body is the generated content returned to the agent.
type Body struct {
	Text     string         `json:"text"`
	MediaURI string         `json:"media_uri"`
	Metadata map[string]any `json:"metadata"`
}

// Output is the generate_video result.
type Output struct {
	ContentID         string `json:"content_id"`
	SlotID            string `json:"slot_id"`
	Body              Body   `json:"body"`
	EvaluationPending bool   `json:"evaluation_pending"`
}

// Manifest is the storyboard handed to the downstream renderer.
type Manifest struct {
	ContentID       string             `json:"content_id"`
	AgentID         string             `json:"agent_id"`
	SlotID          string             `json:"slot_id"`
	Platform        string             `json:"platform"`
	ContentType     domain.ContentType `json:"content_type"`
	AspectRatio     string             `json:"aspect_ratio"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
	Language        string             `json:"language"`
	Tone            string             `json:"tone"`
	Text            string             `json:"text"`
	Scenes          []Scene            `json:"scenes"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Defaults fill in constraints the agent leaves out.
type Defaults struct {
	Language string
	Tone     string
}

// Service generates drafts and manages their evaluation.
type Service struct {
	writer   Writer
	media    MediaStore
	drafts   DraftStore
	trends   TrendLookup
	defaults Defaults
	logger   logger.Logger
	now      func() time.Time
}

// NewService creates the generation service.
func NewService(writer Writer, media MediaStore, drafts DraftStore, trends TrendLookup, defaults Defaults, log logger.Logger) *Service {
	return &Service{
		writer:   writer,
		media:    media,
		drafts:   drafts,
		trends:   trends,
		defaults: defaults,
		logger:   log,
		now:      time.Now,
	}
}

// Generate writes, stores and saves a draft. Errors are skill errors.
func (s *Service) Generate(ctx context.Context, req Request) (*Output, error) {
	spec, brief, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	refs, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	brief.Trends = refs
	if brief.Topic == "" && len(brief.Trends) == 0 {
		return nil, skill.Unprocessable("topic or context_refs is required to have something to write about")
	}

	script, err := s.writer.Write(ctx, brief)
	if err != nil {
		return nil, skill.Unavailable(err, "writer unavailable; retry with backoff")
	}
	text := Truncate(script.Text, brief.MaxChars)

	contentID := uuid.NewString()
	manifest := Manifest{
		ContentID:       contentID,
		AgentID:         req.AgentID,
		SlotID:          req.SlotID,
		Platform:        spec.Name,
		ContentType:     req.ContentType,
		AspectRatio:     brief.AspectRatio,
		DurationSeconds: brief.DurationSeconds,
		Language:        brief.Language,
		Tone:            brief.Tone,
		Text:            text,
		Scenes:          script.Scenes,
		CreatedAt:       s.now().UTC(),
	}
	if manifest.Scenes == nil {
		manifest.Scenes = []Scene{}
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, skill.Unavailable(err, "encode storyboard")
	}

	key := fmt.Sprintf("%s/%s/storyboard.json", url.PathEscape(req.AgentID), contentID)
	mediaURI, err := s.media.Put(ctx, key, data, manifestContentType)
	if err != nil {
		return nil, skill.Unavailable(err, "media storage unavailable; retry with backoff")
	}

	metadata := s.metadata(req, brief)
	draft := &domain.Draft{
		ID:          contentID,
		AgentID:     req.AgentID,
		SlotID:      req.SlotID,
		ContentType: req.ContentType,
		Platform:    spec.Name,
		Topic:       req.Topic,
		BodyText:    text,
		MediaURI:    mediaURI,
		Metadata:    metadata,
		ContextRefs: brief.refIDs(),
		Status:      domain.DraftPendingEvaluation,
	}
	if err = s.drafts.Create(ctx, draft); err != nil {
		s.logger.Warn("Storyboard stored without a draft",
			logger.String("content_id", contentID),
			logger.String("media_uri", mediaURI),
			logger.Error(err),
		)
		return nil, skill.Unavailable(err, "draft storage unavailable; retry with backoff")
	}

	s.logger.Info("Draft generated",
		logger.String("content_id", contentID),
		logger.String("agent_id", req.AgentID),
		logger.String("slot_id", req.SlotID),
		logger.String("platform", spec.Name),
		logger.String("content_type", string(req.ContentType)),
		logger.String("writer", s.writer.Name()),
	)

	return &Output{
		ContentID:         contentID,
		SlotID:            req.SlotID,
		Body:              Body{Text: text, MediaURI: mediaURI, Metadata: metadata},
		EvaluationPending: true,
	}, nil
}

// plan applies the platform catalog to the request.
func (s *Service) plan(req Request) (platform.Spec, Brief, error) {
	spec, ok := platform.Lookup(req.Platform)
	if !ok {
		return spec, Brief{}, skill.BadRequest("unknown platform %q", req.Platform)
	}
	if !spec.Supports(req.ContentType) {
		return spec, Brief{}, skill.Unprocessable("%s does not support %s content", spec.Name, req.ContentType)
	}

	b := Brief{
		Platform:    spec.Name,
		ContentType: req.ContentType,
		Topic:       req.Topic,
		Language:    firstNonEmpty(req.Language, s.defaults.Language),
		Tone:        firstNonEmpty(req.Tone, s.defaults.Tone),
		MaxChars:    spec.MaxCaptionChars,
	}
	if req.MaxCaptionChars > 0 && req.MaxCaptionChars < b.MaxChars {
		b.MaxChars = req.MaxCaptionChars
	}

	if req.AspectRatio != "" && !spec.AcceptsAspectRatio(req.AspectRatio) {
		return spec, Brief{}, skill.Unprocessable("%s does not accept aspect ratio %s", spec.Name, req.AspectRatio)
	}
	if req.ContentType != domain.ContentText {
		b.AspectRatio = firstNonEmpty(req.AspectRatio, spec.DefaultAspectRatio(req.ContentType))
	}

	if req.ContentType.IsVideo() {
		limit := spec.MaxDuration(req.ContentType)
		if req.MaxDurationSeconds > limit {
			return spec, Brief{}, skill.Unprocessable("max_duration_seconds %d exceeds the %s limit of %d for %s",
				req.MaxDurationSeconds, spec.Name, limit, req.ContentType)
		}
		b.DurationSeconds = req.MaxDurationSeconds
		if b.DurationSeconds == 0 {
			b.DurationSeconds = defaultShortVideoSeconds
			if req.ContentType == domain.ContentVideo {
				b.DurationSeconds = defaultVideoSeconds
			}
			b.DurationSeconds = min(b.DurationSeconds, limit)
		}
	}
	return spec, b, nil
}

// resolve looks up context_refs in the trend index, preserving request order.
func (s *Service) resolve(ctx context.Context, req Request) ([]domain.Trend, error) {
	if len(req.ContextRefs) == 0 {
		return nil, nil
	}
	found, err := s.trends.Lookup(ctx, req.ContextRefs)
	if err != nil {
		return nil, skill.Unavailable(err, "trend index unavailable; retry with backoff")
	}

	var unknown []string
	out := make([]domain.Trend, 0, len(req.ContextRefs))
	for _, id := range req.ContextRefs {
		tr, ok := found[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, tr)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, skill.Unprocessable("unknown context_refs: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func (s *Service) metadata(req Request, b Brief) map[string]any {
	labels := make([]string, 0, len(b.Trends))
	for _, tr := range b.Trends {
		labels = append(labels, tr.Label)
	}
	m := map[string]any{
		"platform":      b.Platform,
		"content_type":  string(b.ContentType),
		"topic":         req.Topic,
		"aspect_ratio":  b.AspectRatio,
		"language":      b.Language,
		"tone":          b.Tone,
		"writer":        s.writer.Name(),
		"context_refs":  b.refIDs(),
		"trend_labels":  labels,
		"caption_limit": b.MaxChars,
	}
	if b.ContentType.IsVideo() {
		m["duration_seconds"] = b.DurationSeconds
	}
	return m
}

func (b Brief) refIDs() []string {
	ids := make([]string, 0, len(b.Trends))
	for _, tr := range b.Trends {
		ids = append(ids, tr.ID)
	}
	return ids
}

// Get returns a draft.
func (s *Service) Get(ctx context.Context, id string) (*domain.Draft, error) {
	return s.drafts.GetByID(ctx, id)
}

// List returns drafts matching the filter.
func (s *Service) List(ctx context.Context, f domain.DraftFilter) ([]domain.Draft, error) {
	return s.drafts.List(ctx, f)
}

// Evaluate records a reviewer decision on a pending draft.
func (s *Service) Evaluate(ctx context.Context, id string, e domain.Evaluation) (*domain.Draft, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	d, err := s.drafts.Evaluate(ctx, id, e)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Draft evaluated",
		logger.String("content_id", id),
		logger.String("decision", string(e.Decision)),
		logger.String("reviewer", e.Reviewer),
	)
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

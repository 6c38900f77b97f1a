package generation

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/platform"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

const (
	maxIDLength      = 128
	maxTopicLength   = 280
	maxToneLength    = 64
	maxContextRefs   = 20
	maxConstraintInt = 1_000_000
)

// AspectRatios lists the ratios a constraint may name.
var AspectRatios = []string{"16:9", "9:16", "1:1", "4:5"}

var languageTag = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

// Generator is the part of Service the skill handler needs.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Output, error)
}

// Handler implements the generate_video skill.
type Handler struct {
	generator Generator
}

// NewHandler creates the skill handler.
func NewHandler(generator Generator) *Handler {
	return &Handler{generator: generator}
}

// Skill implements skill.Handler.
func (h *Handler) Skill() skill.Name { return skill.GenerateVideo }

type constraintsInput struct {
	MaxDurationSeconds *int    `json:"max_duration_seconds"`
	AspectRatio        *string `json:"aspect_ratio"`
	Language           *string `json:"language"`
	Tone               *string `json:"tone"`
	MaxCaptionChars    *int    `json:"max_caption_chars"`
}

type generateInput struct {
	AgentID     string            `json:"agent_id"`
	SlotID      string            `json:"slot_id"`
	ContentType string            `json:"content_type"`
	Platform    string            `json:"platform"`
	Topic       *string           `json:"topic"`
	Constraints *constraintsInput `json:"constraints"`
	ContextRefs []string          `json:"context_refs"`
}

// Invoke validates the input and generates a draft.
func (h *Handler) Invoke(ctx context.Context, body []byte) (any, error) {
	var in generateInput
	if err := skill.DecodeInput(body, &in); err != nil {
		return nil, err
	}
	req, err := parseRequest(in)
	if err != nil {
		return nil, err
	}
	out, err := h.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseRequest(in generateInput) (Request, error) {
	var req Request
	var err error

	if req.AgentID, err = requireID("agent_id", in.AgentID); err != nil {
		return req, err
	}
	if req.SlotID, err = requireID("slot_id", in.SlotID); err != nil {
		return req, err
	}

	req.ContentType = domain.ContentType(strings.TrimSpace(in.ContentType))
	if !req.ContentType.Valid() {
		return req, skill.BadRequest("content_type must be one of video, short_video, image, text")
	}

	req.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	if _, ok := platform.Lookup(req.Platform); !ok {
		return req, skill.BadRequest("platform must be one of %s", strings.Join(platform.Names(), ", "))
	}

	if in.Topic != nil {
		req.Topic = strings.TrimSpace(*in.Topic)
		if utf8.RuneCountInString(req.Topic) > maxTopicLength {
			return req, skill.BadRequest("topic must be at most %d characters", maxTopicLength)
		}
	}

	if len(in.ContextRefs) > maxContextRefs {
		return req, skill.BadRequest("context_refs must have at most %d entries", maxContextRefs)
	}
	for _, ref := range in.ContextRefs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return req, skill.BadRequest("context_refs must not contain blank ids")
		}
		if !slices.Contains(req.ContextRefs, ref) {
			req.ContextRefs = append(req.ContextRefs, ref)
		}
	}

	if in.Constraints != nil {
		if err = applyConstraints(&req, *in.Constraints); err != nil {
			return req, err
		}
	}
	return req, nil
}

func applyConstraints(req *Request, c constraintsInput) error {
	if c.MaxDurationSeconds != nil {
		if *c.MaxDurationSeconds < 1 || *c.MaxDurationSeconds > maxConstraintInt {
			return skill.BadRequest("constraints.max_duration_seconds must be a positive integer")
		}
		req.MaxDurationSeconds = *c.MaxDurationSeconds
	}
	if c.MaxCaptionChars != nil {
		if *c.MaxCaptionChars < 1 || *c.MaxCaptionChars > maxConstraintInt {
			return skill.BadRequest("constraints.max_caption_chars must be a positive integer")
		}
		req.MaxCaptionChars = *c.MaxCaptionChars
	}
	if c.AspectRatio != nil {
		if !slices.Contains(AspectRatios, *c.AspectRatio) {
			return skill.BadRequest("constraints.aspect_ratio must be one of %s", strings.Join(AspectRatios, ", "))
		}
		req.AspectRatio = *c.AspectRatio
	}
	if c.Language != nil {
		if !languageTag.MatchString(*c.Language) {
			return skill.BadRequest("constraints.language must be a language tag such as en or pt-BR")
		}
		req.Language = *c.Language
	}
	if c.Tone != nil {
		tone := strings.TrimSpace(*c.Tone)
		if tone == "" || len(tone) > maxToneLength {
			return skill.BadRequest("constraints.tone must be 1 to %d characters", maxToneLength)
		}
		req.Tone = tone
	}
	return nil
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", skill.BadRequest("%s must not be blank", field)
	}
	if len(value) > maxIDLength {
		return "", skill.BadRequest("%s must be at most %d characters", field, maxIDLength)
	}
	return value, nil
}

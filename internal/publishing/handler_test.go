package publishing_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/publishing"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

type recordingPublisher struct {
	got publishing.Request
}

func (p *recordingPublisher) Publish(_ context.Context, req publishing.Request) (*publishing.Output, error) {
	p.got = req
	return &publishing.Output{PublishID: "p", ContentID: req.ContentID, Platform: req.Platform, Status: domain.PublicationQueued}, nil
}

func TestHandler_Invoke(t *testing.T) {
	t.Parallel()

	p := &recordingPublisher{}
	h := publishing.NewHandler(p)

	out, err := h.Invoke(context.Background(), []byte(`{"content_id":"c1","agent_id":"a1","platform":" LinkedIn ",
		"scheduled_at":"2026-10-20T15:00:00+02:00","idempotency_key":"k-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "c1", p.got.ContentID)
	assert.Equal(t, "linkedin", p.got.Platform)
	assert.Equal(t, "k-1", p.got.IdempotencyKey)
	require.NotNil(t, p.got.ScheduledAt)
	assert.True(t, p.got.ScheduledAt.Equal(time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)))

	c, _ := skill.Lookup(skill.PublishContent)
	m := map[string]any{}
	o := out.(*publishing.Output)
	m["publish_id"], m["content_id"], m["platform"], m["status"] = o.PublishID, o.ContentID, o.Platform, o.Status
	assert.Empty(t, c.MissingOutputKeys(m))
}

func TestHandler_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"blank content", `{"content_id":"","agent_id":"a","platform":"x"}`, "content_id must not be blank"},
		{"blank agent", `{"content_id":"c","agent_id":"  ","platform":"x"}`, "agent_id must not be blank"},
		{"long agent", fmt.Sprintf(`{"content_id":"c","agent_id":%q,"platform":"x"}`, strings.Repeat("a", 129)), "agent_id must be at most 128 characters"},
		{"bad platform", `{"content_id":"c","agent_id":"a","platform":"friendster"}`, "platform must be one of instagram, linkedin, tiktok, x, youtube"},
		{"bad schedule", `{"content_id":"c","agent_id":"a","platform":"x","scheduled_at":"tomorrow"}`, "scheduled_at must be an RFC 3339 timestamp"},
		{"empty key", `{"content_id":"c","agent_id":"a","platform":"x","idempotency_key":""}`, "idempotency_key must be 1 to 255 characters"},
		{"long key", fmt.Sprintf(`{"content_id":"c","agent_id":"a","platform":"x","idempotency_key":%q}`, strings.Repeat("k", 256)), "idempotency_key must be 1 to 255 characters"},
		{"key not string", `{"content_id":"c","agent_id":"a","platform":"x","idempotency_key":5}`, "idempotency_key must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := publishing.NewHandler(&recordingPublisher{}).Invoke(context.Background(), []byte(tt.body))
			se, ok := skill.AsError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, skill.CodeBadRequest, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
		})
	}
}

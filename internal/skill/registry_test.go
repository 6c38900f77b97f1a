package skill_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

type stubHandler struct {
	name skill.Name
	out  any
	err  error
	got  []byte
}

func (s *stubHandler) Skill() skill.Name { return s.name }

func (s *stubHandler) Invoke(_ context.Context, input []byte) (any, error) {
	s.got = input
	return s.out, s.err
}

type recordingObserver struct {
	mu    sync.Mutex
	codes []string
}

func (o *recordingObserver) ObserveSkill(_ string, code string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

func TestRegistry_Invoke(t *testing.T) {
	t.Parallel()

	h := &stubHandler{name: skill.FetchTrends, out: map[string]any{"trends": []any{}}}
	obs := &recordingObserver{}
	reg := skill.NewRegistry(logger.NewNop(), obs, h)

	out, err := reg.Invoke(context.Background(), skill.FetchTrends, []byte(`{"agent_id":"a1","limit":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"trends": []any{}}, out)
	assert.JSONEq(t, `{"agent_id":"a1","limit":null}`, string(h.got))
	assert.Equal(t, []string{"200"}, obs.codes)
}

func TestRegistry_InvokeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		skill    skill.Name
		handlers []skill.Handler
		body     string
		wantCode skill.Code
		wantMsg  string
	}{
		{
			name:     "not an object",
			skill:    skill.FetchTrends,
			body:     `["agent_id"]`,
			wantCode: skill.CodeBadRequest,
			wantMsg:  "request body must be a JSON object",
		},
		{
			name:     "null body",
			skill:    skill.FetchTrends,
			body:     `null`,
			wantCode: skill.CodeBadRequest,
			wantMsg:  "request body must be a JSON object",
		},
		{
			name:     "missing required",
			skill:    skill.GenerateVideo,
			body:     `{"agent_id":"a","slot_id":"s","platform":"x"}`,
			wantCode: skill.CodeBadRequest,
			wantMsg:  "content_type is required",
		},
		{
			name:     "disabled skill",
			skill:    skill.PublishContent,
			body:     `{"content_id":"c","agent_id":"a","platform":"x"}`,
			wantCode: skill.CodeUnavailable,
			wantMsg:  "skill publish_content not enabled",
		},
		{
			name:  "undeclared handler code",
			skill: skill.GenerateVideo,
			handlers: []skill.Handler{&stubHandler{
				name: skill.GenerateVideo,
				err:  skill.Conflict("already exists"),
			}},
			body:     `{"agent_id":"a","slot_id":"s","content_type":"text","platform":"x"}`,
			wantCode: skill.CodeUnavailable,
			wantMsg:  "generate_video unavailable; retry with backoff",
		},
		{
			name:  "plain handler error",
			skill: skill.FetchTrends,
			handlers: []skill.Handler{&stubHandler{
				name: skill.FetchTrends,
				err:  errors.New("redis down"),
			}},
			body:     `{"agent_id":"a"}`,
			wantCode: skill.CodeUnavailable,
			wantMsg:  "fetch_trends unavailable; retry with backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := &recordingObserver{}
			reg := skill.NewRegistry(logger.NewNop(), obs, tt.handlers...)

			_, err := reg.Invoke(context.Background(), tt.skill, []byte(tt.body))
			se, ok := skill.AsError(err)
			require.True(t, ok, "error %v is not a skill error", err)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, []string{string(tt.wantCode)}, obs.codes)
		})
	}
}

func TestRegistry_UnknownSkill(t *testing.T) {
	t.Parallel()

	reg := skill.NewRegistry(logger.NewNop(), nil)
	_, err := reg.Invoke(context.Background(), "render", []byte(`{}`))
	require.ErrorIs(t, err, skill.ErrUnknownSkill)
	_, isSkillErr := skill.AsError(err)
	assert.False(t, isSkillErr)
}

func TestRegistry_Enabled(t *testing.T) {
	t.Parallel()

	reg := skill.NewRegistry(logger.NewNop(), nil, &stubHandler{name: skill.FetchTrends})
	assert.True(t, reg.Enabled(skill.FetchTrends))
	assert.False(t, reg.Enabled(skill.PublishContent))
}

func TestDecodeInput(t *testing.T) {
	t.Parallel()

	type input struct {
		AgentID string   `json:"agent_id"`
		Limit   *int     `json:"limit"`
		Sources []string `json:"sources"`
	}

	var in input
	require.NoError(t, skill.DecodeInput([]byte(`{"agent_id":"a","limit":5,"sources":["x"]}`), &in))
	assert.Equal(t, 5, *in.Limit)

	err := skill.DecodeInput([]byte(`{"agent_id":"a","limit":"five"}`), &input{})
	se, ok := skill.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "limit must be a number", se.Message)

	err = skill.DecodeInput([]byte(`{"agent_id":"a","sources":"x"}`), &input{})
	se, _ = skill.AsError(err)
	assert.Equal(t, "sources must be a list", se.Message)

	err = skill.DecodeInput([]byte(`{"agent_id":"a","extra":1}`), &input{})
	se, _ = skill.AsError(err)
	assert.Equal(t, `unknown input "extra"`, se.Message)
}

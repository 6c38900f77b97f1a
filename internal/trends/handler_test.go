package trends_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
	"github.com/jonesrussell/north-cloud/chimera/internal/trends"
)

type stubFetcher struct {
	got    trends.Query
	trends []domain.Trend
	err    error
}

func (s *stubFetcher) Fetch(_ context.Context, q trends.Query) ([]domain.Trend, error) {
	s.got = q
	return s.trends, s.err
}

func TestHandler_Invoke(t *testing.T) {
	t.Parallel()

	tr, err := domain.NewTrend("news", domain.TrendTopic, "Eclipse", baseTime, nil)
	require.NoError(t, err)
	f := &stubFetcher{trends: []domain.Trend{tr}}
	h := trends.NewHandler(f, 20, 100)

	out, err := h.Invoke(context.Background(), []byte(`{"agent_id":"agent-7","sources":["news"],"since":"2026-10-18T08:00:00Z","limit":5}`))
	require.NoError(t, err)
	assert.Equal(t, trends.Output{Trends: []domain.Trend{tr}}, out)
	assert.Equal(t, []string{"news"}, f.got.Sources)
	assert.Equal(t, 5, f.got.Limit)
	require.NotNil(t, f.got.Since)
	assert.True(t, f.got.Since.Equal(time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)))

	_, err = h.Invoke(context.Background(), []byte(`{"agent_id":"agent-7"}`))
	require.NoError(t, err)
	assert.Equal(t, 20, f.got.Limit)
	assert.Nil(t, f.got.Since)
}

func TestHandler_InvalidInput(t *testing.T) {
	t.Parallel()

	h := trends.NewHandler(&stubFetcher{}, 20, 100)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"blank agent", `{"agent_id":"  "}`, "agent_id must not be blank"},
		{"long agent", fmt.Sprintf(`{"agent_id":%q}`, strings.Repeat("a", 129)), "agent_id must be at most 128 characters"},
		{"agent not a string", `{"agent_id":7}`, "agent_id must be a string"},
		{"bad since", `{"agent_id":"a","since":"yesterday"}`, "since must be an RFC 3339 timestamp"},
		{"limit zero", `{"agent_id":"a","limit":0}`, "limit must be between 1 and 100"},
		{"limit too big", `{"agent_id":"a","limit":101}`, "limit must be between 1 and 100"},
		{"blank source", `{"agent_id":"a","sources":[""]}`, "sources must not contain blank names"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.Invoke(context.Background(), []byte(tt.body))
			se, ok := skill.AsError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, skill.CodeBadRequest, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
		})
	}
}

func TestHandler_FetchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode skill.Code
	}{
		{"unknown source", fmt.Errorf("%w %q", trends.ErrUnknownSource, "z"), skill.CodeBadRequest},
		{"all failed", fmt.Errorf("%w: boom", trends.ErrAllSourcesFailed), skill.CodeUnavailable},
		{"no sources", trends.ErrNoSources, skill.CodeUnavailable},
		{"other", errors.New("redis down"), skill.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := trends.NewHandler(&stubFetcher{err: tt.err}, 20, 100)
			_, err := h.Invoke(context.Background(), []byte(`{"agent_id":"a"}`))
			se, ok := skill.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, se.Code)
		})
	}
}

func TestHandler_OutputMatchesContract(t *testing.T) {
	t.Parallel()

	tr, _ := domain.NewTrend("news", domain.TrendTopic, "Eclipse", baseTime, nil)
	h := trends.NewHandler(&stubFetcher{trends: []domain.Trend{tr}}, 20, 100)
	out, err := h.Invoke(context.Background(), []byte(`{"agent_id":"a"}`))
	require.NoError(t, err)

	c, _ := skill.Lookup(skill.FetchTrends)
	assert.Empty(t, c.MissingOutputKeys(toMap(t, out)))
	items := toMap(t, out)["trends"].([]any)
	for _, key := range c.ItemKeys {
		assert.Contains(t, items[0], key)
	}
}

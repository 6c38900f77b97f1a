package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/generation"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

var observed = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]*domain.Draft
	err    error
}

func (m *memDrafts) Create(_ context.Context, d *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.drafts == nil {
		m.drafts = map[string]*domain.Draft{}
	}
	cp := *d
	m.drafts[d.ID] = &cp
	return nil
}

func (m *memDrafts) GetByID(_ context.Context, id string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *memDrafts) List(context.Context, domain.DraftFilter) ([]domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Draft, 0, len(m.drafts))
	for _, d := range m.drafts {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memDrafts) Evaluate(_ context.Context, id string, e domain.Evaluation) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.Status != domain.DraftPendingEvaluation {
		return nil, domain.ErrNotPending
	}
	d.Status = e.Decision
	return d, nil
}

type mapLookup struct {
	trends map[string]domain.Trend
	err    error
}

func (l mapLookup) Lookup(_ context.Context, ids []string) (map[string]domain.Trend, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := map[string]domain.Trend{}
	for _, id := range ids {
		if tr, ok := l.trends[id]; ok {
			out[id] = tr
		}
	}
	return out, nil
}

type failingWriter struct{}

func (failingWriter) Name() string { return "failing" }

func (failingWriter) Write(context.Context, generation.Brief) (generation.Script, error) {
	return generation.Script{}, errors.New("overloaded")
}

type failingMedia struct{}

func (failingMedia) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unreachable")
}

func indexed(t *testing.T, trends ...domain.Trend) mapLookup {
	t.Helper()
	m := map[string]domain.Trend{}
	for _, tr := range trends {
		m[tr.ID] = tr
	}
	return mapLookup{trends: m}
}

func newTrend(t *testing.T, typ domain.TrendType, label string) domain.Trend {
	t.Helper()
	tr, err := domain.NewTrend("news", typ, label, observed, nil)
	require.NoError(t, err)
	return tr
}

func newGenerationService(t *testing.T, drafts *memDrafts, lookup generation.TrendLookup) (*generation.Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc := generation.NewService(
		generation.NewTemplateWriter(),
		generation.NewLocalStore(dir),
		drafts, lookup,
		generation.Defaults{Language: "en", Tone: "informative"},
		logger.NewNop(),
	)
	return svc, dir
}

func TestService_Generate(t *testing.T) {
	t.Parallel()

	eclipse := newTrend(t, domain.TrendTopic, "Solar eclipse")
	tag := newTrend(t, domain.TrendHashtag, "#eclipse2026")
	drafts := &memDrafts{}
	svc, dir := newGenerationService(t, drafts, indexed(t, eclipse, tag))

	out, err := svc.Generate(context.Background(), generation.Request{
		AgentID:     "agent-1",
		SlotID:      "slot-9",
		ContentType: domain.ContentShortVideo,
		Platform:    "youtube",
		ContextRefs: []string{eclipse.ID, tag.ID},
	})
	require.NoError(t, err)

	assert.True(t, out.EvaluationPending)
	assert.Equal(t, "slot-9", out.SlotID)
	assert.Contains(t, out.Body.Text, "Solar eclipse")
	assert.Contains(t, out.Body.Text, "#eclipse2026")
	assert.Equal(t, "storage://agent-1/"+out.ContentID+"/storyboard.json", out.Body.MediaURI)

	md := out.Body.Metadata
	assert.Equal(t, "youtube", md["platform"])
	assert.Equal(t, "short_video", md["content_type"])
	assert.Equal(t, "9:16", md["aspect_ratio"])
	assert.Equal(t, 30, md["duration_seconds"])
	assert.Equal(t, "template", md["writer"])
	assert.Equal(t, []string{"Solar eclipse", "#eclipse2026"}, md["trend_labels"])
	assert.Equal(t, []string{eclipse.ID, tag.ID}, md["context_refs"])

	stored, err := drafts.GetByID(context.Background(), out.ContentID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftPendingEvaluation, stored.Status)
	assert.Equal(t, out.Body.Text, stored.BodyText)

	raw, err := os.ReadFile(filepath.Join(dir, "agent-1", out.ContentID, "storyboard.json"))
	require.NoError(t, err)
	var manifest generation.Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, out.ContentID, manifest.ContentID)
	assert.Equal(t, 30, manifest.DurationSeconds)
	require.NotEmpty(t, manifest.Scenes)
	total := 0
	for _, s := range manifest.Scenes {
		total += s.DurationSeconds
	}
	assert.Equal(t, 30, total)

	c, _ := skill.Lookup(skill.GenerateVideo)
	assert.Empty(t, c.MissingOutputKeys(toMap(t, out)))
}

func TestService_GenerateTruncatesToCaptionLimit(t *testing.T) {
	t.Parallel()

	svc, _ := newGenerationService(t, &memDrafts{}, mapLookup{})
	topic := strings.Repeat("very long topic words ", 12)

	out, err := svc.Generate(context.Background(), generation.Request{
		AgentID: "a", SlotID: "s", ContentType: domain.ContentText, Platform: "x", Topic: topic,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Body.Text), 280)
	assert.Equal(t, 280, out.Body.Metadata["caption_limit"])
	assert.NotContains(t, out.Body.Metadata, "duration_seconds")

	out, err = svc.Generate(context.Background(), generation.Request{
		AgentID: "a", SlotID: "s", ContentType: domain.ContentText, Platform: "linkedin", Topic: topic,
		MaxCaptionChars: 40,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Body.Text), 40)
	assert.True(t, strings.HasSuffix(out.Body.Text, "…"))
}

func TestService_GenerateUnprocessable(t *testing.T) {
	t.Parallel()

	known := newTrend(t, domain.TrendTopic, "Budget")
	tests := []struct {
		name    string
		req     generation.Request
		wantMsg string
	}{
		{
			name:    "content type not supported",
			req:     generation.Request{ContentType: domain.ContentText, Platform: "instagram", Topic: "t"},
			wantMsg: "instagram does not support text content",
		},
		{
			name:    "duration over platform limit",
			req:     generation.Request{ContentType: domain.ContentShortVideo, Platform: "youtube", Topic: "t", MaxDurationSeconds: 61},
			wantMsg: "max_duration_seconds 61 exceeds the youtube limit of 60 for short_video",
		},
		{
			name:    "aspect ratio not accepted",
			req:     generation.Request{ContentType: domain.ContentShortVideo, Platform: "tiktok", Topic: "t", AspectRatio: "16:9"},
			wantMsg: "tiktok does not accept aspect ratio 16:9",
		},
		{
			name:    "aspect ratio not accepted for text",
			req:     generation.Request{ContentType: domain.ContentText, Platform: "x", Topic: "t", AspectRatio: "9:16"},
			wantMsg: "x does not accept aspect ratio 9:16",
		},
		{
			name:    "unknown context refs",
			req:     generation.Request{ContentType: domain.ContentImage, Platform: "x", ContextRefs: []string{"zz", known.ID, "aa"}},
			wantMsg: "unknown context_refs: aa, zz",
		},
		{
			name:    "nothing to write about",
			req:     generation.Request{ContentType: domain.ContentImage, Platform: "x"},
			wantMsg: "topic or context_refs is required to have something to write about",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			drafts := &memDrafts{}
			svc, _ := newGenerationService(t, drafts, indexed(t, known))
			tt.req.AgentID, tt.req.SlotID = "a", "s"

			_, err := svc.Generate(context.Background(), tt.req)
			se, ok := skill.AsError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, skill.CodeUnprocessable, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Empty(t, drafts.drafts)
		})
	}
}

func TestService_GenerateUnavailable(t *testing.T) {
	t.Parallel()

	req := generation.Request{AgentID: "a", SlotID: "s", ContentType: domain.ContentText, Platform: "x", Topic: "t"}
	defaults := generation.Defaults{Language: "en", Tone: "informative"}

	tests := []struct {
		name string
		svc  *generation.Service
		req  generation.Request
	}{
		{
			name: "writer",
			svc:  generation.NewService(failingWriter{}, generation.NewLocalStore(t.TempDir()), &memDrafts{}, mapLookup{}, defaults, logger.NewNop()),
			req:  req,
		},
		{
			name: "media",
			svc:  generation.NewService(generation.NewTemplateWriter(), failingMedia{}, &memDrafts{}, mapLookup{}, defaults, logger.NewNop()),
			req:  req,
		},
		{
			name: "drafts",
			svc: generation.NewService(generation.NewTemplateWriter(), generation.NewLocalStore(t.TempDir()),
				&memDrafts{err: errors.New("connection refused")}, mapLookup{}, defaults, logger.NewNop()),
			req: req,
		},
		{
			name: "trend index",
			svc: generation.NewService(generation.NewTemplateWriter(), generation.NewLocalStore(t.TempDir()),
				&memDrafts{}, mapLookup{err: errors.New("redis down")}, defaults, logger.NewNop()),
			req: generation.Request{AgentID: "a", SlotID: "s", ContentType: domain.ContentText, Platform: "x", ContextRefs: []string{"x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.svc.Generate(context.Background(), tt.req)
			se, ok := skill.AsError(err)
			require.True(t, ok)
			assert.Equal(t, skill.CodeUnavailable, se.Code)
			assert.Contains(t, se.Message, "retry with backoff")
		})
	}
}

func TestService_Evaluate(t *testing.T) {
	t.Parallel()

	drafts := &memDrafts{}
	svc, _ := newGenerationService(t, drafts, mapLookup{})
	out, err := svc.Generate(context.Background(), generation.Request{
		AgentID: "a", SlotID: "s", ContentType: domain.ContentImage, Platform: "instagram", Topic: "autumn",
	})
	require.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), out.ContentID, domain.Evaluation{Decision: domain.DraftPendingEvaluation})
	require.ErrorIs(t, err, domain.ErrInvalidEvaluation)

	d, err := svc.Evaluate(context.Background(), out.ContentID, domain.Evaluation{Decision: domain.DraftApproved, Reviewer: "editor"})
	require.NoError(t, err)
	assert.Equal(t, domain.DraftApproved, d.Status)

	_, err = svc.Evaluate(context.Background(), out.ContentID, domain.Evaluation{Decision: domain.DraftRejected})
	require.ErrorIs(t, err, domain.ErrNotPending)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	list, err := svc.List(context.Background(), domain.DraftFilter{AgentID: "a"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

func TestTrendID_Stable(t *testing.T) {
	t.Parallel()

	a := domain.TrendID("newsroom", domain.TrendTopic, "Solar  Eclipse")
	b := domain.TrendID("newsroom", domain.TrendTopic, " solar eclipse ")
	c := domain.TrendID("newsroom", domain.TrendHashtag, "solar eclipse")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "montreal cafe", domain.NormalizeLabel("  Montréal   Café "))
	assert.Equal(t,
		domain.TrendID("newsroom", domain.TrendTopic, "Québec"),
		domain.TrendID("newsroom", domain.TrendTopic, "quebec"))
}

func TestNewTrend(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	tr, err := domain.NewTrend("feed", domain.TrendHashtag, " #eclipse ", now, nil)
	require.NoError(t, err)
	assert.Equal(t, "#eclipse", tr.Label)
	assert.Equal(t, time.UTC, tr.ObservedAt.Location())
	assert.Equal(t, domain.TrendID("feed", domain.TrendHashtag, "#eclipse"), tr.ID)

	_, err = domain.NewTrend("feed", "meme", "x", now, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTrend)

	_, err = domain.NewTrend("feed", domain.TrendTopic, "   ", now, nil)
	require.ErrorIs(t, err, domain.ErrInvalidTrend)
}

func TestMetadata_ScanValue(t *testing.T) {
	t.Parallel()

	v, err := domain.Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	var m domain.Metadata
	require.NoError(t, m.Scan([]byte(`{"tone":"playful"}`)))
	assert.Equal(t, "playful", m["tone"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	require.Error(t, m.Scan(42))
}

func TestDraft_Publishable(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&domain.Draft{Status: domain.DraftApproved}).Publishable())
	assert.ErrorIs(t, (&domain.Draft{Status: domain.DraftPendingEvaluation}).Publishable(), domain.ErrDraftPending)
	assert.ErrorIs(t, (&domain.Draft{Status: domain.DraftRejected}).Publishable(), domain.ErrDraftRejected)
}

func TestPublication_SameRequest(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	p := &domain.Publication{ContentID: "c1", Platform: "tiktok", ScheduledAt: &at}

	same := at.In(time.FixedZone("X", 3600))
	assert.True(t, p.SameRequest("c1", "tiktok", &same))
	assert.False(t, p.SameRequest("c1", "tiktok", nil))
	assert.False(t, p.SameRequest("c2", "tiktok", &at))
	assert.False(t, p.SameRequest("c1", "x", &at))

	now := &domain.Publication{ContentID: "c1", Platform: "x"}
	assert.True(t, now.SameRequest("c1", "x", nil))
	assert.Equal(t, "social:publish:x", now.Channel())
}

func TestEvaluation_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, domain.Evaluation{Decision: domain.DraftApproved}.Validate())
	assert.NoError(t, domain.Evaluation{Decision: domain.DraftRejected}.Validate())
	assert.ErrorIs(t, domain.Evaluation{Decision: domain.DraftPendingEvaluation}.Validate(), domain.ErrInvalidEvaluation)
}

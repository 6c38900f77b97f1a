package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/chimera/internal/metrics"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
	"github.com/jonesrussell/north-cloud/chimera/internal/trends"
	"github.com/jonesrussell/north-cloud/chimera/internal/worker"
)

var (
	_ skill.Observer = (*metrics.Collectors)(nil)
	_ trends.Metrics = (*metrics.Collectors)(nil)
	_ worker.Metrics = (*metrics.Collectors)(nil)
)

func TestCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.ObserveSkill("fetch_trends", "200", 20*time.Millisecond)
	c.ObserveSkill("fetch_trends", "503", time.Second)
	c.SourceFetched("news", trends.OutcomeCacheHit, time.Millisecond)
	c.PublicationDispatched("x", worker.OutcomePublished)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "chimera_skill_invocations_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "chimera_trend_source_fetches_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "chimera_publication_dispatches_total"))
}

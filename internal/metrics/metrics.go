// Package metrics holds the Prometheus collectors for skills, trend sources
// and outbox dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chimera"

// Collectors implements skill.Observer, trends.Metrics and worker.Metrics.
type Collectors struct {
	skillInvocations *prometheus.CounterVec
	skillDuration    *prometheus.HistogramVec
	sourceFetches    *prometheus.CounterVec
	sourceDuration   *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		skillInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_invocations_total",
			Help:      "Skill invocations by skill and result code.",
		}, []string{"skill", "code"}),
		skillDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skill_duration_seconds",
			Help:      "Skill invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"skill"}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trend_source_fetches_total",
			Help:      "Trend source fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trend_source_fetch_duration_seconds",
			Help:      "Trend source fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publication_dispatches_total",
			Help:      "Outbox dispatches by platform and outcome.",
		}, []string{"platform", "outcome"}),
	}
	reg.MustRegister(c.skillInvocations, c.skillDuration, c.sourceFetches, c.sourceDuration, c.dispatches)
	return c
}

// ObserveSkill implements skill.Observer.
func (c *Collectors) ObserveSkill(name, code string, elapsed time.Duration) {
	c.skillInvocations.WithLabelValues(name, code).Inc()
	c.skillDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// SourceFetched implements trends.Metrics.
func (c *Collectors) SourceFetched(source, outcome string, elapsed time.Duration) {
	c.sourceFetches.WithLabelValues(source, outcome).Inc()
	c.sourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// PublicationDispatched implements worker.Metrics.
func (c *Collectors) PublicationDispatched(platform, outcome string) {
	c.dispatches.WithLabelValues(platform, outcome).Inc()
}

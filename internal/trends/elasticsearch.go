package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	infraerrors "github.com/jonesrussell/north-cloud/chimera/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// ElasticsearchQuery configures the terms aggregation an elasticsearch source runs.
type ElasticsearchQuery struct {
	Index     string
	Field     string
	TimeField string
	Window    time.Duration
	Size      int
}

// ElasticsearchSource turns the most frequent terms of recent documents into topic trends.
type ElasticsearchSource struct {
	name   string
	client *es.Client
	query  ElasticsearchQuery
	log    logger.Logger
	now    func() time.Time
}

// NewElasticsearchSource creates an elasticsearch source.
func NewElasticsearchSource(name string, client *es.Client, q ElasticsearchQuery, log logger.Logger) *ElasticsearchSource {
	return &ElasticsearchSource{name: name, client: client, query: q, log: log, now: time.Now}
}

// Name returns the configured source name.
func (s *ElasticsearchSource) Name() string { return s.name }

type termsResponse struct {
	Aggregations struct {
		Trending struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"trending"`
	} `json:"aggregations"`
}

func (s *ElasticsearchSource) buildQuery() map[string]any {
	window := fmt.Sprintf("now-%ds", int64(s.query.Window/time.Second))
	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"range": map[string]any{
				s.query.TimeField: map[string]any{"gte": window},
			},
		},
		"aggs": map[string]any{
			"trending": map[string]any{
				"terms": map[string]any{
					"field": s.query.Field,
					"size":  s.query.Size,
				},
			},
		},
	}
}

// Fetch runs the aggregation. Each bucket becomes a topic with its document count.
func (s *ElasticsearchSource) Fetch(ctx context.Context) ([]domain.Trend, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(s.buildQuery()); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.query.Index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.query.Index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s: %w", s.query.Index,
			&infraerrors.HTTPError{StatusCode: res.StatusCode, Status: res.Status(), Message: res.String()})
	}

	var parsed termsResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	observed := s.now()
	out := make([]domain.Trend, 0, len(parsed.Aggregations.Trending.Buckets))
	for _, b := range parsed.Aggregations.Trending.Buckets {
		tr, err := domain.NewTrend(s.name, domain.TrendTopic, b.Key, observed, map[string]any{"count": b.DocCount})
		if err != nil {
			s.log.Debug("Dropping invalid trend", logger.String("source", s.name), logger.Error(err))
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

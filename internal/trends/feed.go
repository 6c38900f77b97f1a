package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// maxFeedBytes caps the size of a feed document.
const maxFeedBytes = 4 << 20

// FeedSource reads a JSON trend feed: either {"trends": [...]} or a bare array.
type FeedSource struct {
	name        string
	url         string
	defaultType domain.TrendType
	client      *http.Client
	log         logger.Logger
	now         func() time.Time
}

// NewFeedSource creates a feed source. Entries without a type get defaultType.
func NewFeedSource(name, url string, defaultType domain.TrendType, client *http.Client, log logger.Logger) *FeedSource {
	if defaultType == "" {
		defaultType = domain.TrendTopic
	}
	return &FeedSource{name: name, url: url, defaultType: defaultType, client: client, log: log, now: time.Now}
}

// Name returns the configured source name.
func (s *FeedSource) Name() string { return s.name }

type feedEntry struct {
	Type       domain.TrendType `json:"type"`
	Label      string           `json:"label"`
	ObservedAt *time.Time       `json:"observed_at"`
	Metadata   map[string]any   `json:"metadata"`
}

// Fetch downloads and decodes the feed. Invalid entries are skipped.
func (s *FeedSource) Fetch(ctx context.Context) ([]domain.Trend, error) {
	resp, err := getDocument(ctx, s.client, s.url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", s.name, err)
	}

	entries, err := decodeFeed(body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode feed %s: %w", s.name, err))
	}

	fetchedAt := s.now()
	out := make([]domain.Trend, 0, len(entries))
	var invalid []error
	for _, e := range entries {
		typ := e.Type
		if typ == "" {
			typ = s.defaultType
		}
		observed := fetchedAt
		if e.ObservedAt != nil {
			observed = *e.ObservedAt
		}
		tr, err := domain.NewTrend(s.name, typ, e.Label, observed, e.Metadata)
		if err != nil {
			s.log.Debug("Dropping invalid trend", logger.String("source", s.name), logger.Error(err))
			invalid = append(invalid, err)
			continue
		}
		out = append(out, tr)
	}
	if len(out) == 0 && len(invalid) > 0 {
		return nil, retry.Permanent(fmt.Errorf("feed %s: no valid entries: %w", s.name, errors.Join(invalid...)))
	}
	return out, nil
}

func decodeFeed(body []byte) ([]feedEntry, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var entries []feedEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var doc struct {
		Trends []feedEntry `json:"trends"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc.Trends, nil
}

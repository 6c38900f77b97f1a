// Package trends gathers trend signals from upstream sources for fetch_trends.
package trends

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	infraerrors "github.com/jonesrussell/north-cloud/chimera/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/chimera/internal/config"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// Source fetches the current trends of one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Trend, error)
}

// ErrNoElasticsearch is returned when an elasticsearch source is configured without a client.
var ErrNoElasticsearch = errors.New("elasticsearch source requires an elasticsearch client")

// NewSources builds the enabled sources from configuration. esClient may be
// nil when no elasticsearch source is enabled.
func NewSources(cfgs []config.SourceConfig, client *http.Client, esClient *es.Client, log logger.Logger) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	for i := range cfgs {
		sc := cfgs[i]
		if !sc.IsEnabled() {
			log.Info("Trend source disabled", logger.String("source", sc.Name))
			continue
		}

		switch sc.Kind {
		case config.SourceFeed:
			sources = append(sources, NewFeedSource(sc.Name, sc.URL, domain.TrendType(sc.TrendType), client, log))
		case config.SourceHTML:
			sources = append(sources, NewHTMLSource(sc.Name, sc.URL, sc.Selector, domain.TrendType(sc.TrendType), client, log))
		case config.SourceElasticsearch:
			if esClient == nil {
				return nil, fmt.Errorf("source %s: %w", sc.Name, ErrNoElasticsearch)
			}
			sources = append(sources, NewElasticsearchSource(sc.Name, esClient, ElasticsearchQuery{
				Index:     sc.Index,
				Field:     sc.Field,
				TimeField: sc.TimeField,
				Window:    sc.Window,
				Size:      sc.Size,
			}, log))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", sc.Name, sc.Kind)
		}
	}
	return sources, nil
}

// NeedsElasticsearch reports whether any enabled source queries Elasticsearch.
func NeedsElasticsearch(cfgs []config.SourceConfig) bool {
	for i := range cfgs {
		if cfgs[i].IsEnabled() && cfgs[i].Kind == config.SourceElasticsearch {
			return true
		}
	}
	return false
}

// isRetryable retries upstream 429/5xx answers and transient network errors.
func isRetryable(err error) bool {
	var httpErr *infraerrors.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return retry.DefaultIsRetryable(err)
}

// getDocument performs a GET and returns the response for a 2xx answer.
func getDocument(ctx context.Context, client *http.Client, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", url, httpErr)
	}
	return resp, nil
}

// Package elasticsearch builds verified go-elasticsearch clients.
package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	infraconfig "github.com/jonesrussell/north-cloud/chimera/infrastructure/config"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
)

const (
	defaultURL         = "http://localhost:9200"
	defaultPingTimeout = 5 * time.Second
	clientMaxRetries   = 3
)

// NewClient creates a client and pings the cluster, retrying with backoff.
func NewClient(ctx context.Context, cfg infraconfig.ElasticsearchConfig, retryCfg retry.Config, log logger.Logger) (*es.Client, error) {
	url := normalizeURL(cfg.URL)

	clientCfg := es.Config{
		Addresses:  []string{url},
		MaxRetries: clientMaxRetries,
	}
	switch {
	case cfg.APIKey != "":
		clientCfg.APIKey = cfg.APIKey
	case cfg.Username != "":
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := es.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if err := retry.Retry(ctx, retryCfg, func() error {
		return ping(ctx, client)
	}); err != nil {
		return nil, fmt.Errorf("connect to elasticsearch %s: %w", url, err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return client, nil
}

func normalizeURL(url string) string {
	if url == "" {
		return defaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

func ping(ctx context.Context, client *es.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg := fmt.Sprintf("ping returned %s", res.Status())
		if res.StatusCode >= 500 {
			// 5xx during cluster startup is worth another attempt.
			return errors.New(msg + ": temporary failure")
		}
		return retry.Permanent(errors.New(msg))
	}
	return nil
}

package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

const (
	sourceKeyPrefix = "chimera:trends:source:"
	itemKeyPrefix   = "chimera:trends:item:"
)

// Cache stores the last result of each source.
type Cache interface {
	Get(ctx context.Context, source string) ([]domain.Trend, bool, error)
	Set(ctx context.Context, source string, trends []domain.Trend) error
}

// Index resolves trend ids handed out by fetch_trends.
type Index interface {
	Put(ctx context.Context, trends []domain.Trend) error
	Lookup(ctx context.Context, ids []string) (map[string]domain.Trend, error)
}

// RedisCache keeps source results in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache whose entries expire after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached trends of source. The bool is false on a miss.
func (c *RedisCache) Get(ctx context.Context, source string) ([]domain.Trend, bool, error) {
	data, err := c.client.Get(ctx, sourceKeyPrefix+source).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", source, err)
	}

	var trends []domain.Trend
	if err := json.Unmarshal(data, &trends); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", source, err)
	}
	return trends, true, nil
}

// Set replaces the cached trends of source.
func (c *RedisCache) Set(ctx context.Context, source string, trends []domain.Trend) error {
	if trends == nil {
		trends = []domain.Trend{}
	}
	data, err := json.Marshal(trends)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", source, err)
	}
	if err := c.client.Set(ctx, sourceKeyPrefix+source, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", source, err)
	}
	return nil
}

// RedisIndex stores each trend under its id so that later skills can resolve it.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIndex creates an index whose entries expire after ttl.
func NewRedisIndex(client *redis.Client, ttl time.Duration) *RedisIndex {
	return &RedisIndex{client: client, ttl: ttl}
}

// Put indexes trends in one pipeline round trip.
func (x *RedisIndex) Put(ctx context.Context, trends []domain.Trend) error {
	if len(trends) == 0 {
		return nil
	}
	pipe := x.client.Pipeline()
	for i := range trends {
		data, err := json.Marshal(trends[i])
		if err != nil {
			return fmt.Errorf("index encode %s: %w", trends[i].ID, err)
		}
		pipe.Set(ctx, itemKeyPrefix+trends[i].ID, data, x.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index trends: %w", err)
	}
	return nil
}

// Lookup returns the known trends among ids. Unknown ids are absent from the map.
func (x *RedisIndex) Lookup(ctx context.Context, ids []string) (map[string]domain.Trend, error) {
	found := make(map[string]domain.Trend, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKeyPrefix + id
	}
	vals, err := x.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("index lookup: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var tr domain.Trend
		if err := json.Unmarshal([]byte(s), &tr); err != nil {
			return nil, fmt.Errorf("index decode %s: %w", ids[i], err)
		}
		found[ids[i]] = tr
	}
	return found, nil
}

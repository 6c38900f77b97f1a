package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoSubscribers is returned when nobody listens on a platform channel.
var ErrNoSubscribers = errors.New("no subscribers on channel")

// Dispatcher hands a publish message to a platform channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel string, payload []byte) error
}

// RedisDispatcher publishes to Redis Pub/Sub, where the platform adapters subscribe.
type RedisDispatcher struct {
	client             *redis.Client
	requireSubscribers bool
}

// NewRedisDispatcher creates a dispatcher. With requireSubscribers set, a
// message nobody received counts as a failed dispatch and is retried.
func NewRedisDispatcher(client *redis.Client, requireSubscribers bool) *RedisDispatcher {
	return &RedisDispatcher{client: client, requireSubscribers: requireSubscribers}
}

// Dispatch implements Dispatcher.
func (d *RedisDispatcher) Dispatch(ctx context.Context, channel string, payload []byte) error {
	receivers, err := d.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if receivers == 0 && d.requireSubscribers {
		return fmt.Errorf("%w %s", ErrNoSubscribers, channel)
	}
	return nil
}

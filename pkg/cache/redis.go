// Package cache builds the Redis client shared by sessions, events and health.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/reward-ticket-service/pkg/backoff"
)

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client and waits until it answers PING,
// retrying the same way as the database pool.
func NewClient(ctx context.Context, opts Options, maxRetries int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	client, err := backoff.Connect(ctx, "redis", maxRetries, backoff.DefaultBase, func(ctx context.Context) (*redis.Client, error) {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return rdb, nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return client, nil
}

// NamespaceKey returns "{namespace}:{key}".
func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/reward-ticket-service/pkg/cache"
)

// ErrSessionNotFound is returned when a parent session token is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionClient is the subset of *redis.Client used by the session store.
// The store only reads; sessions are written by the login service.
type SessionClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSessionStore reads parent sessions written by the login service.
// Each session is a JSON object under "{prefix}:{token}".
type RedisSessionStore struct {
	client SessionClient
	prefix string
}

// NewRedisSessionStore creates a RedisSessionStore on the given client.
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

// NewRedisSessionStoreWithClient creates a RedisSessionStore with a custom client.
// This is primarily used for testing.
func NewRedisSessionStoreWithClient(client SessionClient, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(token string) string {
	return cache.NamespaceKey(s.prefix, token)
}

// Lookup returns the parent bound to token.
func (s *RedisSessionStore) Lookup(ctx context.Context, token string) (Parent, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Parent{}, ErrSessionNotFound
		}
		return Parent{}, fmt.Errorf("get session: %w", err)
	}

	var p Parent
	if err := json.Unmarshal(raw, &p); err != nil {
		return Parent{}, fmt.Errorf("%w: malformed session", ErrSessionNotFound)
	}
	if p.ID == "" || p.FamilyID == "" {
		return Parent{}, ErrSessionNotFound
	}
	return p, nil
}

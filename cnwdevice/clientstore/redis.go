package clientstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cnw:device:"

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisNamespace scopes all keys to namespace. Default: "default".
func WithRedisNamespace(ns string) RedisOption {
	return func(s *RedisStore) {
		s.namespace = ns
	}
}

// WithTTL expires every written key after ttl. Zero (the default) keeps keys
// forever. A TTL makes a RedisStore usable as tab-scoped storage for
// sessions that may die without a clean shutdown.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// RedisStore implements Store using Redis string keys.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:    client,
		namespace: defaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validName.MatchString(s.namespace) {
		return nil, fmt.Errorf("invalid namespace %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.namespace)
	}
	return s, nil
}

func (s *RedisStore) key(key string) string {
	return defaultRedisPrefix + s.namespace + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close(_ context.Context) error {
	return nil // user manages the redis.Client lifecycle
}

// Package apikeys resolves caller API keys to caller names.
package apikeys

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// ErrUnknownKey is returned when an API key is not bound to a caller.
var ErrUnknownKey = errors.New("apikeys: unknown api key")

// ErrClientRequired is returned when a nil redis client is provided.
var ErrClientRequired = errors.New("apikeys: client is required")

// Store resolves an API key to the caller name it is bound to.
type Store interface {
	// Lookup returns the caller name bound to key, or ErrUnknownKey.
	Lookup(ctx context.Context, key string) (string, error)
}

const keyPrefix = "apikeys:"

// RedisStore looks keys up as point reads of apikeys:<key>.
type RedisStore struct {
	client goredis.Cmdable
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client goredis.Cmdable) (*RedisStore, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	return &RedisStore{client: client}, nil
}

// Lookup implements Store. An absent or empty value means the key is invalid.
func (s *RedisStore) Lookup(ctx context.Context, key string) (string, error) {
	caller, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", ErrUnknownKey
		}

		return "", fmt.Errorf("apikeys: lookup failed: %w", err)
	}
	if caller == "" {
		return "", ErrUnknownKey
	}

	return caller, nil
}

// Fixed is an in-memory Store backed by a map, for tests and local runs.
type Fixed map[string]string

// Lookup implements Store.
func (f Fixed) Lookup(_ context.Context, key string) (string, error) {
	caller, ok := f[key]
	if !ok || caller == "" {
		return "", ErrUnknownKey
	}

	return caller, nil
}

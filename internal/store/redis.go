package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries as plain redis strings under "{name}:{key}"
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ contracts.Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, name string) *RedisStore {
	prefix := ""
	if name != "" {
		prefix = name + ":"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Put stores a single value
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// PutBatch writes all entries in one MULTI/EXEC
func (s *RedisStore) PutBatch(ctx context.Context, entries []contracts.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, s.prefix+e.Key, e.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline exec: %w", err)
	}
	return nil
}

// Get reads a value; a missing key is not an error
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

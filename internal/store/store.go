// Package store provides the key-value backends behind the market cache.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned by a store used after Close
var ErrClosed = errors.New("store closed")

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	Name    string // logical store name, e.g. OvertimeMarketsDB/markets

	RedisURL      string
	RedisPassword string

	PostgresDSN string
}

// Open connects to the configured backend and verifies it with Ping
func Open(ctx context.Context, opts Options) (contracts.Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisURL,
			Password: opts.RedisPassword,
			DB:       0,
		})
		s := NewRedisStore(client, opts.Name)
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return s, nil

	case BackendPostgres:
		db, err := sql.Open("postgres", opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s := NewPostgresStore(db, opts.Name)
		if err := s.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("database ping: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Package redis stores cache objects in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/favicon-resolver/internal/cache"
)

const defaultPrefix = "icons:"

// Config captures the Redis connection and key layout.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires objects server-side; zero keeps them until deleted.
	TTL time.Duration
}

type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Close() error
}

// BlobStore keeps cache objects as Redis string values.
type BlobStore struct {
	client client
	prefix string
	ttl    time.Duration
}

// New dials Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c client, cfg Config) *BlobStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &BlobStore{client: c, prefix: prefix, ttl: cfg.TTL}
}

// Close releases the client connection pool.
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// Key returns the Redis key used for name.
func (s *BlobStore) Key(name string) string {
	return s.prefix + name
}

// Get reads the value for name.
func (s *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.Key(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", name, err)
	}
	return data, nil
}

// Put writes the value for name.
func (s *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.Key(name), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

// Delete removes the value for name.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	n, err := s.client.Del(ctx, s.Key(name)).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	if n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout bounds each Redis round trip so a wedged store cannot
// hold a request open.
const DefaultQueryTimeout = 2 * time.Second

// RedisStore implements Store on a single Redis key per entry (SET ... EX).
type RedisStore struct {
	client       *redis.Client
	queryTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore parses a redis:// or rediss:// URL and builds a client.
// No connection is made until the first command.
func NewRedisStore(url string, queryTimeout time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opts), queryTimeout), nil
}

// NewRedisStoreFromClient wraps an existing client. The store owns it afterwards.
func NewRedisStoreFromClient(client *redis.Client, queryTimeout time.Duration) *RedisStore {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &RedisStore{client: client, queryTimeout: queryTimeout}
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.queryTimeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, key, value, ttl).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Ping(qctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

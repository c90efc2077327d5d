package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisKeyPrefix = "audit:"

// RedisStore implements KV on a Redis server. Keys never expire.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedis connects to the server at redisURL (redis://host:port/db).
func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get %s", key)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return eris.Wrapf(s.rdb.Set(ctx, redisKeyPrefix+key, value, 0).Err(), "redis: set %s", key)
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return eris.Wrapf(s.rdb.Del(ctx, redisKeyPrefix+key).Err(), "redis: remove %s", key)
}

// SetMany writes all entries in a MULTI/EXEC transaction.
func (s *RedisStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range entries {
			p.Set(ctx, redisKeyPrefix+k, v, 0)
		}
		return nil
	})
	return eris.Wrap(err, "redis: set many")
}

func (s *RedisStore) Migrate(context.Context) error { return nil }

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

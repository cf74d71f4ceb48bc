package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a Redis instance, for deployments that
// share preflight and cache-metadata state across gateway replicas. Redis
// SET is atomic per key, which is exactly the write contract Store asks
// for; expiry is delegated to Redis TTLs.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with a short
// ping. All keys are namespaced under the given prefix.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis store: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisStore) key(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisStore) Get(key string) ([]byte, bool, error) {
	value, err := r.rdb.Get(context.Background(), r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *RedisStore) Put(key string, expires time.Time, value []byte) error {
	var ttl time.Duration
	if !expires.IsZero() {
		ttl = time.Until(expires)
		if ttl <= 0 {
			// already expired; storing it would only produce misses
			return nil
		}
	}
	return r.rdb.Set(context.Background(), r.key(key), value, ttl).Err()
}

func (r *RedisStore) All(prefix string) (map[string][]byte, error) {
	ctx := context.Background()
	entries := make(map[string][]byte)
	iter := r.rdb.Scan(ctx, 0, r.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := r.rdb.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return entries, err
		}
		entries[full[len(r.prefix)+1:]] = value
	}
	return entries, iter.Err()
}

func (r *RedisStore) Purge(key string) error {
	return r.rdb.Del(context.Background(), r.key(key)).Err()
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

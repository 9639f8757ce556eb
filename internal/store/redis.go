package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "prospector"
	redisDialTimeout = 5 * time.Second
	scanBatchSize    = 200
)

// RedisStore implements KV on top of a Redis instance. Values are stored
// as plain string keys under "prospector:<collection>:<key>"; sets use the
// same layout with Redis set commands.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(collection, key string) string {
	return keyPrefix + ":" + collection + ":" + key
}

// Get implements KV.
func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, redisKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, key, err)
	}
	return val, nil
}

// Put implements KV.
func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(collection, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete implements KV.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.Del(ctx, redisKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", collection, key, err)
	}
	return nil
}

// Keys implements KV using SCAN to avoid blocking Redis on large keyspaces.
func (s *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	prefix := redisKey(collection, "")
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", collection, err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// SAdd implements KV.
func (s *RedisStore) SAdd(ctx context.Context, collection, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, redisKey(collection, key), args...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s/%s: %w", collection, key, err)
	}
	return nil
}

// SMembers implements KV.
func (s *RedisStore) SMembers(ctx context.Context, collection, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, redisKey(collection, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s/%s: %w", collection, key, err)
	}
	return members, nil
}

// Close implements KV.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

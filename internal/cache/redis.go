package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"codelens/internal/llm"
)

// RedisStore implements Store on Redis for deployments where replicas
// should share memoized results. SetNX preserves first-write-wins.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: config.Prefix,
	}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get retrieves a memoized result. On Redis error it returns
// (nil, false, err) so the caller can log and treat it as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (*llm.AnalysisResult, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result llm.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("redis value decode failed: %w", err)
	}
	return &result, true, nil
}

// Put stores result under key unless a value already exists.
func (s *RedisStore) Put(ctx context.Context, key string, result *llm.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.client.SetNX(ctx, s.key(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

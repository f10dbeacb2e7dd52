package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"Companion-Memory/server/internal/config"
	"Companion-Memory/server/internal/models"
)

const memoryKeyPrefix = "memory:"

// RedisStore shares the memory side-cache between server processes
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func memoryKey(id string) string {
	return memoryKeyPrefix + id
}

// PutMemory overwrites the entry for id. A zero TTL keeps it forever.
func (s *RedisStore) PutMemory(ctx context.Context, id string, entry *models.CachedMemory) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	if err := s.client.Set(ctx, memoryKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache memory: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMemory(ctx context.Context, id string) (*models.CachedMemory, bool, error) {
	data, err := s.client.Get(ctx, memoryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read memory: %w", err)
	}

	var entry models.CachedMemory
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal memory %s: %w", id, err)
	}
	return &entry, true, nil
}

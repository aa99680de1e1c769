// Package repository persists conversation snapshots and per-key rate limits.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisConversationRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.ConversationRepository = (*RedisConversationRepository)(nil)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisConversationRepository(client *redis.Client, ttl time.Duration) *RedisConversationRepository {
	return &RedisConversationRepository{
		client: client,
		ttl:    ttl,
	}
}

func snapshotKey(conversationID string) string {
	return "conversation:" + conversationID
}

func (r *RedisConversationRepository) GetSnapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, snapshotKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap models.ConversationSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisConversationRepository) SaveSnapshot(ctx context.Context, snap *models.ConversationSnapshot) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(snap.ConversationID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}
	return nil
}

func (r *RedisConversationRepository) DeleteSnapshot(ctx context.Context, conversationID string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := r.client.Del(ctx, snapshotKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts hits per key in a fixed window that starts on the first hit.
func (r *RedisConversationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	rk := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}
	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

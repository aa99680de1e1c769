package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

type MemoryCodeStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCodeStore) Save(ctx context.Context, phone, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[phone] = memoryEntry{code: code, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCodeStore) Get(ctx context.Context, phone string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[phone]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, phone)
		return "", false, nil
	}
	return e.code, true, nil
}

func (m *MemoryCodeStore) Delete(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, phone)
	return nil
}

type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (r *RedisCodeStore) key(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func (r *RedisCodeStore) Save(ctx context.Context, phone, code string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(phone), code, ttl).Err()
}

func (r *RedisCodeStore) Get(ctx context.Context, phone string) (string, bool, error) {
	code, err := r.client.Get(ctx, r.key(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

func (r *RedisCodeStore) Delete(ctx context.Context, phone string) error {
	return r.client.Del(ctx, r.key(phone)).Err()
}

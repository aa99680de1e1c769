package repository

import (
	"context"
	"sync"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"
)

// MemoryConversationRepository keeps snapshots in process. Expired entries are
// dropped lazily on read.
type MemoryConversationRepository struct {
	snapshots  sync.Map
	rateLimits sync.Map
	ttl        time.Duration
	now        func() time.Time
}

var _ domain.ConversationRepository = (*MemoryConversationRepository)(nil)

type snapshotEntry struct {
	snap      models.ConversationSnapshot
	expiresAt time.Time
}

func NewMemoryConversationRepository(ttl time.Duration) *MemoryConversationRepository {
	return &MemoryConversationRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryConversationRepository) GetSnapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error) {
	val, ok := r.snapshots.Load(conversationID)
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	entry := val.(snapshotEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.snapshots.Delete(conversationID)
		return nil, domain.ErrSnapshotNotFound
	}
	snap := entry.snap
	snap.Context = entry.snap.Context.Clone()
	return &snap, nil
}

func (r *MemoryConversationRepository) SaveSnapshot(ctx context.Context, snap *models.ConversationSnapshot) error {
	entry := snapshotEntry{snap: *snap}
	entry.snap.Context = snap.Context.Clone()
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.snapshots.Store(snap.ConversationID, entry)
	return nil
}

func (r *MemoryConversationRepository) DeleteSnapshot(ctx context.Context, conversationID string) error {
	r.snapshots.Delete(conversationID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryConversationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.count == 0 || now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
	} else {
		entry.count++
	}
	return entry.count <= limit, nil
}

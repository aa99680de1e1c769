package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverConversationRepository uses primary until it fails, then serves
// from fallback and tries primary again once a minute.
type FailoverConversationRepository struct {
	primary  domain.ConversationRepository
	fallback domain.ConversationRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

var _ domain.ConversationRepository = (*FailoverConversationRepository)(nil)

func NewFailoverConversationRepository(primary, fallback domain.ConversationRepository, logger *zerolog.Logger) *FailoverConversationRepository {
	return &FailoverConversationRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverConversationRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary conversation repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried for this call.
func (r *FailoverConversationRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverConversationRepository) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary conversation repository recovered")
	}
}

func (r *FailoverConversationRepository) GetSnapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error) {
	if r.usePrimary() {
		snap, err := r.primary.GetSnapshot(ctx, conversationID)
		if err == nil || errors.Is(err, domain.ErrSnapshotNotFound) {
			r.recovered()
			if err != nil {
				return r.fallback.GetSnapshot(ctx, conversationID)
			}
			return snap, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSnapshot(ctx, conversationID)
}

func (r *FailoverConversationRepository) SaveSnapshot(ctx context.Context, snap *models.ConversationSnapshot) error {
	if r.usePrimary() {
		err := r.primary.SaveSnapshot(ctx, snap)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSnapshot(ctx, snap)
}

func (r *FailoverConversationRepository) DeleteSnapshot(ctx context.Context, conversationID string) error {
	// снимок мог попасть в резерв, пока основной был недоступен
	_ = r.fallback.DeleteSnapshot(ctx, conversationID)
	if r.usePrimary() {
		err := r.primary.DeleteSnapshot(ctx, conversationID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverConversationRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

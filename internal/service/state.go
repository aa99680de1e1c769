package service

import (
	"context"
	"errors"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
)

// StateService exposes persisted conversation snapshots and the per-conversation
// message rate limit to the front ends.
type StateService struct {
	repo   domain.ConversationRepository
	limit  int
	window time.Duration
	logger *zerolog.Logger
}

func NewStateService(repo domain.ConversationRepository, limit int, window time.Duration, logger *zerolog.Logger) *StateService {
	if limit <= 0 {
		limit = models.RateLimitMessages
	}
	if window <= 0 {
		window = models.RateLimitWindow * time.Second
	}
	return &StateService{
		repo:   repo,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// GetSnapshot returns nil without error when nothing is stored.
func (s *StateService) GetSnapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error) {
	snap, err := s.repo.GetSnapshot(ctx, conversationID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to get conversation snapshot")
		return nil, err
	}
	return snap, nil
}

func (s *StateService) ClearConversation(ctx context.Context, conversationID string) error {
	return s.repo.DeleteSnapshot(ctx, conversationID)
}

// AllowMessage applies the message rate limit. Repository failures let the
// message through.
func (s *StateService) AllowMessage(ctx context.Context, conversationID string) bool {
	allowed, err := s.repo.CheckRateLimit(ctx, conversationID, s.limit, s.window)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("rate limit check failed")
		return true
	}
	if !allowed {
		s.logger.Debug().Str("conversation_id", conversationID).Msg("rate limit exceeded")
	}
	return allowed
}

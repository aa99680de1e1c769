package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSnapshot(ctx context.Context, id string) (*models.ConversationSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversationSnapshot), args.Error(1)
}

func (m *mockRepo) SaveSnapshot(ctx context.Context, snap *models.ConversationSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *mockRepo) DeleteSnapshot(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverConversationRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverConversationRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		snap := &models.ConversationSnapshot{ConversationID: "a"}
		primary.On("GetSnapshot", ctx, "a").Return(snap, nil).Once()

		got, err := repo.GetSnapshot(ctx, "a")
		assert.NoError(t, err)
		assert.Equal(t, snap, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryMissChecksFallback", func(t *testing.T) {
		primary.On("GetSnapshot", ctx, "m").Return(nil, domain.ErrSnapshotNotFound).Once()
		fallback.On("GetSnapshot", ctx, "m").Return(nil, domain.ErrSnapshotNotFound).Once()

		_, err := repo.GetSnapshot(ctx, "m")
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
		assert.False(t, repo.isDown.Load())
		fallback.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		snap := &models.ConversationSnapshot{ConversationID: "b"}
		primary.On("GetSnapshot", ctx, "b").Return(nil, errors.New("fail")).Once()
		fallback.On("GetSnapshot", ctx, "b").Return(snap, nil).Once()

		got, err := repo.GetSnapshot(ctx, "b")
		assert.NoError(t, err)
		assert.Equal(t, snap, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SaveWhileDownSkipsPrimary", func(t *testing.T) {
		snap := &models.ConversationSnapshot{ConversationID: "c"}
		fallback.On("SaveSnapshot", ctx, snap).Return(nil).Once()

		assert.NoError(t, repo.SaveSnapshot(ctx, snap))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SaveSnapshot", ctx, snap)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		snap := &models.ConversationSnapshot{ConversationID: "d"}
		primary.On("SaveSnapshot", ctx, snap).Return(nil).Once()

		assert.NoError(t, repo.SaveSnapshot(ctx, snap))
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(false, errors.New("still fail")).Once()
		fallback.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("DeleteSnapshot", ctx, "e").Return(nil).Once()
		primary.On("DeleteSnapshot", ctx, "e").Return(nil).Once()

		assert.NoError(t, repo.DeleteSnapshot(ctx, "e"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "f", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "f", 10, time.Minute).Return(false, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "f", 10, time.Minute)
		assert.NoError(t, err)
		assert.False(t, allowed)
		assert.True(t, repo.isDown.Load())
	})
}

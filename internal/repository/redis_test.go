package repository

import (
	"context"
	"testing"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConversationRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisConversationRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndGetSnapshot", func(t *testing.T) {
		date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
		snap := &models.ConversationSnapshot{
			ConversationID: "tg-123",
			State:          models.StateSelectingSlot,
			Context: models.SelectionContext{
				Date:           &date,
				AvailableSlots: []models.TimeSlot{{ID: "s1", Time: "09:00", Available: true}},
			},
		}
		require.NoError(t, repo.SaveSnapshot(ctx, snap))
		assert.True(t, s.Exists("conversation:tg-123"))
		assert.Equal(t, time.Hour, s.TTL("conversation:tg-123"))

		got, err := repo.GetSnapshot(ctx, "tg-123")
		require.NoError(t, err)
		assert.Equal(t, models.StateSelectingSlot, got.State)
		require.NotNil(t, got.Context.Date)
		assert.True(t, date.Equal(*got.Context.Date))
		assert.Len(t, got.Context.AvailableSlots, 1)
	})

	t.Run("GetMissingSnapshot", func(t *testing.T) {
		_, err := repo.GetSnapshot(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("DeleteSnapshot", func(t *testing.T) {
		require.NoError(t, repo.DeleteSnapshot(ctx, "tg-123"))
		assert.False(t, s.Exists("conversation:tg-123"))
	})

	t.Run("CorruptSnapshot", func(t *testing.T) {
		require.NoError(t, s.Set("conversation:bad", "{not json"))
		_, err := repo.GetSnapshot(ctx, "bad")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("RateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "tg-9", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "tg-9", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = repo.CheckRateLimit(ctx, "tg-9", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisConversationRepositoryNilClient(t *testing.T) {
	repo := NewRedisConversationRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetSnapshot(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, repo.SaveSnapshot(ctx, &models.ConversationSnapshot{ConversationID: "x"}))
	assert.Error(t, repo.DeleteSnapshot(ctx, "x"))
	_, err = repo.CheckRateLimit(ctx, "x", 1, time.Minute)
	assert.Error(t, err)
	assert.NoError(t, Close(nil))
}

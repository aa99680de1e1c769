package repository

import (
	"context"
	"testing"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConversationRepository(t *testing.T) {
	repo := NewMemoryConversationRepository(time.Hour)
	ctx := context.Background()

	t.Run("SaveAndGetSnapshot", func(t *testing.T) {
		svc := models.Service{ID: "legal", Name: "Legal Advisory", Price: 200}
		snap := &models.ConversationSnapshot{
			ConversationID: "web-1",
			State:          models.StateSelectingConsultant,
			Context:        models.SelectionContext{Service: &svc},
		}
		require.NoError(t, repo.SaveSnapshot(ctx, snap))

		// изменение исходника не влияет на сохраненный снимок
		svc.Name = "changed"

		got, err := repo.GetSnapshot(ctx, "web-1")
		require.NoError(t, err)
		assert.Equal(t, models.StateSelectingConsultant, got.State)
		require.NotNil(t, got.Context.Service)
		assert.Equal(t, "Legal Advisory", got.Context.Service.Name)
	})

	t.Run("DeleteSnapshot", func(t *testing.T) {
		require.NoError(t, repo.DeleteSnapshot(ctx, "web-1"))
		_, err := repo.GetSnapshot(ctx, "web-1")
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
		r := NewMemoryConversationRepository(time.Minute)
		r.now = func() time.Time { return now }
		require.NoError(t, r.SaveSnapshot(ctx, &models.ConversationSnapshot{ConversationID: "x", State: models.StateIdle}))

		now = now.Add(2 * time.Minute)
		_, err := r.GetSnapshot(ctx, "x")
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("RateLimit", func(t *testing.T) {
		now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
		r := NewMemoryConversationRepository(time.Hour)
		r.now = func() time.Time { return now }

		allowed, _ := r.CheckRateLimit(ctx, "tg-1", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = r.CheckRateLimit(ctx, "tg-1", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = r.CheckRateLimit(ctx, "tg-1", 2, time.Second)
		assert.False(t, allowed)

		allowed, _ = r.CheckRateLimit(ctx, "tg-2", 2, time.Second)
		assert.True(t, allowed)

		now = now.Add(time.Second + 10*time.Millisecond)
		allowed, _ = r.CheckRateLimit(ctx, "tg-1", 2, time.Second)
		assert.True(t, allowed)
	})
}

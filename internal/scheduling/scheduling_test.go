package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBooked struct {
	ids []string
	err error
}

func (f *fakeBooked) BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error) {
	return f.ids, f.err
}

func newTestService(t *testing.T, contention map[string]float64, booked BookedSlotsLister) *Service {
	logger := zerolog.Nop()
	s, err := NewService(config.SchedulingConfig{
		Slots:          config.DefaultSlots(),
		ClosedWeekdays: []string{"saturday", "sunday"},
		Contention:     contention,
		Seed:           42,
	}, booked, &logger)
	require.NoError(t, err)
	return s
}

func TestWeekendsAreClosed(t *testing.T) {
	s := newTestService(t, nil, nil)
	ctx := context.Background()

	saturday := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	sunday := saturday.AddDate(0, 0, 1)
	for _, consultant := range []string{"c1", "c2", "c3", "c4"} {
		slots, err := s.GetAvailableSlots(ctx, consultant, saturday)
		require.NoError(t, err)
		assert.Empty(t, slots)

		slots, err = s.GetAvailableSlots(ctx, consultant, sunday)
		require.NoError(t, err)
		assert.Empty(t, slots)
	}
}

func TestWeekdaySlotsAscending(t *testing.T) {
	s := newTestService(t, nil, nil)
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	slots, err := s.GetAvailableSlots(context.Background(), "c1", monday)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	want := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}
	for i, slot := range slots {
		assert.Equal(t, want[i], slot.Time)
		assert.True(t, slot.Available)
	}
}

func TestContentionIsRandomButOrderStable(t *testing.T) {
	s := newTestService(t, map[string]float64{"s2": 0.5}, nil)
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	seen := map[bool]bool{}
	for i := 0; i < 50; i++ {
		slots, err := s.GetAvailableSlots(context.Background(), "c1", monday)
		require.NoError(t, err)
		require.Len(t, slots, 6)
		assert.Equal(t, "s2", slots[1].ID)
		assert.True(t, slots[0].Available)
		seen[slots[1].Available] = true
	}
	assert.True(t, seen[true] && seen[false], "contended slot should vary across queries")
}

func TestBookedSlotsUnavailable(t *testing.T) {
	s := newTestService(t, nil, &fakeBooked{ids: []string{"s1", "s5"}})
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	slots, err := s.GetAvailableSlots(context.Background(), "c1", monday)
	require.NoError(t, err)
	assert.False(t, slots[0].Available)
	assert.True(t, slots[1].Available)
	assert.False(t, slots[4].Available)
}

func TestBookedLookupFailure(t *testing.T) {
	s := newTestService(t, nil, &fakeBooked{err: errors.New("db down")})
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	_, err := s.GetAvailableSlots(context.Background(), "c1", monday)
	assert.ErrorIs(t, err, domain.ErrSlotsUnavailable)
}

func TestInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewService(config.SchedulingConfig{ClosedWeekdays: []string{"someday"}}, nil, &logger)
	assert.Error(t, err)
}

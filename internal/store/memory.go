// Package store provides the in-memory appointment store used by default and in tests.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	seq      int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		seq:      models.BookingIDOffset,
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slotHeld(draft.Consultant.ID, draft.Date, draft.Slot.ID, "") {
		return nil, domain.ErrSlotTaken
	}

	s.seq++
	now := s.now()
	b := &models.Booking{
		ID:             fmt.Sprintf("%s%d", models.BookingIDPrefix, s.seq),
		Service:        draft.Service,
		Consultant:     draft.Consultant,
		Date:           models.NormalizeDate(draft.Date),
		Slot:           draft.Slot,
		ContactDetails: draft.ContactDetails,
		Status:         models.BookingConfirmed,
		PaymentID:      draft.PaymentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.bookings[b.ID] = b
	return b.Clone(), nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if !b.IsActive() {
		return nil, domain.ErrBookingNotActive
	}
	b.Status = models.BookingCancelled
	b.UpdatedAt = s.now()
	return b.Clone(), nil
}

func (s *MemoryStore) RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if !b.IsActive() {
		return nil, domain.ErrBookingNotActive
	}
	if s.slotHeld(b.Consultant.ID, date, slot.ID, b.ID) {
		return nil, domain.ErrSlotTaken
	}
	b.Date = models.NormalizeDate(date)
	b.Slot = slot
	b.UpdatedAt = s.now()
	return b.Clone(), nil
}

func (s *MemoryStore) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := models.NormalizeDate(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, b := range s.bookings {
		if b.IsActive() && b.Consultant.ID == consultantID && b.Date.Equal(day) {
			ids = append(ids, b.Slot.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// slotHeld reports whether a confirmed booking other than except occupies the slot.
// Callers hold s.mu.
func (s *MemoryStore) slotHeld(consultantID string, date time.Time, slotID, except string) bool {
	day := models.NormalizeDate(date)
	for _, b := range s.bookings {
		if b.ID != except && b.IsActive() && b.Consultant.ID == consultantID &&
			b.Date.Equal(day) && b.Slot.ID == slotID {
			return true
		}
	}
	return false
}

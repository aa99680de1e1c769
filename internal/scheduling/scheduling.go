// Package scheduling computes slot availability per consultant and date.
package scheduling

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
)

// BookedSlotsLister reports slots already held by active bookings.
type BookedSlotsLister interface {
	BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error)
}

type Service struct {
	slots      []config.SlotTemplate
	closed     map[time.Weekday]bool
	contention map[string]float64
	booked     BookedSlotsLister
	logger     *zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ domain.SchedulingService = (*Service)(nil)

func NewService(cfg config.SchedulingConfig, booked BookedSlotsLister, logger *zerolog.Logger) (*Service, error) {
	weekdays, err := cfg.Weekdays()
	if err != nil {
		return nil, err
	}
	closed := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		closed[d] = true
	}

	slots := cfg.Slots
	if len(slots) == 0 {
		slots = config.DefaultSlots()
	}
	if err := config.ValidateSlots(slots); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Service{
		slots:      slots,
		closed:     closed,
		contention: cfg.Contention,
		booked:     booked,
		logger:     logger,
		rnd:        rand.New(rand.NewSource(seed)),
	}, nil
}

// GetAvailableSlots returns the slot template for the date in ascending order.
// Closed weekdays yield an empty list. Contended slots are randomly taken, and
// slots held by confirmed bookings are never available.
func (s *Service) GetAvailableSlots(ctx context.Context, consultantID string, date time.Time) ([]models.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := models.NormalizeDate(date)
	if s.closed[day.Weekday()] {
		return []models.TimeSlot{}, nil
	}

	taken := make(map[string]bool)
	if s.booked != nil {
		ids, err := s.booked.BookedSlotIDs(ctx, consultantID, day)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSlotsUnavailable, err)
		}
		for _, id := range ids {
			taken[id] = true
		}
	}

	out := make([]models.TimeSlot, 0, len(s.slots))
	s.mu.Lock()
	for _, tpl := range s.slots {
		available := !taken[tpl.ID]
		if p, ok := s.contention[tpl.ID]; ok && available && p > 0 {
			available = s.rnd.Float64() >= p
		}
		out = append(out, models.TimeSlot{ID: tpl.ID, Time: tpl.Time, Available: available})
	}
	s.mu.Unlock()

	s.logger.Debug().
		Str("consultant_id", consultantID).
		Str("date", day.Format(models.DateLayout)).
		Int("booked", len(taken)).
		Msg("Computed slot availability")

	return out, nil
}

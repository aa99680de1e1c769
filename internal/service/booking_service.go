package service

import (
	"context"
	"errors"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/events"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
)

// BookingRecorder counts booking operations by outcome.
type BookingRecorder interface {
	RecordBookingOperation(op, status string)
}

// BookingService wraps an AppointmentStore and fans successful mutations out
// to the event bus and the calendar sync queue. Side effects never fail the
// mutation itself.
type BookingService struct {
	store          domain.AppointmentStore
	eventBus       domain.EventPublisher
	calendarWorker domain.CalendarSyncWorker
	recorder       BookingRecorder
	logger         *zerolog.Logger
	now            func() time.Time
}

var _ domain.AppointmentStore = (*BookingService)(nil)

func NewBookingService(
	store domain.AppointmentStore,
	eventBus domain.EventPublisher,
	calendarWorker domain.CalendarSyncWorker,
	recorder BookingRecorder,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		store:          store,
		eventBus:       eventBus,
		calendarWorker: calendarWorker,
		recorder:       recorder,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	booking, err := s.store.CreateBooking(ctx, draft)
	s.record("create", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("consultant_id", booking.Consultant.ID).
		Str("date", booking.DateString()).
		Str("slot_id", booking.Slot.ID).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, booking, nil)
	s.enqueueSync(ctx, models.SyncTaskUpsert, booking)
	return booking, nil
}

func (s *BookingService) RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error) {
	// прежние дата и слот нужны подписчикам события
	previous, _ := s.store.GetBooking(ctx, id)

	booking, err := s.store.RescheduleBooking(ctx, id, date, slot)
	s.record("reschedule", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", id).Str("date", booking.DateString()).Str("slot_id", slot.ID).Msg("Booking rescheduled")
	s.publishEvent(events.EventBookingRescheduled, booking, previous)
	s.enqueueSync(ctx, models.SyncTaskUpsert, booking)
	return booking, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.store.CancelBooking(ctx, id)
	s.record("cancel", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", id).Msg("Booking cancelled")
	s.publishEvent(events.EventBookingCancelled, booking, nil)
	s.enqueueSync(ctx, models.SyncTaskDelete, booking)
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	return s.store.ListBookings(ctx)
}

func (s *BookingService) BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error) {
	return s.store.BookedSlotIDs(ctx, consultantID, date)
}

func (s *BookingService) record(op string, err error) {
	if s.recorder == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, domain.ErrSlotTaken):
		status = "conflict"
	case err != nil:
		status = "error"
	}
	s.recorder.RecordBookingOperation(op, status)
}

// NewBookingEventPayload flattens a booking for event consumers. previous is
// set for reschedules.
func NewBookingEventPayload(b *models.Booking, previous *models.Booking, at time.Time) events.BookingEventPayload {
	p := events.BookingEventPayload{
		BookingID:      b.ID,
		ServiceID:      b.Service.ID,
		ServiceName:    b.Service.Name,
		ConsultantID:   b.Consultant.ID,
		ConsultantName: b.Consultant.Name,
		Date:           b.DateString(),
		SlotID:         b.Slot.ID,
		SlotTime:       b.Slot.Time,
		Status:         string(b.Status),
		CustomerEmail:  b.ContactDetails.Email,
		PaymentID:      b.PaymentID,
		OccurredAt:     at.UTC(),
	}
	if previous != nil {
		p.PreviousDate = previous.DateString()
		p.PreviousSlotID = previous.Slot.ID
	}
	return p
}

func (s *BookingService) publishEvent(eventType string, booking, previous *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := NewBookingEventPayload(booking, previous, s.now())
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, booking *models.Booking) {
	if s.calendarWorker == nil {
		return
	}

	if err := s.calendarWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("calendar enqueue error")
	}
}

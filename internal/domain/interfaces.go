package domain

import (
	"context"
	"time"

	"consultbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AppointmentStore holds bookings. Mutations must be atomic per booking id.
type AppointmentStore interface {
	CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)
	RescheduleBooking(ctx context.Context, id string, date time.Time, slot models.TimeSlot) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	BookedSlotIDs(ctx context.Context, consultantID string, date time.Time) ([]string, error)
}

type SchedulingService interface {
	GetAvailableSlots(ctx context.Context, consultantID string, date time.Time) ([]models.TimeSlot, error)
}

type VerificationService interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (bool, error)
}

type ChargeResult struct {
	TransactionID string
	Amount        float64
}

type PaymentService interface {
	Charge(ctx context.Context, amount float64, token string) (*ChargeResult, error)
}

// IntentClassifier maps free text to a structured intent. A returned error means
// the classifier could not answer, which is different from IntentUnknown.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (*models.IntentResult, error)
}

type ConversationRepository interface {
	GetSnapshot(ctx context.Context, conversationID string) (*models.ConversationSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.ConversationSnapshot) error
	DeleteSnapshot(ctx context.Context, conversationID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// CalendarWriter mirrors bookings into an external calendar.
type CalendarWriter interface {
	UpsertBookingEvent(ctx context.Context, booking *models.Booking) error
	DeleteBookingEvent(ctx context.Context, bookingID string) error
}

type CalendarSyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

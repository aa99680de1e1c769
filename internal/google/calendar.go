package google

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarClient mirrors bookings as events in one Google Calendar.
type CalendarClient struct {
	service      *calendar.Service
	calendarID   string
	location     *time.Location
	slotDuration time.Duration

	// события, которые уже есть в календаре
	known   map[string]struct{}
	knownMu sync.RWMutex
}

var _ domain.CalendarWriter = (*CalendarClient)(nil)

func NewCalendarClient(ctx context.Context, credentialsFile, calendarID, timeZone string, slotDuration time.Duration) (*CalendarClient, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	return newCalendarClient(srv, calendarID, timeZone, slotDuration)
}

func newCalendarClient(srv *calendar.Service, calendarID, timeZone string, slotDuration time.Duration) (*CalendarClient, error) {
	if calendarID == "" {
		return nil, errors.New("calendar id is required")
	}
	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
		}
		loc = l
	}
	if slotDuration <= 0 {
		slotDuration = time.Hour
	}
	return &CalendarClient{
		service:      srv,
		calendarID:   calendarID,
		location:     loc,
		slotDuration: slotDuration,
		known:        make(map[string]struct{}),
	}, nil
}

// TestConnection проверяет доступ к календарю
func (c *CalendarClient) TestConnection(ctx context.Context) error {
	_, err := c.service.Calendars.Get(c.calendarID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// UpsertBookingEvent updates the booking's event, inserting it when the calendar does not have it yet.
func (c *CalendarClient) UpsertBookingEvent(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}
	event, err := c.bookingEvent(booking)
	if err != nil {
		return err
	}

	if !c.isKnown(event.Id) {
		_, err = c.service.Events.Insert(c.calendarID, event).Context(ctx).Do()
		if err == nil {
			c.setKnown(event.Id)
			return nil
		}
		// 409: событие уже существует, обновляем его
		if !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("insert event for %s: %w", booking.ID, err)
		}
	}

	_, err = c.service.Events.Update(c.calendarID, event.Id, event).Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			c.forget(event.Id)
		}
		return fmt.Errorf("update event for %s: %w", booking.ID, err)
	}
	c.setKnown(event.Id)
	return nil
}

// DeleteBookingEvent removes the booking's event. A missing event is not an error.
func (c *CalendarClient) DeleteBookingEvent(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return errors.New("booking id is required")
	}
	id := EventID(bookingID)
	err := c.service.Events.Delete(c.calendarID, id).Context(ctx).Do()
	c.forget(id)
	if err != nil && !isStatus(err, http.StatusNotFound) && !isStatus(err, http.StatusGone) {
		return fmt.Errorf("delete event for %s: %w", bookingID, err)
	}
	return nil
}

// EventID maps a booking id onto the base32hex alphabet Calendar accepts for event ids.
func EventID(bookingID string) string {
	return "cb" + hex.EncodeToString([]byte(strings.ToUpper(bookingID)))
}

func (c *CalendarClient) bookingEvent(b *models.Booking) (*calendar.Event, error) {
	start, err := c.slotStart(b)
	if err != nil {
		return nil, err
	}
	end := start.Add(c.slotDuration)

	status := "confirmed"
	if !b.IsActive() {
		status = "cancelled"
	}

	return &calendar.Event{
		Id:          EventID(b.ID),
		Summary:     fmt.Sprintf("%s with %s", b.Service.Name, b.Consultant.Name),
		Description: bookingDescription(b),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.location.String()},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.location.String()},
		Status:      status,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				"booking_id":    b.ID,
				"consultant_id": b.Consultant.ID,
				"service_id":    b.Service.ID,
			},
		},
	}, nil
}

func (c *CalendarClient) slotStart(b *models.Booking) (time.Time, error) {
	clock, err := time.Parse("15:04", b.Slot.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot time %q: %w", b.Slot.Time, err)
	}
	y, m, d := b.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, c.location), nil
}

func bookingDescription(b *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking: %s\n", b.ID)
	fmt.Fprintf(&sb, "Client: %s\n", b.ContactDetails.Name)
	fmt.Fprintf(&sb, "Email: %s\n", b.ContactDetails.Email)
	fmt.Fprintf(&sb, "Phone: %s\n", b.ContactDetails.Phone)
	fmt.Fprintf(&sb, "Price: %.2f\n", b.Service.Price)
	if b.PaymentID != "" {
		fmt.Fprintf(&sb, "Payment: %s\n", b.PaymentID)
	}
	return sb.String()
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func (c *CalendarClient) isKnown(id string) bool {
	c.knownMu.RLock()
	defer c.knownMu.RUnlock()
	_, ok := c.known[id]
	return ok
}

func (c *CalendarClient) setKnown(id string) {
	c.knownMu.Lock()
	defer c.knownMu.Unlock()
	c.known[id] = struct{}{}
}

func (c *CalendarClient) forget(id string) {
	c.knownMu.Lock()
	defer c.knownMu.Unlock()
	delete(c.known, id)
}

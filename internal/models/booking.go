package models

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// DateLayout is the calendar date format used for bookings and slot queries.
const DateLayout = "2006-01-02"

type TimeSlot struct {
	ID        string `json:"id"`
	Time      string `json:"time"` // HH:mm, business local time
	Available bool   `json:"available"`
}

type ContactDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Booking struct {
	ID             string         `json:"id"`
	Service        Service        `json:"service"`
	Consultant     Consultant     `json:"consultant"`
	Date           time.Time      `json:"date"`
	Slot           TimeSlot       `json:"slot"`
	ContactDetails ContactDetails `json:"contact_details"`
	Status         BookingStatus  `json:"status"`
	PaymentID      string         `json:"payment_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BookingDraft carries the fields a store needs to create a booking.
type BookingDraft struct {
	Service        Service
	Consultant     Consultant
	Date           time.Time
	Slot           TimeSlot
	ContactDetails ContactDetails
	PaymentID      string
}

func (b *Booking) IsActive() bool {
	return b != nil && b.Status == BookingConfirmed
}

// DateString formats the booking date as YYYY-MM-DD.
func (b *Booking) DateString() string {
	return b.Date.Format(DateLayout)
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// NormalizeDate drops the time-of-day component so dates compare as calendar days.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

package models

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type WidgetKind string

const (
	WidgetServiceList     WidgetKind = "service_list"
	WidgetConsultantList  WidgetKind = "consultant_list"
	WidgetDatePicker      WidgetKind = "date_picker"
	WidgetSlotGrid        WidgetKind = "slot_grid"
	WidgetPaymentForm     WidgetKind = "payment_form"
	WidgetSuccessCard     WidgetKind = "success_card"
	WidgetRetry           WidgetKind = "retry"
	WidgetSuggestionChips WidgetKind = "suggestion_chips"
	WidgetConfirmChoice   WidgetKind = "confirm_choice"
)

// WidgetIntent tells a renderer which control to present and which event kind
// to send back when the user interacts with it.
type WidgetIntent struct {
	Kind    WidgetKind  `json:"kind"`
	Action  EventKind   `json:"action"`
	Payload interface{} `json:"payload,omitempty"`
}

type Message struct {
	ID        string        `json:"id"`
	Sender    Sender        `json:"sender"`
	Text      string        `json:"text,omitempty"`
	Widget    *WidgetIntent `json:"widget,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type ServiceListPayload struct {
	Services    []Service `json:"services"`
	Recommended string    `json:"recommended,omitempty"`
}

type ConsultantListPayload struct {
	ServiceID   string       `json:"service_id"`
	Consultants []Consultant `json:"consultants"`
}

type DatePickerPayload struct {
	ConsultantID string    `json:"consultant_id"`
	From         time.Time `json:"from"`
	Days         int       `json:"days"`
	Reschedule   bool      `json:"reschedule"`
}

type SlotGridPayload struct {
	ConsultantID string     `json:"consultant_id"`
	Date         time.Time  `json:"date"`
	Slots        []TimeSlot `json:"slots"`
}

type PaymentFormPayload struct {
	ServiceName string  `json:"service_name"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

type SuccessCardPayload struct {
	Booking Booking `json:"booking"`
	Title   string  `json:"title"`
}

type RetryPayload struct {
	RetryID string `json:"retry_id"`
	Label   string `json:"label"`
}

type ChipsPayload struct {
	Options []string `json:"options"`
}

type ChoiceOption struct {
	Label  string `json:"label"`
	Choice Choice `json:"choice"`
}

type ConfirmChoicePayload struct {
	Options []ChoiceOption `json:"options"`
	Booking *Booking       `json:"booking,omitempty"`
}

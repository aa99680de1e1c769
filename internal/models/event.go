package models

import "time"

type EventKind string

const (
	EventText             EventKind = "text"
	EventSelectService    EventKind = "select_service"
	EventSelectConsultant EventKind = "select_consultant"
	EventSelectDate       EventKind = "select_date"
	EventSelectSlot       EventKind = "select_slot"
	EventChoice           EventKind = "choice"
	EventPay              EventKind = "pay"
	EventRetry            EventKind = "retry"
)

type Choice string

const (
	ChoiceAccept  Choice = "accept"
	ChoiceReject  Choice = "reject"
	ChoiceConfirm Choice = "confirm"
	ChoiceKeep    Choice = "keep"
)

// UserEvent is either free text or a structured selection sent back by a renderer.
type UserEvent struct {
	Kind         EventKind  `json:"kind"`
	Text         string     `json:"text,omitempty"`
	ServiceID    string     `json:"service_id,omitempty"`
	ConsultantID string     `json:"consultant_id,omitempty"`
	Date         *time.Time `json:"date,omitempty"`
	SlotID       string     `json:"slot_id,omitempty"`
	Choice       Choice     `json:"choice,omitempty"`
	PaymentToken string     `json:"payment_token,omitempty"`
	RetryID      string     `json:"retry_id,omitempty"`
}

func TextEvent(text string) UserEvent {
	return UserEvent{Kind: EventText, Text: text}
}

func ServiceEvent(id string) UserEvent {
	return UserEvent{Kind: EventSelectService, ServiceID: id}
}

func ConsultantEvent(id string) UserEvent {
	return UserEvent{Kind: EventSelectConsultant, ConsultantID: id}
}

func DateEvent(date time.Time) UserEvent {
	d := NormalizeDate(date)
	return UserEvent{Kind: EventSelectDate, Date: &d}
}

func SlotEvent(id string) UserEvent {
	return UserEvent{Kind: EventSelectSlot, SlotID: id}
}

func ChoiceEvent(c Choice) UserEvent {
	return UserEvent{Kind: EventChoice, Choice: c}
}

func PayEvent(token string) UserEvent {
	return UserEvent{Kind: EventPay, PaymentToken: token}
}

func RetryEvent(id string) UserEvent {
	return UserEvent{Kind: EventRetry, RetryID: id}
}

type Intent string

const (
	IntentBook         Intent = "BOOK"
	IntentReschedule   Intent = "RESCHEDULE"
	IntentCancel       Intent = "CANCEL"
	IntentGeneralQuery Intent = "GENERAL_QUERY"
	IntentUnknown      Intent = "UNKNOWN"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentBook, IntentReschedule, IntentCancel, IntentGeneralQuery, IntentUnknown:
		return true
	}
	return false
}

type IntentResult struct {
	Intent               Intent `json:"intent"`
	RecommendedServiceID string `json:"recommendedServiceId,omitempty"`
	ExtractedDate        string `json:"extractedDate,omitempty"`
	ReplyText            string `json:"replyText"`
}

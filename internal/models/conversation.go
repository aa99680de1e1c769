package models

import "time"

type ConversationState string

const (
	StateIdle                        ConversationState = "IDLE"
	StateAwaitingServiceConfirmation ConversationState = "AWAITING_SERVICE_CONFIRMATION"
	StateSelectingService            ConversationState = "SELECTING_SERVICE"
	StateSelectingConsultant         ConversationState = "SELECTING_CONSULTANT"
	StateSelectingDate               ConversationState = "SELECTING_DATE"
	StateFetchingSlots               ConversationState = "FETCHING_SLOTS"
	StateSelectingSlot               ConversationState = "SELECTING_SLOT"
	StateCollectingContactDetails    ConversationState = "COLLECTING_CONTACT_DETAILS"
	StateVerifyingOtp                ConversationState = "VERIFYING_OTP"
	StateProcessingPayment           ConversationState = "PROCESSING_PAYMENT"
	StateConfirmed                   ConversationState = "CONFIRMED"
	StateFindingBookingToReschedule  ConversationState = "FINDING_BOOKING_TO_RESCHEDULE"
	StateFindingBookingToCancel      ConversationState = "FINDING_BOOKING_TO_CANCEL"
	StateSelectingRescheduleDate     ConversationState = "SELECTING_RESCHEDULE_DATE"
	StateErrored                     ConversationState = "ERROR"
)

func (s ConversationState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends a flow and waits for the auto-reset.
func (s ConversationState) IsTerminal() bool {
	return s == StateConfirmed
}

// SelectionContext accumulates the user's choices across one flow.
type SelectionContext struct {
	Service              *Service        `json:"service,omitempty"`
	Consultant           *Consultant     `json:"consultant,omitempty"`
	Date                 *time.Time      `json:"date,omitempty"`
	AvailableSlots       []TimeSlot      `json:"available_slots,omitempty"`
	Slot                 *TimeSlot       `json:"slot,omitempty"`
	ContactDetails       *ContactDetails `json:"contact_details,omitempty"`
	BookingBeingModified *Booking        `json:"booking_being_modified,omitempty"`
	// PaymentID is the charge taken for this flow that no booking carries yet.
	PaymentID            string          `json:"payment_id,omitempty"`
}

func (c *SelectionContext) Reset() {
	*c = SelectionContext{}
}

func (c SelectionContext) IsEmpty() bool {
	return c.Service == nil && c.Consultant == nil && c.Date == nil &&
		len(c.AvailableSlots) == 0 && c.Slot == nil && c.ContactDetails == nil &&
		c.BookingBeingModified == nil && c.PaymentID == ""
}

// Clone returns a deep copy safe to hand to readers outside the event loop.
func (c *SelectionContext) Clone() SelectionContext {
	out := SelectionContext{PaymentID: c.PaymentID}
	if c.Service != nil {
		s := *c.Service
		out.Service = &s
	}
	if c.Consultant != nil {
		cons := *c.Consultant
		out.Consultant = &cons
	}
	if c.Date != nil {
		d := *c.Date
		out.Date = &d
	}
	if len(c.AvailableSlots) > 0 {
		out.AvailableSlots = append([]TimeSlot(nil), c.AvailableSlots...)
	}
	if c.Slot != nil {
		s := *c.Slot
		out.Slot = &s
	}
	if c.ContactDetails != nil {
		cd := *c.ContactDetails
		out.ContactDetails = &cd
	}
	out.BookingBeingModified = c.BookingBeingModified.Clone()
	return out
}

// ConversationSnapshot is the persisted view of a conversation between restarts.
type ConversationSnapshot struct {
	ConversationID string            `json:"conversation_id"`
	State          ConversationState `json:"state"`
	Context        SelectionContext  `json:"context"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

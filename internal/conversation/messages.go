package conversation

import (
	"fmt"
	"time"

	"consultbot/internal/models"
)

const (
	msgGreeting = "Hello! I'm Consultancy Deep Fox. I can help you book an appointment with our experts, " +
		"reschedule existing bookings, or answer generic queries. How can I assist you today?"
	msgClassifierDown       = "I'm having trouble connecting to my brain. Please check your internet connection and try again."
	msgPickService          = "Please select a service category:"
	msgServiceNotFound      = "I couldn't find that service. Please pick one from the list."
	msgNoConsultants        = "No consultants are available for %s right now. Please choose another service."
	msgPickConsultant       = "Great choice. Do you have a preferred consultant?"
	msgConsultantNotFound   = "That consultant isn't available for this service. Please pick one from the list."
	msgPickDate             = "When would you like to meet?"
	msgReselectConsultant   = "Something went wrong. Please select a consultant again."
	msgPastDate             = "Please choose a date from today onward."
	msgCheckingAvailability = "Checking availability..."
	msgSlotsFailed          = "Failed to retrieve time slots. Please try again."
	msgNoSlots              = "No slots are available for %s on %s. Please pick another date."
	msgSlotsFound           = "Available slots for %s on %s:"
	msgSlotTaken            = "That slot is not available. Please choose another time."
	msgSlotLost             = "Sorry, that slot was just booked by someone else."
	msgSlotLostPaid         = "Sorry, that slot was just booked by someone else. Your payment is kept, just pick another time."
	msgAskContact           = "Almost there! Please enter your full name, email, and phone number separated by commas " +
		"(e.g., Wade Wilson, wade@xforce.com, 555-0100)."
	msgContactFormat     = "I couldn't parse that. Please try format: Name, Email, Phone"
	msgOTPSendFailed     = "Failed to send SMS. Please check the number."
	msgOTPSent           = "I've sent an OTP to %s. Please enter the code."
	msgOTPInvalid        = "Invalid OTP. Please try again."
	msgOTPExpired        = "That code has expired. I've sent a new one to %s."
	msgOTPUnavailable    = "Verification service unavailable."
	msgVerified          = "Verification successful. Please complete the payment to confirm."
	msgPaymentDeclined   = "Transaction declined. Please ensure your card details are correct or try a different method."
	msgPaymentError      = "Payment processing error. Please ensure your card details are correct or try a different method."
	msgBookingSaveFailed = "Your payment went through but we couldn't save the booking. Please try again."
	msgBookingConfirmed  = "Your booking is confirmed!"
	msgBookingIncomplete = "Something went wrong with your booking details. Please start again."
	msgAnythingElse      = "Is there anything else I can help you with?"
	msgAskRescheduleID   = "Please provide your Booking ID (e.g., BK-1234) to proceed."
	msgAskCancelID       = "Please provide your Booking ID to cancel."
	msgBookingNotFound   = "I couldn't find a booking with that ID. Please check and try again, or type 'cancel' to exit."
	msgBookingInactive   = "This booking has already been cancelled. Please enter a different Booking ID, or type 'cancel' to exit."
	msgLookupFailed      = "Could not retrieve booking details."
	msgFoundBooking      = "Found your booking:"
	msgReschedulingFor   = "Rescheduling for %s with %s. Please select a new date:"
	msgRescheduled       = "Your appointment has been successfully rescheduled."
	msgRescheduleFailed  = "Unable to reschedule at this time."
	msgNoLongerActive    = "This booking is no longer active."
	msgCancelled         = "Your booking has been successfully cancelled. Refund initiated (if applicable)."
	msgCancelFailed      = "Failed to cancel booking."
	msgCancelAborted     = "Cancellation aborted."
	msgStartOver         = "Let's start over. How can I help?"
	msgOperationCanceled = "Operation cancelled. Is there anything else I can do?"
	msgUseOptions        = "Please use the options above, or type 'cancel' to restart."
	msgRetryExpired      = "That action is no longer available. Please continue from the latest message."
	msgServiceSuggested  = "I've selected %s based on your request. Is that correct?"
	msgOTPHint           = " (Hint: use %s)"
)

var greetingChips = []string{
	"I need help with tax filing",
	"Book a legal consultation",
	"Reschedule my appointment",
	"Cancel a booking",
	"What services do you offer?",
}

var afterCancelChips = []string{
	"Book a new appointment",
	"Check services",
	"Contact support",
}

func chipsWidget(options []string) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetSuggestionChips,
		Action:  models.EventText,
		Payload: models.ChipsPayload{Options: append([]string(nil), options...)},
	}
}

func serviceListWidget(services []models.Service, recommended string) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetServiceList,
		Action:  models.EventSelectService,
		Payload: models.ServiceListPayload{Services: append([]models.Service(nil), services...), Recommended: recommended},
	}
}

func consultantListWidget(serviceID string, consultants []models.Consultant) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetConsultantList,
		Action:  models.EventSelectConsultant,
		Payload: models.ConsultantListPayload{ServiceID: serviceID, Consultants: consultants},
	}
}

func datePickerWidget(consultantID string, from time.Time, reschedule bool) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:   models.WidgetDatePicker,
		Action: models.EventSelectDate,
		Payload: models.DatePickerPayload{
			ConsultantID: consultantID,
			From:         models.NormalizeDate(from),
			Days:         models.DatePickerDays,
			Reschedule:   reschedule,
		},
	}
}

func slotGridWidget(consultantID string, date time.Time, slots []models.TimeSlot) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetSlotGrid,
		Action:  models.EventSelectSlot,
		Payload: models.SlotGridPayload{ConsultantID: consultantID, Date: date, Slots: append([]models.TimeSlot(nil), slots...)},
	}
}

func paymentWidget(svc models.Service, currency string) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetPaymentForm,
		Action:  models.EventPay,
		Payload: models.PaymentFormPayload{ServiceName: svc.Name, Amount: svc.Price, Currency: currency},
	}
}

func successWidget(b *models.Booking, title string) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetSuccessCard,
		Payload: models.SuccessCardPayload{Booking: *b, Title: title},
	}
}

func retryWidget(id string) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:    models.WidgetRetry,
		Action:  models.EventRetry,
		Payload: models.RetryPayload{RetryID: id, Label: "Retry"},
	}
}

func serviceConfirmWidget() *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:   models.WidgetConfirmChoice,
		Action: models.EventChoice,
		Payload: models.ConfirmChoicePayload{Options: []models.ChoiceOption{
			{Label: "Yes, proceed", Choice: models.ChoiceAccept},
			{Label: "No, show all services", Choice: models.ChoiceReject},
		}},
	}
}

func cancelConfirmWidget(b *models.Booking) *models.WidgetIntent {
	return &models.WidgetIntent{
		Kind:   models.WidgetConfirmChoice,
		Action: models.EventChoice,
		Payload: models.ConfirmChoicePayload{
			Options: []models.ChoiceOption{
				{Label: "Yes, Cancel It", Choice: models.ChoiceConfirm},
				{Label: "Keep It", Choice: models.ChoiceKeep},
			},
			Booking: b.Clone(),
		},
	}
}

// shortDate renders dates the way they appear in slot prompts, e.g. "Mar 9".
func shortDate(t time.Time) string {
	return t.Format("Jan 2")
}

// echoText is the user-side line recorded for a structured event.
func echoText(ev models.UserEvent, catalog models.Catalog) string {
	switch ev.Kind {
	case models.EventText:
		return ev.Text
	case models.EventSelectService:
		if s, ok := catalog.Service(ev.ServiceID); ok {
			return "Selected: " + s.Name
		}
		return "Selected: " + ev.ServiceID
	case models.EventSelectConsultant:
		if c, ok := catalog.Consultant(ev.ConsultantID); ok {
			return "Selected: " + c.Name
		}
		return "Selected: " + ev.ConsultantID
	case models.EventSelectDate:
		if ev.Date != nil {
			return "Date: " + ev.Date.Format("Mon, Jan 2")
		}
		return "Date: -"
	case models.EventSelectSlot:
		return "Time slot: " + ev.SlotID
	case models.EventChoice:
		switch ev.Choice {
		case models.ChoiceAccept:
			return "Yes, proceed"
		case models.ChoiceReject:
			return "No, show all services"
		case models.ChoiceConfirm:
			return "Yes, Cancel It"
		case models.ChoiceKeep:
			return "Keep It"
		}
		return string(ev.Choice)
	case models.EventPay:
		return "Payment submitted."
	case models.EventRetry:
		return "Retry"
	}
	return fmt.Sprintf("[%s]", ev.Kind)
}

package domain

import "errors"

var (
	ErrBookingNotFound       = errors.New("booking not found")
	ErrBookingNotActive      = errors.New("booking is not active")
	ErrSlotTaken             = errors.New("slot already booked")
	ErrPaymentDeclined       = errors.New("payment declined")
	ErrOTPDeliveryFailed     = errors.New("otp delivery failed")
	ErrOTPExpired            = errors.New("otp expired or never issued")
	ErrClassifierUnavailable = errors.New("intent classifier unavailable")
	ErrSlotsUnavailable      = errors.New("slot availability unavailable")
	ErrSnapshotNotFound      = errors.New("conversation snapshot not found")
)

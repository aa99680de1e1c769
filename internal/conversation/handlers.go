package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"
)

func (o *Orchestrator) handleUser(ctx context.Context, ev models.UserEvent) {
	if ev.Kind != models.EventRetry {
		o.append(models.SenderUser, echoText(ev, o.deps.Catalog), nil)
	}

	if ev.Kind == models.EventText && isCancelCommand(ev.Text) {
		o.resetToIdle()
		o.bot(msgOperationCanceled, chipsWidget(afterCancelChips))
		return
	}

	switch o.state {
	case models.StateErrored:
		o.resetToIdle()
		o.bot(msgStartOver, chipsWidget(greetingChips))
		return
	case models.StateConfirmed:
		// любой ввод до истечения паузы сбрасывает диалог досрочно
		o.resetToIdle()
	}

	if ev.Kind == models.EventRetry {
		o.runRetry(ctx, ev.RetryID)
		return
	}

	switch o.state {
	case models.StateIdle:
		o.handleIdle(ctx, ev)
	case models.StateAwaitingServiceConfirmation:
		o.handleServiceConfirmation(ev)
	case models.StateSelectingService:
		o.handleSelectingService(ev)
	case models.StateSelectingConsultant:
		o.handleSelectingConsultant(ev)
	case models.StateSelectingDate, models.StateSelectingRescheduleDate:
		o.handleSelectingDate(ctx, ev)
	case models.StateSelectingSlot:
		o.handleSelectingSlot(ctx, ev)
	case models.StateCollectingContactDetails:
		if ev.Kind != models.EventText {
			o.hint()
			return
		}
		o.submitContactDetails(ctx, ev.Text)
	case models.StateVerifyingOtp:
		if ev.Kind != models.EventText {
			o.hint()
			return
		}
		o.verifyCode(ctx, strings.TrimSpace(ev.Text))
	case models.StateProcessingPayment:
		if ev.Kind != models.EventPay {
			o.hint()
			return
		}
		o.pay(ctx, ev.PaymentToken)
	case models.StateFindingBookingToReschedule, models.StateFindingBookingToCancel:
		o.handleFindingBooking(ctx, ev)
	default:
		o.hint()
	}
}

func isCancelCommand(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), models.CancelCommand)
}

func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "yeah", "yep", "correct", "ok", "okay", "sure":
		return true
	}
	return false
}

func isNegative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "no", "n", "nope", "wrong":
		return true
	}
	return false
}

func (o *Orchestrator) handleIdle(ctx context.Context, ev models.UserEvent) {
	if ev.Kind != models.EventText || strings.TrimSpace(ev.Text) == "" {
		o.hint()
		return
	}
	o.classify(ctx, strings.TrimSpace(ev.Text))
}

func (o *Orchestrator) classify(ctx context.Context, text string) {
	res, err := o.deps.Classifier.Classify(ctx, text)
	if err != nil {
		o.offerRetry("classify", err, msgClassifierDown, func(ctx context.Context) {
			o.classify(ctx, text)
		})
		return
	}

	o.logger.Debug().
		Str("intent", string(res.Intent)).
		Str("recommended_service", res.RecommendedServiceID).
		Str("extracted_date", res.ExtractedDate).
		Msg("Intent classified")

	switch res.Intent {
	case models.IntentBook:
		o.replyIfAny(res.ReplyText, nil)
		if svc, ok := o.deps.Catalog.Service(res.RecommendedServiceID); ok {
			o.sel.Service = &svc
			o.transition(models.StateAwaitingServiceConfirmation)
			o.bot(fmt.Sprintf(msgServiceSuggested, svc.Name), serviceConfirmWidget())
			return
		}
		o.promptServices("")
	case models.IntentReschedule:
		o.replyIfAny(res.ReplyText, nil)
		o.transition(models.StateFindingBookingToReschedule)
		o.bot(msgAskRescheduleID, nil)
	case models.IntentCancel:
		o.replyIfAny(res.ReplyText, nil)
		o.transition(models.StateFindingBookingToCancel)
		o.bot(msgAskCancelID, nil)
	case models.IntentUnknown:
		text := res.ReplyText
		if text == "" {
			text = msgUseOptions
		}
		o.bot(text, chipsWidget(greetingChips))
	default:
		o.replyIfAny(res.ReplyText, nil)
	}
}

func (o *Orchestrator) replyIfAny(text string, widget *models.WidgetIntent) {
	if text != "" {
		o.bot(text, widget)
	}
}

func (o *Orchestrator) promptServices(recommended string) {
	o.sel.Service = nil
	o.transition(models.StateSelectingService)
	o.bot(msgPickService, serviceListWidget(o.deps.Catalog.Services, recommended))
}

func (o *Orchestrator) handleServiceConfirmation(ev models.UserEvent) {
	accept := (ev.Kind == models.EventChoice && ev.Choice == models.ChoiceAccept) ||
		(ev.Kind == models.EventText && isAffirmative(ev.Text))
	reject := (ev.Kind == models.EventChoice && ev.Choice == models.ChoiceReject) ||
		(ev.Kind == models.EventText && isNegative(ev.Text))

	switch {
	case accept:
		if o.sel.Service == nil {
			o.promptServices("")
			return
		}
		o.chooseService(*o.sel.Service)
	case reject:
		o.promptServices("")
	case ev.Kind == models.EventSelectService:
		o.selectServiceByID(ev.ServiceID)
	default:
		o.hint()
	}
}

func (o *Orchestrator) handleSelectingService(ev models.UserEvent) {
	if ev.Kind != models.EventSelectService {
		o.hint()
		return
	}
	o.selectServiceByID(ev.ServiceID)
}

func (o *Orchestrator) selectServiceByID(id string) {
	svc, ok := o.deps.Catalog.Service(id)
	if !ok {
		o.transition(models.StateSelectingService)
		o.bot(msgServiceNotFound, serviceListWidget(o.deps.Catalog.Services, ""))
		return
	}
	o.chooseService(svc)
}

func (o *Orchestrator) chooseService(svc models.Service) {
	consultants := o.deps.Catalog.ConsultantsFor(svc.ID)
	if len(consultants) == 0 {
		o.sel.Service = nil
		o.transition(models.StateSelectingService)
		o.bot(fmt.Sprintf(msgNoConsultants, svc.Name), serviceListWidget(o.deps.Catalog.Services, ""))
		return
	}

	o.sel.Service = &svc
	o.sel.Consultant = nil
	o.transition(models.StateSelectingConsultant)
	o.bot(msgPickConsultant, consultantListWidget(svc.ID, consultants))
}

func (o *Orchestrator) handleSelectingConsultant(ev models.UserEvent) {
	if ev.Kind != models.EventSelectConsultant {
		o.hint()
		return
	}
	if o.sel.Service == nil {
		o.promptServices("")
		return
	}

	cons, ok := o.deps.Catalog.Consultant(ev.ConsultantID)
	if !ok || cons.ServiceID != o.sel.Service.ID {
		o.bot(msgConsultantNotFound, consultantListWidget(o.sel.Service.ID, o.deps.Catalog.ConsultantsFor(o.sel.Service.ID)))
		return
	}

	o.sel.Consultant = &cons
	o.transition(models.StateSelectingDate)
	o.bot(msgPickDate, datePickerWidget(cons.ID, o.deps.Clock(), false))
}

func (o *Orchestrator) handleSelectingDate(ctx context.Context, ev models.UserEvent) {
	var date time.Time
	switch ev.Kind {
	case models.EventSelectDate:
		date = *ev.Date
	case models.EventText:
		d, err := models.ParseDate(strings.TrimSpace(ev.Text))
		if err != nil {
			o.hint()
			return
		}
		date = d
	default:
		o.hint()
		return
	}

	if o.sel.Consultant == nil {
		o.bot(msgReselectConsultant, nil)
		return
	}

	date = models.NormalizeDate(date)
	reschedule := o.state == models.StateSelectingRescheduleDate
	if date.Before(models.NormalizeDate(o.deps.Clock())) {
		o.bot(msgPastDate, datePickerWidget(o.sel.Consultant.ID, o.deps.Clock(), reschedule))
		return
	}

	o.fetchSlots(ctx, *o.sel.Consultant, date)
}

// fetchSlots passes through FetchingSlots and lands on SelectingSlot, or back
// on the date state it came from when nothing can be offered.
func (o *Orchestrator) fetchSlots(ctx context.Context, cons models.Consultant, date time.Time) {
	back := o.state
	reschedule := back == models.StateSelectingRescheduleDate

	d := date
	o.sel.Date = &d
	o.sel.Slot = nil
	o.sel.AvailableSlots = nil
	o.transition(models.StateFetchingSlots)
	o.bot(msgCheckingAvailability, nil)

	slots, err := o.deps.Scheduling.GetAvailableSlots(ctx, cons.ID, date)
	if err != nil {
		o.transition(back)
		o.offerRetry("get_slots", err, msgSlotsFailed, func(ctx context.Context) {
			o.fetchSlots(ctx, cons, date)
		})
		return
	}

	o.sel.AvailableSlots = slots
	if !anyAvailable(slots) {
		o.transition(back)
		o.bot(fmt.Sprintf(msgNoSlots, cons.Name, shortDate(date)), datePickerWidget(cons.ID, o.deps.Clock(), reschedule))
		return
	}

	o.transition(models.StateSelectingSlot)
	o.bot(fmt.Sprintf(msgSlotsFound, cons.Name, shortDate(date)), slotGridWidget(cons.ID, date, slots))
}

func anyAvailable(slots []models.TimeSlot) bool {
	for _, s := range slots {
		if s.Available {
			return true
		}
	}
	return false
}

func (o *Orchestrator) handleSelectingSlot(ctx context.Context, ev models.UserEvent) {
	if ev.Kind != models.EventSelectSlot {
		o.hint()
		return
	}
	if o.sel.Consultant == nil || o.sel.Date == nil {
		o.bot(msgReselectConsultant, nil)
		return
	}

	var slot *models.TimeSlot
	for i := range o.sel.AvailableSlots {
		if o.sel.AvailableSlots[i].ID == ev.SlotID {
			s := o.sel.AvailableSlots[i]
			slot = &s
			break
		}
	}
	if slot == nil || !slot.Available {
		o.bot(msgSlotTaken, slotGridWidget(o.sel.Consultant.ID, *o.sel.Date, o.sel.AvailableSlots))
		return
	}

	o.sel.Slot = slot
	if b := o.sel.BookingBeingModified; b != nil {
		o.reschedule(ctx, b.ID, *o.sel.Date, *slot)
		return
	}
	// already verified and paid, the previous pick was taken meanwhile
	if o.sel.PaymentID != "" {
		if draft, ok := o.draft(); ok {
			o.transition(models.StateProcessingPayment)
			draft.PaymentID = o.sel.PaymentID
			o.createBooking(ctx, draft)
			return
		}
	}

	o.transition(models.StateCollectingContactDetails)
	o.bot(msgAskContact, nil)
}

func (o *Orchestrator) reschedule(ctx context.Context, id string, date time.Time, slot models.TimeSlot) {
	updated, err := o.deps.Store.RescheduleBooking(ctx, id, date, slot)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrBookingNotActive):
		o.bot(msgNoLongerActive, nil)
		o.resetToIdle()
	case errors.Is(err, domain.ErrSlotTaken) && o.sel.Consultant != nil:
		o.transition(models.StateSelectingRescheduleDate)
		o.bot(msgSlotLost, nil)
		o.fetchSlots(ctx, *o.sel.Consultant, date)
	case err != nil:
		o.offerRetry("reschedule_booking", err, msgRescheduleFailed, func(ctx context.Context) {
			o.reschedule(ctx, id, date, slot)
		})
	default:
		o.logger.Info().Str("booking_id", updated.ID).Str("date", updated.DateString()).Msg("Booking rescheduled")
		o.bot(msgRescheduled, successWidget(updated, "Appointment Rescheduled"))
		o.resetToIdle()
	}
}

func (o *Orchestrator) submitContactDetails(ctx context.Context, text string) {
	details, err := ParseContactDetails(text)
	if err != nil {
		o.bot(msgContactFormat, nil)
		return
	}

	if err := o.deps.Verification.SendOTP(ctx, details.Phone); err != nil {
		o.offerRetry("send_otp", err, msgOTPSendFailed, func(ctx context.Context) {
			o.submitContactDetails(ctx, text)
		})
		return
	}

	o.sel.ContactDetails = &details
	o.transition(models.StateVerifyingOtp)
	prompt := fmt.Sprintf(msgOTPSent, details.Phone)
	if o.opts.OTPHint != "" {
		prompt += fmt.Sprintf(msgOTPHint, o.opts.OTPHint)
	}
	o.bot(prompt, nil)
}

func (o *Orchestrator) verifyCode(ctx context.Context, code string) {
	if o.sel.ContactDetails == nil {
		o.failFlow(msgBookingIncomplete)
		return
	}

	ok, err := o.deps.Verification.VerifyOTP(ctx, o.sel.ContactDetails.Phone, code)
	if errors.Is(err, domain.ErrOTPExpired) {
		o.resendCode(ctx)
		return
	}
	if err != nil {
		o.offerRetry("verify_otp", err, msgOTPUnavailable, func(ctx context.Context) {
			o.verifyCode(ctx, code)
		})
		return
	}
	if !ok {
		o.bot(msgOTPInvalid, nil)
		return
	}
	if o.sel.Service == nil {
		o.failFlow(msgBookingIncomplete)
		return
	}

	o.transition(models.StateProcessingPayment)
	o.bot(msgVerified, paymentWidget(*o.sel.Service, o.opts.Currency))
}

// resendCode replaces an expired or lost code with a fresh one.
func (o *Orchestrator) resendCode(ctx context.Context) {
	phone := o.sel.ContactDetails.Phone
	if err := o.deps.Verification.SendOTP(ctx, phone); err != nil {
		o.offerRetry("send_otp", err, msgOTPSendFailed, func(ctx context.Context) {
			o.resendCode(ctx)
		})
		return
	}

	o.logger.Info().Msg("OTP expired, new code sent")
	prompt := fmt.Sprintf(msgOTPExpired, phone)
	if o.opts.OTPHint != "" {
		prompt += fmt.Sprintf(msgOTPHint, o.opts.OTPHint)
	}
	o.bot(prompt, nil)
}

func (o *Orchestrator) draft() (models.BookingDraft, bool) {
	s := o.sel
	if s.Service == nil || s.Consultant == nil || s.Date == nil || s.Slot == nil || s.ContactDetails == nil {
		return models.BookingDraft{}, false
	}
	return models.BookingDraft{
		Service:        *s.Service,
		Consultant:     *s.Consultant,
		Date:           *s.Date,
		Slot:           *s.Slot,
		ContactDetails: *s.ContactDetails,
	}, true
}

// pay charges once per flow. The transaction id lives in the selection
// context, so a booking write that fails after a successful charge, even
// across a restart, is retried without charging again.
func (o *Orchestrator) pay(ctx context.Context, token string) {
	draft, ok := o.draft()
	if !ok {
		o.failFlow(msgBookingIncomplete)
		return
	}

	if o.sel.PaymentID == "" {
		res, err := o.deps.Payment.Charge(ctx, draft.Service.Price, token)
		if err != nil {
			text := msgPaymentError
			if errors.Is(err, domain.ErrPaymentDeclined) {
				text = msgPaymentDeclined
			}
			o.offerRetry("charge", err, text, func(ctx context.Context) {
				o.pay(ctx, token)
			})
			return
		}
		o.sel.PaymentID = res.TransactionID
	}

	draft.PaymentID = o.sel.PaymentID
	o.createBooking(ctx, draft)
}

func (o *Orchestrator) createBooking(ctx context.Context, draft models.BookingDraft) {
	b, err := o.deps.Store.CreateBooking(ctx, draft)
	if errors.Is(err, domain.ErrSlotTaken) {
		o.logger.Warn().Str("slot_id", draft.Slot.ID).Str("payment_id", draft.PaymentID).Msg("Slot taken while paying")
		o.transition(models.StateSelectingDate)
		o.bot(msgSlotLostPaid, nil)
		o.fetchSlots(ctx, draft.Consultant, draft.Date)
		return
	}
	if err != nil {
		o.offerRetry("create_booking", err, msgBookingSaveFailed, func(ctx context.Context) {
			o.createBooking(ctx, draft)
		})
		return
	}

	o.sel.PaymentID = ""
	o.logger.Info().Str("booking_id", b.ID).Str("payment_id", b.PaymentID).Msg("Booking confirmed")
	o.transition(models.StateConfirmed)
	o.bot(msgBookingConfirmed, successWidget(b, "Booking Confirmed"))
	o.scheduleReset()
}

func (o *Orchestrator) handleFindingBooking(ctx context.Context, ev models.UserEvent) {
	switch ev.Kind {
	case models.EventText:
		o.lookupBooking(ctx, strings.ToUpper(strings.TrimSpace(ev.Text)))
	case models.EventChoice:
		b := o.sel.BookingBeingModified
		if o.state != models.StateFindingBookingToCancel || b == nil {
			o.hint()
			return
		}
		switch ev.Choice {
		case models.ChoiceConfirm:
			o.cancelBooking(ctx, b.ID)
		case models.ChoiceKeep:
			o.bot(msgCancelAborted, nil)
			o.resetToIdle()
		default:
			o.hint()
		}
	default:
		o.hint()
	}
}

func (o *Orchestrator) lookupBooking(ctx context.Context, id string) {
	b, err := o.deps.Store.GetBooking(ctx, id)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		o.bot(msgBookingNotFound, nil)
		return
	case err != nil:
		o.offerRetry("get_booking", err, msgLookupFailed, func(ctx context.Context) {
			o.lookupBooking(ctx, id)
		})
		return
	case !b.IsActive():
		o.bot(msgBookingInactive, nil)
		return
	}

	o.sel.BookingBeingModified = b
	if o.state == models.StateFindingBookingToCancel {
		o.bot(msgFoundBooking, cancelConfirmWidget(b))
		return
	}

	svc, cons := b.Service, b.Consultant
	o.sel.Service = &svc
	o.sel.Consultant = &cons
	o.transition(models.StateSelectingRescheduleDate)
	o.bot(fmt.Sprintf(msgReschedulingFor, svc.Name, cons.Name), datePickerWidget(cons.ID, o.deps.Clock(), true))
}

func (o *Orchestrator) cancelBooking(ctx context.Context, id string) {
	_, err := o.deps.Store.CancelBooking(ctx, id)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrBookingNotActive):
		o.bot(msgNoLongerActive, nil)
		o.resetToIdle()
	case err != nil:
		o.offerRetry("cancel_booking", err, msgCancelFailed, func(ctx context.Context) {
			o.cancelBooking(ctx, id)
		})
	default:
		o.logger.Info().Str("booking_id", id).Msg("Booking cancelled")
		o.bot(msgCancelled, nil)
		o.resetToIdle()
	}
}

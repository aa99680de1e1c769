package bot

import (
	"errors"
	"fmt"
	"strings"

	"consultbot/internal/models"
)

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

var errBadCallback = errors.New("bad callback data")

// encodeCallback builds "kind:value" callback data for a button.
func encodeCallback(kind models.EventKind, value string) string {
	data := string(kind) + ":" + value
	if len(data) > maxCallbackData {
		data = data[:maxCallbackData]
	}
	return data
}

func decodeCallback(data string) (models.UserEvent, error) {
	kind, value, ok := strings.Cut(data, ":")
	if !ok || value == "" {
		return models.UserEvent{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}

	switch models.EventKind(kind) {
	case models.EventSelectService:
		return models.ServiceEvent(value), nil
	case models.EventSelectConsultant:
		return models.ConsultantEvent(value), nil
	case models.EventSelectDate:
		d, err := models.ParseDate(value)
		if err != nil {
			return models.UserEvent{}, fmt.Errorf("%w: %v", errBadCallback, err)
		}
		return models.DateEvent(d), nil
	case models.EventSelectSlot:
		return models.SlotEvent(value), nil
	case models.EventChoice:
		switch c := models.Choice(value); c {
		case models.ChoiceAccept, models.ChoiceReject, models.ChoiceConfirm, models.ChoiceKeep:
			return models.ChoiceEvent(c), nil
		}
	case models.EventPay:
		return models.PayEvent(value), nil
	case models.EventRetry:
		return models.RetryEvent(value), nil
	}
	return models.UserEvent{}, fmt.Errorf("%w: %q", errBadCallback, data)
}

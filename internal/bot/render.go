package bot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"consultbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// токен карты для кнопки оплаты в Telegram
	paymentToken = "tok_telegram"

	datesPerRow = 3
	slotsPerRow = 3
)

// renderMessage turns a bot message into a Telegram message with the keyboard
// its widget asks for.
func renderMessage(chatID int64, m models.Message) tgbotapi.MessageConfig {
	text := m.Text
	var markup interface{}

	if w := m.Widget; w != nil {
		switch w.Kind {
		case models.WidgetServiceList:
			if p, ok := payloadAs[models.ServiceListPayload](w.Payload); ok {
				markup = serviceKeyboard(p)
			}
		case models.WidgetConsultantList:
			if p, ok := payloadAs[models.ConsultantListPayload](w.Payload); ok {
				markup = consultantKeyboard(p)
			}
		case models.WidgetDatePicker:
			if p, ok := payloadAs[models.DatePickerPayload](w.Payload); ok {
				markup = dateKeyboard(p)
			}
		case models.WidgetSlotGrid:
			if p, ok := payloadAs[models.SlotGridPayload](w.Payload); ok {
				markup = slotKeyboard(p)
			}
		case models.WidgetPaymentForm:
			if p, ok := payloadAs[models.PaymentFormPayload](w.Payload); ok {
				markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(
						fmt.Sprintf("💳 Pay %s", formatPrice(p.Amount, p.Currency)),
						encodeCallback(models.EventPay, paymentToken),
					),
				))
			}
		case models.WidgetRetry:
			if p, ok := payloadAs[models.RetryPayload](w.Payload); ok {
				label := p.Label
				if label == "" {
					label = "Retry"
				}
				markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🔄 "+label, encodeCallback(models.EventRetry, p.RetryID)),
				))
			}
		case models.WidgetConfirmChoice:
			if p, ok := payloadAs[models.ConfirmChoicePayload](w.Payload); ok {
				markup = choiceKeyboard(p)
			}
		case models.WidgetSuggestionChips:
			if p, ok := payloadAs[models.ChipsPayload](w.Payload); ok && len(p.Options) > 0 {
				markup = chipsKeyboard(p)
			}
		case models.WidgetSuccessCard:
			if p, ok := payloadAs[models.SuccessCardPayload](w.Payload); ok {
				text = joinLines(text, formatBookingCard(p.Title, &p.Booking))
			}
		}
	}

	if text == "" {
		text = "…"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	return msg
}

// payloadAs returns the widget payload as T. Payloads restored from a
// snapshot arrive as generic JSON values and are converted.
func payloadAs[T any](payload interface{}) (T, bool) {
	var out T
	switch p := payload.(type) {
	case T:
		return p, true
	case *T:
		if p == nil {
			return out, false
		}
		return *p, true
	case nil:
		return out, false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func serviceKeyboard(p models.ServiceListPayload) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Services))
	for _, s := range p.Services {
		label := strings.TrimSpace(fmt.Sprintf("%s %s · %s", s.Icon, s.Name, formatPrice(s.Price, "")))
		if s.ID == p.Recommended {
			label = "⭐ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, encodeCallback(models.EventSelectService, s.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func consultantKeyboard(p models.ConsultantListPayload) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Consultants))
	for _, c := range p.Consultants {
		label := c.Name
		if c.Specialty != "" {
			label += " · " + c.Specialty
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, encodeCallback(models.EventSelectConsultant, c.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func dateKeyboard(p models.DatePickerPayload) tgbotapi.InlineKeyboardMarkup {
	days := p.Days
	if days <= 0 {
		days = models.DatePickerDays
	}
	from := models.NormalizeDate(p.From)

	buttons := make([]tgbotapi.InlineKeyboardButton, 0, days)
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			d.Format("Mon, Jan 2"),
			encodeCallback(models.EventSelectDate, d.Format(models.DateLayout)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(chunkButtons(buttons, datesPerRow)...)
}

// slotKeyboard lists only bookable slots.
func slotKeyboard(p models.SlotGridPayload) interface{} {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(p.Slots))
	for _, s := range p.Slots {
		if !s.Available {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			"🕒 "+s.Time,
			encodeCallback(models.EventSelectSlot, s.ID),
		))
	}
	if len(buttons) == 0 {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(chunkButtons(buttons, slotsPerRow)...)
}

func choiceKeyboard(p models.ConfirmChoicePayload) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(p.Options))
	for _, o := range p.Options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, encodeCallback(models.EventChoice, string(o.Choice))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func chipsKeyboard(p models.ChipsPayload) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(p.Options))
	for _, o := range p.Options {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(o)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func chunkButtons(buttons []tgbotapi.InlineKeyboardButton, size int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > 0 {
		n := size
		if n > len(buttons) {
			n = len(buttons)
		}
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	return rows
}

func formatPrice(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func formatBookingCard(title string, b *models.Booking) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("✅ " + title + "\n")
	}
	fmt.Fprintf(&sb, "🆔 %s\n", b.ID)
	fmt.Fprintf(&sb, "📋 %s\n", b.Service.Name)
	fmt.Fprintf(&sb, "👤 %s\n", b.Consultant.Name)
	fmt.Fprintf(&sb, "📅 %s %s\n", b.Date.Format(time.DateOnly), b.Slot.Time)
	if b.ContactDetails.Email != "" {
		fmt.Fprintf(&sb, "✉️ %s\n", b.ContactDetails.Email)
	}
	fmt.Fprintf(&sb, "Status: %s", b.Status)
	return sb.String()
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}

package bot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"consultbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCallback(t *testing.T) {
	date := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		data    string
		want    models.UserEvent
		wantErr bool
	}{
		{data: "select_service:legal", want: models.ServiceEvent("legal")},
		{data: "select_consultant:c2", want: models.ConsultantEvent("c2")},
		{data: "select_date:2026-03-09", want: models.DateEvent(date)},
		{data: "select_slot:s3", want: models.SlotEvent("s3")},
		{data: "choice:keep", want: models.ChoiceEvent(models.ChoiceKeep)},
		{data: "pay:tok_telegram", want: models.PayEvent("tok_telegram")},
		{data: "retry:r4", want: models.RetryEvent("r4")},
		{data: "choice:maybe", wantErr: true},
		{data: "select_date:09.03.2026", wantErr: true},
		{data: "select_slot:", wantErr: true},
		{data: "text:hello", wantErr: true},
		{data: "nocolon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := decodeCallback(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeCallbackLimit(t *testing.T) {
	assert.Equal(t, "select_slot:s1", encodeCallback(models.EventSelectSlot, "s1"))

	long := encodeCallback(models.EventSelectService, strings.Repeat("x", 100))
	assert.Len(t, long, maxCallbackData)
}

func TestRenderServiceList(t *testing.T) {
	msg := renderMessage(1, models.Message{
		Sender: models.SenderBot,
		Text:   "Please select a service category:",
		Widget: &models.WidgetIntent{
			Kind:   models.WidgetServiceList,
			Action: models.EventSelectService,
			Payload: models.ServiceListPayload{
				Services: []models.Service{
					{ID: "financial", Name: "Financial Advisory", Price: 150},
					{ID: "legal", Name: "Legal Consultation", Price: 200},
				},
				Recommended: "legal",
			},
		},
	})

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "select_service:financial", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Contains(t, kb.InlineKeyboard[0][0].Text, "$150.00")
	assert.True(t, strings.HasPrefix(kb.InlineKeyboard[1][0].Text, "⭐"))
}

func TestRenderDatePickerRows(t *testing.T) {
	msg := renderMessage(1, models.Message{
		Text: "When would you like to meet?",
		Widget: &models.WidgetIntent{
			Kind:    models.WidgetDatePicker,
			Payload: models.DatePickerPayload{ConsultantID: "c1", From: testNow, Days: 14},
		},
	})

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, kb.InlineKeyboard, 5)
	assert.Len(t, kb.InlineKeyboard[4], 2)
	assert.Equal(t, "Wed, Mar 4", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "select_date:2026-03-17", *kb.InlineKeyboard[4][1].CallbackData)
}

func TestRenderSlotGridSkipsTaken(t *testing.T) {
	msg := renderMessage(1, models.Message{
		Text: "Available slots",
		Widget: &models.WidgetIntent{
			Kind: models.WidgetSlotGrid,
			Payload: models.SlotGridPayload{Slots: []models.TimeSlot{
				{ID: "s1", Time: "09:00", Available: false},
				{ID: "s2", Time: "10:00", Available: true},
			}},
		},
	})
	assert.Equal(t, []string{"select_slot:s2"}, inlineData(t, msg))

	none := renderMessage(1, models.Message{
		Text: "Available slots",
		Widget: &models.WidgetIntent{
			Kind:    models.WidgetSlotGrid,
			Payload: models.SlotGridPayload{Slots: []models.TimeSlot{{ID: "s1", Time: "09:00"}}},
		},
	})
	_, ok := none.ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	assert.True(t, ok)
}

func TestRenderPaymentAndRetry(t *testing.T) {
	pay := renderMessage(1, models.Message{
		Text: "Verification successful.",
		Widget: &models.WidgetIntent{
			Kind:    models.WidgetPaymentForm,
			Payload: models.PaymentFormPayload{ServiceName: "Legal", Amount: 200, Currency: "USD"},
		},
	})
	assert.Equal(t, []string{"pay:" + paymentToken}, inlineData(t, pay))

	retry := renderMessage(1, models.Message{
		Text:   "Failed to retrieve time slots.",
		Widget: &models.WidgetIntent{Kind: models.WidgetRetry, Payload: models.RetryPayload{RetryID: "r1"}},
	})
	kb := retry.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "🔄 Retry", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "retry:r1", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestRenderSuccessCard(t *testing.T) {
	b := models.Booking{
		ID:         "BK-1001",
		Service:    models.Service{Name: "Legal Consultation"},
		Consultant: models.Consultant{Name: "Robert Smith"},
		Date:       time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC),
		Slot:       models.TimeSlot{ID: "s2", Time: "10:00"},
		Status:     models.BookingConfirmed,
	}
	msg := renderMessage(1, models.Message{
		Widget: &models.WidgetIntent{Kind: models.WidgetSuccessCard, Payload: models.SuccessCardPayload{Booking: b, Title: "Booking Confirmed"}},
	})

	assert.Contains(t, msg.Text, "✅ Booking Confirmed")
	assert.Contains(t, msg.Text, "BK-1001")
	assert.Contains(t, msg.Text, "2026-03-09 10:00")
	assert.Contains(t, msg.Text, "CONFIRMED")
}

// Payloads of restored conversations come back from JSON as plain maps.
func TestRenderRestoredPayload(t *testing.T) {
	raw, err := json.Marshal(models.Message{
		Text: "Yes?",
		Widget: &models.WidgetIntent{
			Kind: models.WidgetConfirmChoice,
			Payload: models.ConfirmChoicePayload{Options: []models.ChoiceOption{
				{Label: "Yes, Cancel It", Choice: models.ChoiceConfirm},
				{Label: "Keep It", Choice: models.ChoiceKeep},
			}},
		},
	})
	require.NoError(t, err)

	var restored models.Message
	require.NoError(t, json.Unmarshal(raw, &restored))
	_, isMap := restored.Widget.Payload.(map[string]interface{})
	require.True(t, isMap)

	msg := renderMessage(1, restored)
	assert.Equal(t, []string{"choice:confirm", "choice:keep"}, inlineData(t, msg))
}

func TestRenderPlainText(t *testing.T) {
	msg := renderMessage(1, models.Message{Text: "Checking availability..."})
	assert.Equal(t, "Checking availability...", msg.Text)
	_, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	assert.True(t, ok)
}

func TestChunkButtons(t *testing.T) {
	buttons := make([]tgbotapi.InlineKeyboardButton, 7)
	rows := chunkButtons(buttons, 3)
	require.Len(t, rows, 3)
	assert.Len(t, rows[2], 1)
	assert.Empty(t, chunkButtons(nil, 3))
}

package service

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockTelegramSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockTelegramSender) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	args := m.Called(config)
	return args.Get(0).(tgbotapi.UpdatesChannel)
}

func (m *mockTelegramSender) GetSelf() tgbotapi.User {
	args := m.Called()
	return args.Get(0).(tgbotapi.User)
}

func (m *mockTelegramSender) StopReceivingUpdates() {
	m.Called()
}

func inlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", "retry:r1"),
	))
}

func TestTelegramService(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender)

	t.Run("SendReply", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			_, hasKeyboard := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
			return ok && msg.Text == "Failed to retrieve time slots." && msg.ChatID == 123 && hasKeyboard
		})).Return(tgbotapi.Message{}, nil).Once()

		msg := tgbotapi.NewMessage(123, "Failed to retrieve time slots.")
		msg.ReplyMarkup = inlineKeyboard()
		assert.NoError(t, svc.SendReply(msg))
		mockSender.AssertExpectations(t)
	})

	t.Run("SendText", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello" && msg.ReplyMarkup == nil
		})).Return(tgbotapi.Message{}, errors.New("chat not found")).Once()

		err := svc.SendText(123, "hello")
		assert.ErrorContains(t, err, "chat not found")
		mockSender.AssertExpectations(t)
	})

	t.Run("SendTyping", func(t *testing.T) {
		mockSender.On("Request", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			action, ok := c.(tgbotapi.ChatActionConfig)
			return ok && action.Action == tgbotapi.ChatTyping && action.ChatID == 123
		})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

		assert.NoError(t, svc.SendTyping(123))
		mockSender.AssertExpectations(t)
	})

	t.Run("AnswerCallback", func(t *testing.T) {
		mockSender.On("Request", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			_, ok := c.(tgbotapi.CallbackConfig)
			return ok
		})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

		err := svc.AnswerCallback("cb123", "ok")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})
}

func TestSendReplySplitsLongText(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender)

	var sent []tgbotapi.MessageConfig
	mockSender.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		sent = append(sent, args.Get(0).(tgbotapi.MessageConfig))
	}).Return(tgbotapi.Message{}, nil)

	line := strings.Repeat("ж", 99) + "\n"
	msg := tgbotapi.NewMessage(5, strings.Repeat(line, 90))
	msg.ReplyMarkup = inlineKeyboard()
	require.NoError(t, svc.SendReply(msg))

	require.Len(t, sent, 3)
	for i, m := range sent {
		assert.LessOrEqual(t, utf8.RuneCountInString(m.Text), maxMessageRunes)
		_, hasKeyboard := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		assert.Equal(t, i == len(sent)-1, hasKeyboard)
	}
	assert.True(t, strings.HasSuffix(sent[0].Text, "ж"), "split on a line break")
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{""}, splitText("", 10))
	assert.Equal(t, []string{"short"}, splitText("short", 10))
	assert.Equal(t, []string{"abcdefghij", "klm"}, splitText("abcdefghijklm", 10))
	assert.Equal(t, []string{"abcdefg", "hij"}, splitText("abcdefg\nhij", 10))
}

package bot

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"consultbot/internal/classifier"
	"consultbot/internal/config"
	"consultbot/internal/conversation"
	"consultbot/internal/models"
	"consultbot/internal/payment"
	"consultbot/internal/scheduling"
	"consultbot/internal/store"
	"consultbot/internal/verification"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var testNow = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

type mockTelegramService struct {
	mu           sync.Mutex
	updatesChan  chan tgbotapi.Update
	sentMessages []tgbotapi.Chattable
	answered     []string
	typing       []int64
	stopped      bool
}

func (m *mockTelegramService) SendReply(msg tgbotapi.MessageConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, msg)
	return nil
}

func (m *mockTelegramService) SendText(chatID int64, text string) error {
	return m.SendReply(tgbotapi.NewMessage(chatID, text))
}

func (m *mockTelegramService) SendTyping(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, chatID)
	return nil
}

func (m *mockTelegramService) AnswerCallback(callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *mockTelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "test_bot"}
}

func (m *mockTelegramService) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockTelegramService) messages() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range m.sentMessages {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockTelegramService) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = nil
}

type mockLimiter struct {
	allow bool
	keys  []string
}

func (m *mockLimiter) AllowMessage(ctx context.Context, conversationID string) bool {
	m.keys = append(m.keys, conversationID)
	return m.allow
}

type failingConversations struct {
	err error
}

func (f failingConversations) Get(ctx context.Context, id string) (*conversation.Orchestrator, error) {
	return nil, f.err
}

func (f failingConversations) Exchange(ctx context.Context, id string, ev models.UserEvent) (*conversation.Orchestrator, []models.Message, error) {
	return nil, nil, f.err
}

func setupTestBot(t *testing.T) (*Bot, *mockTelegramService, *mockLimiter) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	catalog := models.Catalog{Services: config.DefaultServices(), Consultants: config.DefaultConsultants()}

	mem := store.NewMemoryStore()
	sched, err := scheduling.NewService(config.SchedulingConfig{
		ClosedWeekdays: []string{"Saturday", "Sunday"},
		Seed:           1,
	}, mem, &logger)
	require.NoError(t, err)

	manager := conversation.NewManager(context.Background(), conversation.Deps{
		Store:        mem,
		Scheduling:   sched,
		Verification: verification.NewService(config.VerificationConfig{FixedCode: models.FixedOTPCode}, verification.NewMemoryCodeStore(), verification.NewLogSender(&logger), &logger),
		Payment:      payment.NewGateway(config.PaymentConfig{DeclineToken: "fail", Currency: "USD"}, &logger),
		Classifier:   classifier.NewKeywordClassifier(catalog),
		Catalog:      catalog,
		Logger:       &logger,
		Clock:        func() time.Time { return testNow },
	}, conversation.Options{QuiescenceInterval: time.Minute})
	t.Cleanup(manager.Shutdown)

	tg := &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 4)}
	limiter := &mockLimiter{allow: true}
	b, err := NewBot(tg, manager, limiter, catalog, NewMetrics(prometheus.NewRegistry()), &logger)
	require.NoError(t, err)
	return b, tg, limiter
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func lastMessage(t *testing.T, tg *mockTelegramService) tgbotapi.MessageConfig {
	t.Helper()
	msgs := tg.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func inlineData(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard, got %T", msg.ReplyMarkup)
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			out = append(out, *btn.CallbackData)
		}
	}
	return out
}

func TestNewBotValidation(t *testing.T) {
	_, err := NewBot(nil, failingConversations{}, nil, models.Catalog{}, nil, nil)
	assert.Error(t, err)

	b, err := NewBot(&mockTelegramService{}, failingConversations{}, nil, models.Catalog{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, b.logger)
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, "tg-42", ConversationID(42))
	assert.Equal(t, "tg--100123", ConversationID(-100123))
}

func TestStartCommandGreets(t *testing.T) {
	b, tg, _ := setupTestBot(t)

	b.processUpdate(context.Background(), textUpdate(7, "/start"))

	msg := lastMessage(t, tg)
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Contains(t, msg.Text, "Consultancy Deep Fox")
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.OneTimeKeyboard)
	assert.NotEmpty(t, kb.Keyboard)

	// повторный /start показывает последнее сообщение, а не дублирует приветствие
	tg.clear()
	b.processUpdate(context.Background(), textUpdate(7, "/start"))
	assert.Len(t, tg.messages(), 1)
}

func TestBookingFlowThroughButtons(t *testing.T) {
	b, tg, limiter := setupTestBot(t)
	ctx := context.Background()
	const chat = int64(99)

	b.processUpdate(ctx, textUpdate(chat, "I need help with my taxes"))
	assert.Equal(t, []string{"choice:accept", "choice:reject"}, inlineData(t, lastMessage(t, tg)))

	b.processUpdate(ctx, callbackUpdate(chat, "choice:accept"))
	assert.Equal(t, []string{"select_consultant:c1"}, inlineData(t, lastMessage(t, tg)))

	b.processUpdate(ctx, callbackUpdate(chat, "select_consultant:c1"))
	dates := inlineData(t, lastMessage(t, tg))
	require.Len(t, dates, models.DatePickerDays)
	assert.Equal(t, "select_date:2026-03-04", dates[0])

	tg.clear()
	b.processUpdate(ctx, callbackUpdate(chat, "select_date:2026-03-09"))
	msgs := tg.messages()
	require.NotEmpty(t, msgs)
	slots := inlineData(t, msgs[len(msgs)-1])
	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.Contains(t, s, "select_slot:")
	}

	tg.mu.Lock()
	assert.Contains(t, tg.answered, "cb-select_date:2026-03-09")
	assert.Contains(t, tg.typing, chat)
	tg.mu.Unlock()
	for _, k := range limiter.keys {
		assert.Equal(t, "tg-99", k)
	}
}

func TestCancelCommand(t *testing.T) {
	b, tg, _ := setupTestBot(t)
	ctx := context.Background()

	b.processUpdate(ctx, textUpdate(5, "I want to cancel my booking"))
	assert.Contains(t, lastMessage(t, tg).Text, "Booking ID")

	b.processUpdate(ctx, textUpdate(5, "/cancel"))
	msg := lastMessage(t, tg)
	_, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, ok, "cancel offers restart chips")
}

func TestRateLimitedUpdate(t *testing.T) {
	b, tg, limiter := setupTestBot(t)
	limiter.allow = false

	b.processUpdate(context.Background(), textUpdate(3, "hello"))
	assert.Equal(t, msgRateLimited, lastMessage(t, tg).Text)

	b.processUpdate(context.Background(), callbackUpdate(3, "choice:accept"))
	tg.mu.Lock()
	defer tg.mu.Unlock()
	assert.Contains(t, tg.answered, "cb-choice:accept")
	assert.Len(t, tg.sentMessages, 1)
	assert.Empty(t, tg.typing)
}

func TestUnknownCallbackIgnored(t *testing.T) {
	b, tg, _ := setupTestBot(t)

	b.processUpdate(context.Background(), callbackUpdate(4, "bogus"))
	assert.Empty(t, tg.messages())
}

func TestExchangeErrorReported(t *testing.T) {
	tg := &mockTelegramService{}
	logger := zerolog.New(io.Discard)
	metrics := NewMetrics(prometheus.NewRegistry())
	b, err := NewBot(tg, failingConversations{err: conversation.ErrClosed}, nil, models.Catalog{}, metrics, &logger)
	require.NoError(t, err)

	b.processUpdate(context.Background(), textUpdate(8, "hi"))
	assert.Equal(t, errorMessage(conversation.ErrClosed), lastMessage(t, tg).Text)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ErrorsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MessagesProcessed))
}

func TestProcessUpdateIgnoresEmpty(t *testing.T) {
	b, tg, _ := setupTestBot(t)
	b.processUpdate(context.Background(), tgbotapi.Update{})
	assert.Empty(t, tg.messages())
}

func TestWithRecovery(t *testing.T) {
	b, _, _ := setupTestBot(t)
	assert.NotPanics(t, func() {
		b.withRecovery(func() { panic("boom") })
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.ErrorsTotal))
}

func TestBotStartStop(t *testing.T) {
	b, tg, _ := setupTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	tg.updatesChan <- textUpdate(11, "/start")
	require.Eventually(t, func() bool { return len(tg.messages()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}

	b.Stop()
	assert.True(t, tg.stopped)
}

func TestErrorMessage(t *testing.T) {
	assert.Empty(t, errorMessage(nil))
	assert.Contains(t, errorMessage(conversation.ErrInvalidEvent), "no longer valid")
	assert.Contains(t, errorMessage(context.DeadlineExceeded), "too long")
	assert.Contains(t, errorMessage(errors.New("x")), "Something went wrong")
}

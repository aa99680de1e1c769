package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"consultbot/internal/conversation"
	"consultbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	conversationPrefix = "tg-"
	updateTimeout      = 30 * time.Second
	commandStart       = "start"
	commandCancel      = "cancel"
)

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	SendReply(msg tgbotapi.MessageConfig) error
	SendText(chatID int64, text string) error
	SendTyping(chatID int64) error
	AnswerCallback(callbackID, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type Conversations interface {
	Get(ctx context.Context, id string) (*conversation.Orchestrator, error)
	Exchange(ctx context.Context, id string, ev models.UserEvent) (*conversation.Orchestrator, []models.Message, error)
}

type RateLimiter interface {
	AllowMessage(ctx context.Context, conversationID string) bool
}

type Bot struct {
	tg            Sender
	conversations Conversations
	limiter       RateLimiter
	catalog       models.Catalog
	metrics       *Metrics
	logger        *zerolog.Logger
}

func NewBot(
	tg Sender,
	conversations Conversations,
	limiter RateLimiter,
	catalog models.Catalog,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil || conversations == nil {
		return nil, fmt.Errorf("bot: sender and conversations are required")
	}
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tg:            tg,
		conversations: conversations,
		limiter:       limiter,
		catalog:       catalog,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// ConversationID maps a Telegram chat to its conversation.
func ConversationID(chatID int64) string {
	return fmt.Sprintf("%s%d", conversationPrefix, chatID)
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID := updateChatID(update)
		if chatID == 0 {
			return
		}

		if b.limiter != nil && !b.limiter.AllowMessage(updateCtx, ConversationID(chatID)) {
			l.Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
			if update.CallbackQuery != nil {
				_ = b.tg.AnswerCallback(update.CallbackQuery.ID, msgRateLimited)
				return
			}
			b.sendText(chatID, msgRateLimited)
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		b.handleMessage(updateCtx, update.Message)
	})
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	}
	return 0
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if b.metrics != nil {
		b.metrics.MessagesProcessed.Inc()
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case commandStart:
			b.greet(ctx, chatID)
			return
		case commandCancel:
			b.exchange(ctx, chatID, models.TextEvent(models.CancelCommand))
			return
		}
	}

	text := strings.TrimSpace(msg.Text)
	if msg.Contact != nil && text == "" {
		text = msg.Contact.PhoneNumber
	}
	if text == "" {
		b.sendText(chatID, msgTextOnly)
		return
	}
	b.exchange(ctx, chatID, models.TextEvent(text))
}

func (b *Bot) handleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if b.metrics != nil {
		b.metrics.CallbacksProcessed.Inc()
	}
	// убираем "часики" на кнопке
	if err := b.tg.AnswerCallback(cb.ID, ""); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}

	ev, err := decodeCallback(cb.Data)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("data", cb.Data).Msg("Unknown callback data")
		return
	}
	b.exchange(ctx, cb.Message.Chat.ID, ev)
}

// greet makes sure the conversation exists and shows its latest prompt.
func (b *Bot) greet(ctx context.Context, chatID int64) {
	o, err := b.conversations.Get(ctx, ConversationID(chatID))
	if err == nil {
		err = o.Greet(ctx)
	}
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	msgs := o.Timeline().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == models.SenderBot {
			b.render(ctx, chatID, msgs[i])
			return
		}
	}
}

func (b *Bot) exchange(ctx context.Context, chatID int64, ev models.UserEvent) {
	if err := b.tg.SendTyping(chatID); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Int64("chat_id", chatID).Msg("Typing status not sent")
	}
	_, msgs, err := b.conversations.Exchange(ctx, ConversationID(chatID), ev)
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	for _, m := range msgs {
		if m.Sender != models.SenderBot {
			continue
		}
		b.render(ctx, chatID, m)
	}
}

func (b *Bot) render(ctx context.Context, chatID int64, m models.Message) {
	if err := b.tg.SendReply(renderMessage(chatID, m)); err != nil {
		if b.metrics != nil {
			b.metrics.ErrorsTotal.Inc()
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Str("message_id", m.ID).Msg("Failed to send message")
	}
}

func (b *Bot) reportError(ctx context.Context, chatID int64, err error) {
	if b.metrics != nil {
		b.metrics.ErrorsTotal.Inc()
	}
	zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Conversation exchange failed")
	b.sendText(chatID, errorMessage(err))
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.tg.SendText(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

package service

import (
	"fmt"

	"consultbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageRunes is Telegram's limit for the text of one message.
const maxMessageRunes = 4096

// TelegramService delivers rendered conversation replies to Telegram.
type TelegramService struct {
	bot domain.TelegramSender
}

func NewTelegramService(bot domain.TelegramSender) *TelegramService {
	return &TelegramService{
		bot: bot,
	}
}

// SendReply sends a rendered reply. Text over the Telegram limit goes out as
// several messages; only the last one carries the keyboard.
func (s *TelegramService) SendReply(msg tgbotapi.MessageConfig) error {
	parts := splitText(msg.Text, maxMessageRunes)
	for _, part := range parts[:len(parts)-1] {
		head := tgbotapi.NewMessage(msg.ChatID, part)
		head.ParseMode = msg.ParseMode
		if _, err := s.bot.Send(head); err != nil {
			return fmt.Errorf("send message to %d: %w", msg.ChatID, err)
		}
	}

	msg.Text = parts[len(parts)-1]
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", msg.ChatID, err)
	}
	return nil
}

func (s *TelegramService) SendText(chatID int64, text string) error {
	return s.SendReply(tgbotapi.NewMessage(chatID, text))
}

// SendTyping shows the "typing..." status while a reply is being prepared.
func (s *TelegramService) SendTyping(chatID int64) error {
	_, err := s.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := s.bot.Request(callback)
	return err
}

func (s *TelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.bot.GetUpdatesChan(config)
}

func (s *TelegramService) GetSelf() tgbotapi.User {
	return s.bot.GetSelf()
}

func (s *TelegramService) StopReceivingUpdates() {
	s.bot.StopReceivingUpdates()
}

// splitText cuts text into pieces of at most limit runes, preferring a line
// break in the second half of each piece. It always returns at least one piece.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
		if len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

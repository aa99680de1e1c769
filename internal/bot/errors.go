package bot

import (
	"context"
	"errors"

	"consultbot/internal/conversation"
)

const (
	msgRateLimited = "⚠️ You are sending messages too fast. Please wait a moment."
	msgTextOnly    = "Please send a text message or use the buttons."
)

func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, conversation.ErrInvalidEvent):
		return "⚠️ That button is no longer valid. Send /start to see where we are."
	case errors.Is(err, conversation.ErrClosed):
		return "⚠️ The assistant is restarting. Please try again in a minute."
	case errors.Is(err, context.DeadlineExceeded):
		return "⚠️ That took too long. Please try again."
	}
	return "❌ Something went wrong while handling your request. Please try again later."
}

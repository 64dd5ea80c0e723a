package monitor

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSink delivers alerts to a single chat.
type TelegramSink struct {
	sender messageSender
	chatID int64
}

// NewTelegramSink builds a sink for token/chatID. The bot's identity is not
// checked at startup; a bad token surfaces on the first Send.
func NewTelegramSink(token string, chatID int64, opts ...bot.Option) (*TelegramSink, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram: chat id required")
	}
	b, err := bot.New(token, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramSink{sender: b, chatID: chatID}, nil
}

func (s *TelegramSink) Send(ctx context.Context, message string) error {
	_, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

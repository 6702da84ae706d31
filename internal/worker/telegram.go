package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"classbook/internal/config"
	"classbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts admin alerts to a chat.
type TelegramSender struct {
	bot         *tgbotapi.BotAPI
	defaultChat int64
}

func NewTelegramSender(cfg config.TelegramConfig) (*TelegramSender, error) {
	return newTelegramSender(cfg, tgbotapi.APIEndpoint)
}

func newTelegramSender(cfg config.TelegramConfig, endpoint string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return &TelegramSender{bot: bot, defaultChat: cfg.ChatID}, nil
}

func (s *TelegramSender) Send(ctx context.Context, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID := s.defaultChat
	if n.Recipient != "" {
		id, err := strconv.ParseInt(n.Recipient, 10, 64)
		if err != nil {
			return Permanent(fmt.Errorf("invalid telegram chat id %q", n.Recipient))
		}
		chatID = id
	}
	if chatID == 0 {
		return Permanent(errors.New("telegram chat id is not configured"))
	}

	text := n.Body
	if n.Subject != "" {
		text = n.Subject + "\n\n" + n.Body
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

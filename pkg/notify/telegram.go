package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// TelegramConfig holds bot token and chat ID for Telegram delivery.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
	// RatePerMinute limits outgoing messages; zero means 20 per minute.
	RatePerMinute int
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) error
}

type botSender struct {
	b *bot.Bot
}

func (s botSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) error {
	_, err := s.b.SendMessage(ctx, params)
	return err
}

// Telegram sends notifications to a chat through the Telegram Bot API
type Telegram struct {
	chatID  int64
	sender  messageSender
	limiter *rate.Limiter
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing bot token in Telegram configuration")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("missing chat ID in Telegram configuration")
	}
	b, err := bot.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(cfg, botSender{b: b}), nil
}

func newTelegram(cfg TelegramConfig, sender messageSender) *Telegram {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &Telegram{
		chatID:  cfg.ChatID,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   telegramText(n),
	}
	if err := t.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
	}
	return nil
}

func telegramText(n Notification) string {
	b := new(strings.Builder)
	b.WriteString(n.Title)
	b.WriteString("\n")
	for _, line := range n.Lines() {
		b.WriteString("\n")
		b.WriteString(line)
	}
	if !n.Time.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(n.Time.UTC().Format(time.RFC3339))
	}
	return b.String()
}

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// TelegramNotifierConfig configures the operator alert bot.
type TelegramNotifierConfig struct {
	Token       string
	ChatIDs     []string // operator chat ids as strings
	APIEndpoint string   // defaults to tgbotapi.APIEndpoint
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// TelegramNotifier posts operator alerts (handoff requests, new quotes) to
// one or more Telegram chats. It implements domain.Notifier.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	logger  *slog.Logger
}

// NewTelegramNotifier connects to the Bot API and validates the chat ids.
func NewTelegramNotifier(cfg TelegramNotifierConfig) (*TelegramNotifier, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var chats []int64
	for _, s := range cfg.ChatIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", s, err)
		}
		chats = append(chats, id)
	}
	if len(chats) == 0 {
		return nil, errors.New("telegram notifier needs at least one chat id")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram notifier connected", "username", bot.Self.UserName, "chats", len(chats))

	return &TelegramNotifier{bot: bot, chatIDs: chats, logger: cfg.Logger}, nil
}

// Notify sends text to every configured chat. Long texts are split.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range t.chatIDs {
		for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
				errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// line breaks in the second half of a chunk.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = strings.TrimPrefix(text[cutAt:], "\n")
	}
	return chunks
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

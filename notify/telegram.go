package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender delivers messages through the Telegram Bot API. In mock mode
// (local development without a token) it logs instead of sending, the same
// way the service mocks its transport when credentials are absent.
type TelegramSender struct {
	bot    *tele.Bot
	logger *slog.Logger
	mock   bool
}

// NewTelegramSender creates a Telegram transport. bot may be nil when mock is true.
func NewTelegramSender(bot *tele.Bot, mock bool, logger *slog.Logger) *TelegramSender {
	return &TelegramSender{bot: bot, logger: logger, mock: mock}
}

// Send delivers one message to one chat. The call is bounded by the bot's
// HTTP client timeout; a cancelled context short-circuits before sending.
func (t *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.mock {
		t.logger.Info("MOCK TELEGRAM MESSAGE", "chat_id", chatID, "length", len(text))
		return nil
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	_, err = t.bot.Send(tele.ChatID(id), text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("send to chat %s: %w", chatID, err)
	}
	return nil
}

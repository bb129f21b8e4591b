// Package bot implements the Telegram command loop for managing alert
// subscriptions. Commands and replies keep the Spanish surface the bot's
// users already know.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tmpmurcia-notifier/subscription"
)

// handlerTimeout bounds the storage work done for a single command.
const handlerTimeout = 15 * time.Second

// Subscriptions is the subscription surface the command set mutates.
type Subscriptions interface {
	Subscribe(ctx context.Context, chatID, line string) (bool, error)
	Unsubscribe(ctx context.Context, chatID, line string) (bool, error)
	Lines(ctx context.Context, chatID string) ([]string, error)
	ReceiveGeneral(ctx context.Context, chatID string) (bool, error)
	SetReceiveGeneral(ctx context.Context, chatID string, on bool) error
	Stats(ctx context.Context) (*subscription.Stats, error)
}

// Bot routes Telegram commands to subscription operations.
type Bot struct {
	tb     *tele.Bot
	subs   Subscriptions
	logger *slog.Logger
}

// New creates the command router on an already-constructed telebot instance.
func New(tb *tele.Bot, subs Subscriptions, logger *slog.Logger) *Bot {
	b := &Bot{tb: tb, subs: subs, logger: logger}
	b.register()
	return b
}

// Start runs the underlying poller until Stop is called. Blocks.
func (b *Bot) Start() {
	b.tb.Start()
}

// Stop shuts the poller down.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) register() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/suscribir", b.handleSubscribe)
	b.tb.Handle("/desuscribir", b.handleUnsubscribe)
	b.tb.Handle("/mis_lineas", b.handleMyLines)
	b.tb.Handle("/mislineas", b.handleMyLines)
	b.tb.Handle("/alertas_generales", b.handleGeneralAlerts)
	b.tb.Handle("/alertasgenerales", b.handleGeneralAlerts)
	b.tb.Handle("/ayuda", b.handleHelp)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/stats", b.handleStats)
	b.tb.Handle(tele.OnText, b.handleUnknown)
}

func (b *Bot) reply(c tele.Context, text string) error {
	return c.Send(text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
}

func chatID(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

func (b *Bot) handleStart(c tele.Context) error {
	name := "Usuario"
	if c.Sender() != nil && c.Sender().FirstName != "" {
		name = c.Sender().FirstName
	}
	b.logger.Info("Command received", "command", "/start", "chat_id", chatID(c))
	return b.reply(c, welcomeText(name))
}

func (b *Bot) handleSubscribe(c tele.Context) error {
	line := strings.TrimSpace(c.Message().Payload)
	b.logger.Info("Command received", "command", "/suscribir", "chat_id", chatID(c), "line", line)
	if line == "" {
		return b.reply(c, usageSubscribe)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	added, err := b.subs.Subscribe(ctx, chatID(c), line)
	if err != nil {
		b.logger.Error("Subscribe failed", "chat_id", chatID(c), "line", line, "error", err)
		return b.reply(c, errorText)
	}
	return b.reply(c, subscribeReply(line, added))
}

func (b *Bot) handleUnsubscribe(c tele.Context) error {
	line := strings.TrimSpace(c.Message().Payload)
	b.logger.Info("Command received", "command", "/desuscribir", "chat_id", chatID(c), "line", line)
	if line == "" {
		return b.reply(c, usageUnsubscribe)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	removed, err := b.subs.Unsubscribe(ctx, chatID(c), line)
	if err != nil {
		b.logger.Error("Unsubscribe failed", "chat_id", chatID(c), "line", line, "error", err)
		return b.reply(c, errorText)
	}
	return b.reply(c, unsubscribeReply(line, removed))
}

func (b *Bot) handleMyLines(c tele.Context) error {
	b.logger.Info("Command received", "command", "/mis_lineas", "chat_id", chatID(c))

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	lines, err := b.subs.Lines(ctx, chatID(c))
	if err != nil {
		b.logger.Error("Lines lookup failed", "chat_id", chatID(c), "error", err)
		return b.reply(c, errorText)
	}
	general, err := b.subs.ReceiveGeneral(ctx, chatID(c))
	if err != nil {
		b.logger.Error("General flag lookup failed", "chat_id", chatID(c), "error", err)
		return b.reply(c, errorText)
	}
	return b.reply(c, myLinesReply(lines, general))
}

func (b *Bot) handleGeneralAlerts(c tele.Context) error {
	arg := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	b.logger.Info("Command received", "command", "/alertas_generales", "chat_id", chatID(c), "arg", arg)
	if arg != "on" && arg != "off" {
		return b.reply(c, usageGeneralAlerts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	on := arg == "on"
	if err := b.subs.SetReceiveGeneral(ctx, chatID(c), on); err != nil {
		b.logger.Error("SetReceiveGeneral failed", "chat_id", chatID(c), "error", err)
		return b.reply(c, errorText)
	}
	return b.reply(c, generalAlertsReply(on))
}

func (b *Bot) handleHelp(c tele.Context) error {
	b.logger.Info("Command received", "command", "/ayuda", "chat_id", chatID(c))
	return b.reply(c, helpText)
}

func (b *Bot) handleStats(c tele.Context) error {
	b.logger.Info("Command received", "command", "/stats", "chat_id", chatID(c))

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	st, err := b.subs.Stats(ctx)
	if err != nil {
		b.logger.Error("Stats failed", "chat_id", chatID(c), "error", err)
		return b.reply(c, errorText)
	}
	return b.reply(c, statsReply(st))
}

// handleUnknown sees every text message no registered command matched.
func (b *Bot) handleUnknown(c tele.Context) error {
	text := c.Text()
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	command := strings.Fields(text)[0]
	b.logger.Info("Unrecognized command", "command", command, "chat_id", chatID(c))
	return b.reply(c, unknownCommandReply(command))
}

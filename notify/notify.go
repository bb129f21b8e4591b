// Package notify renders service alerts and fans them out to Telegram chats.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tmpmurcia-notifier/pkg/notifier"
)

// Sender delivers one message to one chat. Implementations must bound the
// time a single call can take.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// Dispatcher delivers one rendered message per (alert, recipient) pair.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
}

// New creates a dispatcher over the given transport.
func New(sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger}
}

// Dispatch sends the alert to every recipient and returns how many deliveries
// succeeded. A failed recipient is logged and counted, never retried, and
// never blocks delivery to the rest. The count is reporting only: the caller
// marks the alert seen whatever happens here.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *notifier.Alert, recipients []string) int {
	if len(recipients) == 0 {
		d.logger.Info("No recipients for alert", "alert_id", alert.ID, "line", alert.Line)
		return 0
	}

	text := RenderMessage(alert, time.Now())

	delivered := 0
	for _, chatID := range recipients {
		if err := d.sender.Send(ctx, chatID, text); err != nil {
			d.logger.Warn("Delivery failed", "alert_id", alert.ID, "chat_id", chatID, "error", err)
			continue
		}
		delivered++
	}

	d.logger.Info("Alert dispatched",
		"alert_id", alert.ID,
		"line", alert.Line,
		"delivered", delivered,
		"recipients", len(recipients))
	return delivered
}

// RenderMessage formats one alert as a Telegram Markdown message, mirroring
// the template the bot has always used.
func RenderMessage(a *notifier.Alert, now time.Time) string {
	lineLabel := "⚠️ Alerta General"
	if !a.General() {
		lineLabel = "Línea " + a.Line
	}

	var b strings.Builder
	b.WriteString("🚌 *Nueva Alerta TMP Murcia*\n\n")
	fmt.Fprintf(&b, "📍 *%s*\n", lineLabel)
	fmt.Fprintf(&b, "📝 %s\n\n", a.Title)
	fmt.Fprintf(&b, "🔗 [Ver detalles](%s)\n\n", a.URL)
	fmt.Fprintf(&b, "⏰ %s\n", now.Format("02/01/2006 15:04"))
	return b.String()
}

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"
)

// CursorStore persists the getUpdates offset across executions.
type CursorStore interface {
	LoadOffset(ctx context.Context) int
	SaveOffset(ctx context.Context, offset int) error
}

// PersistedPoller is a telebot poller whose update cursor survives restarts.
// The cursor is advanced past every fetched update and persisted BEFORE the
// batch reaches any handler: a poison update that crashes its handler is
// logged by telebot's OnError hook and never fetched again.
type PersistedPoller struct {
	Store   CursorStore
	Timeout time.Duration
	Logger  *slog.Logger
}

// Poll implements tele.Poller.
func (p *PersistedPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	ctx := context.Background()
	offset := p.Store.LoadOffset(ctx)
	p.Logger.Info("Update poller started", "offset", offset)

	for {
		select {
		case <-stop:
			return
		default:
		}

		updates, err := fetchUpdates(b, offset, int(p.Timeout.Seconds()))
		if err != nil {
			p.Logger.Warn("getUpdates failed, backing off", "error", err)
			select {
			case <-stop:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		if len(updates) == 0 {
			continue
		}

		next := NextOffset(offset, updates)
		if err := p.Store.SaveOffset(ctx, next); err != nil {
			// Keep going with the in-memory cursor; worst case a restart
			// redelivers this batch.
			p.Logger.Warn("Failed to persist update cursor", "offset", next, "error", err)
		}
		offset = next

		for i := range updates {
			select {
			case dest <- updates[i]:
			case <-stop:
				return
			}
		}
	}
}

func fetchUpdates(b *tele.Bot, offset, timeoutSec int) ([]tele.Update, error) {
	data, err := b.Raw("getUpdates", map[string]any{
		"offset":  offset,
		"timeout": timeoutSec,
	})
	if err != nil {
		return nil, err
	}
	return parseUpdates(data)
}

func parseUpdates(data []byte) ([]tele.Update, error) {
	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	return resp.Result, nil
}

// NextOffset returns the cursor positioned past every update in the batch.
// Never moves backwards.
func NextOffset(current int, updates []tele.Update) int {
	next := current
	for _, u := range updates {
		if u.ID >= next {
			next = u.ID + 1
		}
	}
	return next
}

// Package subscription implements the interest set each bot subscriber
// holds: which bus lines they follow and whether they receive general
// alerts. Records are created lazily on first mutation and never deleted;
// a subscriber who leaves every line keeps an empty record.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tmpmurcia-notifier/pkg/notifier"
	"tmpmurcia-notifier/storage"
)

// Store is the persistence the manager needs.
type Store interface {
	LoadSubscriber(ctx context.Context, chatID string) (*notifier.Subscriber, error)
	SaveSubscriber(ctx context.Context, sub *notifier.Subscriber) error
	ListSubscribers(ctx context.Context) ([]*notifier.Subscriber, error)
}

// Stats summarizes the subscription base.
type Stats struct {
	TotalSubscribers   int            `json:"total_subscribers"`
	MonitoredLines     []string       `json:"monitored_lines"` // sorted
	PerLine            map[string]int `json:"per_line"`
	GeneralSubscribers int            `json:"general_subscribers"`
}

// Manager owns all subscriber records. Every mutation persists the affected
// record synchronously before returning.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a subscription manager over the given store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// load returns the subscriber record, or a fresh default (general alerts on)
// when none exists yet. The fresh record is not persisted here; mutating
// operations save it, read operations just answer from the default.
func (m *Manager) load(ctx context.Context, chatID string) (*notifier.Subscriber, error) {
	sub, err := m.store.LoadSubscriber(ctx, chatID)
	if err != nil {
		if storage.IsNotFound(err) {
			return &notifier.Subscriber{
				ChatID:         chatID,
				ReceiveGeneral: true,
				CreatedAt:      time.Now().UTC(),
			}, nil
		}
		return nil, fmt.Errorf("load subscriber %s: %w", chatID, err)
	}
	return sub, nil
}

// Subscribe adds a line to the subscriber's set. Returns true if the line was
// newly added, false if it was already present. Idempotent, never an error on
// duplicates.
func (m *Manager) Subscribe(ctx context.Context, chatID, line string) (bool, error) {
	sub, err := m.load(ctx, chatID)
	if err != nil {
		return false, err
	}
	if sub.Subscribed(line) {
		return false, nil
	}

	sub.Lines = append(sub.Lines, line)
	if err := m.store.SaveSubscriber(ctx, sub); err != nil {
		return false, fmt.Errorf("save subscriber %s: %w", chatID, err)
	}
	m.logger.Info("Line subscribed", "chat_id", chatID, "line", line)
	return true, nil
}

// Unsubscribe removes a line from the subscriber's set. Returns true if it
// was removed, false if the subscriber didn't follow it.
func (m *Manager) Unsubscribe(ctx context.Context, chatID, line string) (bool, error) {
	sub, err := m.load(ctx, chatID)
	if err != nil {
		return false, err
	}
	if !sub.Subscribed(line) {
		return false, nil
	}

	kept := sub.Lines[:0]
	for _, l := range sub.Lines {
		if l != line {
			kept = append(kept, l)
		}
	}
	sub.Lines = kept
	if err := m.store.SaveSubscriber(ctx, sub); err != nil {
		return false, fmt.Errorf("save subscriber %s: %w", chatID, err)
	}
	m.logger.Info("Line unsubscribed", "chat_id", chatID, "line", line)
	return true, nil
}

// Lines returns the subscriber's lines, sorted.
func (m *Manager) Lines(ctx context.Context, chatID string) ([]string, error) {
	sub, err := m.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	lines := append([]string(nil), sub.Lines...)
	sort.Strings(lines)
	return lines, nil
}

// ReceiveGeneral reports whether the subscriber gets alerts with no line
// number. Defaults to true for subscribers without a record.
func (m *Manager) ReceiveGeneral(ctx context.Context, chatID string) (bool, error) {
	sub, err := m.load(ctx, chatID)
	if err != nil {
		return false, err
	}
	return sub.ReceiveGeneral, nil
}

// SetReceiveGeneral sets the general-alerts flag and persists the record.
func (m *Manager) SetReceiveGeneral(ctx context.Context, chatID string, on bool) error {
	sub, err := m.load(ctx, chatID)
	if err != nil {
		return err
	}
	sub.ReceiveGeneral = on
	if err := m.store.SaveSubscriber(ctx, sub); err != nil {
		return fmt.Errorf("save subscriber %s: %w", chatID, err)
	}
	m.logger.Info("General alerts toggled", "chat_id", chatID, "on", on)
	return nil
}

// MonitoredLines returns the union of every subscriber's lines.
func (m *Manager) MonitoredLines(ctx context.Context) (map[string]bool, error) {
	subs, err := m.store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	lines := make(map[string]bool)
	for _, sub := range subs {
		for _, l := range sub.Lines {
			lines[l] = true
		}
	}
	return lines, nil
}

// RecipientsFor returns the chat IDs entitled to an alert for the given line,
// in stable (chat ID) order. An empty line means a general alert and selects
// subscribers with the general flag on.
func (m *Manager) RecipientsFor(ctx context.Context, line string) ([]string, error) {
	subs, err := m.store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	var recipients []string
	for _, sub := range subs {
		switch {
		case line == "":
			if sub.ReceiveGeneral {
				recipients = append(recipients, sub.ChatID)
			}
		case sub.Subscribed(line):
			recipients = append(recipients, sub.ChatID)
		}
	}
	return recipients, nil
}

// Stats computes subscription statistics across all records.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	subs, err := m.store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	st := &Stats{PerLine: make(map[string]int)}
	st.TotalSubscribers = len(subs)
	for _, sub := range subs {
		for _, l := range sub.Lines {
			st.PerLine[l]++
		}
		if sub.ReceiveGeneral {
			st.GeneralSubscribers++
		}
	}
	for l := range st.PerLine {
		st.MonitoredLines = append(st.MonitoredLines, l)
	}
	sort.Strings(st.MonitoredLines)
	return st, nil
}

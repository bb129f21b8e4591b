// Package poll runs the alert sync pipeline: load history, scrape the news
// page, resolve subscriber interest, diff against history, dispatch new
// alerts and persist the updated history.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tmpmurcia-notifier/pkg/notifier"
	"tmpmurcia-notifier/subscription"
)

// Scraper fetches the current alert set from the news page.
type Scraper interface {
	FetchAlerts(ctx context.Context) ([]*notifier.Alert, error)
}

// Subscriptions answers interest questions about the subscriber base.
type Subscriptions interface {
	Stats(ctx context.Context) (*subscription.Stats, error)
	MonitoredLines(ctx context.Context) (map[string]bool, error)
	RecipientsFor(ctx context.Context, line string) ([]string, error)
}

// HistoryStore persists the already-processed alert set.
type HistoryStore interface {
	LoadHistory(ctx context.Context) *notifier.History
	ReplaceHistory(ctx context.Context, h *notifier.History) error
}

// Dispatcher delivers one alert to a recipient list.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *notifier.Alert, recipients []string) int
}

// Monitor orchestrates one run of the pipeline.
type Monitor struct {
	scraper    Scraper
	subs       Subscriptions
	history    HistoryStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates a pipeline monitor.
func New(scraper Scraper, subs Subscriptions, history HistoryStore, dispatcher Dispatcher, logger *slog.Logger) *Monitor {
	return &Monitor{
		scraper:    scraper,
		subs:       subs,
		history:    history,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Check executes one full run. A failed or empty scrape is fatal for the run
// and leaves history untouched: overwriting history with an artificially
// empty set would make every alert look new on the next run. On success the
// full monitored set always replaces history, new alerts or not, so interest
// changes (an unsubscribe) take effect going forward.
func (m *Monitor) Check(ctx context.Context) error {
	stats, err := m.subs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("subscription stats: %w", err)
	}

	m.logger.Info("Starting alert check",
		"subscribers", stats.TotalSubscribers,
		"monitored_lines", stats.MonitoredLines,
		"general_subscribers", stats.GeneralSubscribers)

	if stats.TotalSubscribers == 0 {
		m.logger.Info("No subscribers yet, skipping fetch")
		return nil
	}

	prev := m.history.LoadHistory(ctx)
	m.logger.Info("History loaded", "alerts", len(prev.Alerts), "last_check", prev.LastCheck)

	alerts, err := m.scraper.FetchAlerts(ctx)
	if err != nil {
		return fmt.Errorf("fetch alerts: %w", err)
	}
	if len(alerts) == 0 {
		return errors.New("source returned no alerts")
	}

	monitored, err := m.monitoredAlerts(ctx, alerts)
	if err != nil {
		return err
	}

	newAlerts := DiffNew(monitored, prev.IDs())
	m.logger.Info("Alerts resolved",
		"scraped", len(alerts),
		"monitored", len(monitored),
		"new", len(newAlerts))

	// The page lists newest first; deliver oldest first so subscribers read
	// events in chronological order.
	totalDelivered := 0
	for i := len(newAlerts) - 1; i >= 0; i-- {
		alert := newAlerts[i]

		recipients, err := m.subs.RecipientsFor(ctx, alert.Line)
		if err != nil {
			m.logger.Warn("Failed to resolve recipients, skipping alert this run",
				"alert_id", alert.ID, "line", alert.Line, "error", err)
			continue
		}
		totalDelivered += m.dispatcher.Dispatch(ctx, alert, recipients)
	}

	if err := m.history.ReplaceHistory(ctx, &notifier.History{
		LastCheck: time.Now().UTC(),
		Alerts:    monitored,
	}); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}

	m.logger.Info("Alert check completed", "new_alerts", len(newAlerts), "delivered", totalDelivered)
	return nil
}

func (m *Monitor) monitoredAlerts(ctx context.Context, alerts []*notifier.Alert) ([]*notifier.Alert, error) {
	lines, err := m.subs.MonitoredLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitored lines: %w", err)
	}
	return FilterMonitored(alerts, lines), nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"tmpmurcia-notifier/pkg/notifier"
)

const historyKey = "history.json"

// LoadHistory returns the persisted alert history. A missing, unreadable or
// malformed history document yields an empty history instead of an error:
// re-notifying a few alerts beats refusing to run at all. Corruption is
// logged at error level so it never goes unnoticed.
func (s *Store) LoadHistory(ctx context.Context) *notifier.History {
	data, err := s.readObject(ctx, historyKey)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Info("No alert history yet, starting empty")
		} else {
			s.logger.Error("Failed to read alert history, starting empty", "error", err)
		}
		return &notifier.History{}
	}

	var h notifier.History
	if err := json.Unmarshal(data, &h); err != nil {
		s.logger.Error("Alert history is corrupt, starting empty", "error", err)
		return &notifier.History{}
	}

	return &h
}

// ReplaceHistory overwrites the persisted history with exactly the given
// alert set. Full replacement, never a merge: history must reflect what is
// monitored as of the most recent run.
func (s *Store) ReplaceHistory(ctx context.Context, h *notifier.History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := s.writeObject(ctx, historyKey, data); err != nil {
		return err
	}

	s.logger.Info("Alert history saved", "alerts", len(h.Alerts), "last_check", h.LastCheck)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

const offsetKey = "offset.json"

type updateCursor struct {
	Offset int `json:"offset"`
}

// LoadOffset returns the last persisted Telegram update cursor. Missing or
// corrupt cursors start over at zero; Telegram then redelivers whatever it
// still holds, which the bot tolerates.
func (s *Store) LoadOffset(ctx context.Context) int {
	data, err := s.readObject(ctx, offsetKey)
	if err != nil {
		if !IsNotFound(err) {
			s.logger.Warn("Failed to read update cursor, starting at zero", "error", err)
		}
		return 0
	}

	var c updateCursor
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("Update cursor is corrupt, starting at zero", "error", err)
		return 0
	}
	return c.Offset
}

// SaveOffset persists the Telegram update cursor.
func (s *Store) SaveOffset(ctx context.Context, offset int) error {
	data, err := json.Marshal(updateCursor{Offset: offset})
	if err != nil {
		return fmt.Errorf("marshal update cursor: %w", err)
	}
	return s.writeObject(ctx, offsetKey, data)
}

// Package notifier contains the core domain types for the TMP Murcia alert service.
package notifier

import (
	"encoding/json"
	"time"
)

// Alert is one service notice scraped from the TMP Murcia news page.
// Alerts are immutable once constructed.
type Alert struct {
	ID         string    `json:"id"`          // Source-native "codigo", stable across runs
	Line       string    `json:"line"`        // Bus line number; empty means a general alert
	Title      string    `json:"title"`       // Notice text as shown on the page
	URL        string    `json:"url"`         // Link to the notice detail page
	DetectedAt time.Time `json:"detected_at"` // Assigned at scrape time
}

// General reports whether the alert is not tied to a specific line.
func (a *Alert) General() bool {
	return a.Line == ""
}

// Subscriber is one bot user (or group chat) and its interest set.
type Subscriber struct {
	ChatID         string    `json:"chat_id"`         // Telegram chat ID, treated as an opaque string
	Lines          []string  `json:"lines"`           // Subscribed line numbers
	ReceiveGeneral bool      `json:"receive_general"` // Wants alerts with no line number
	CreatedAt      time.Time `json:"created_at"`
}

// UnmarshalJSON defaults receive_general to true when the field is absent,
// matching the default a subscriber record gets at creation.
func (s *Subscriber) UnmarshalJSON(data []byte) error {
	type alias Subscriber
	aux := struct {
		ReceiveGeneral *bool `json:"receive_general"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ReceiveGeneral = aux.ReceiveGeneral == nil || *aux.ReceiveGeneral
	return nil
}

// Subscribed reports whether the subscriber follows the given line.
func (s *Subscriber) Subscribed(line string) bool {
	for _, l := range s.Lines {
		if l == line {
			return true
		}
	}
	return false
}

// History is the persisted record of alerts already processed. It is replaced
// wholesale each run with the full currently-monitored alert set, so its content
// is exactly "alerts that are interesting as of the most recent run".
type History struct {
	LastCheck time.Time `json:"last_check"`
	Alerts    []*Alert  `json:"alerts"`
}

// IDs returns the set of alert IDs present in the history.
func (h *History) IDs() map[string]bool {
	ids := make(map[string]bool, len(h.Alerts))
	for _, a := range h.Alerts {
		ids[a.ID] = true
	}
	return ids
}

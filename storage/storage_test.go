package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tmpmurcia-notifier/pkg/notifier"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return New(nil, "", t.TempDir(), logger)
}

func TestSubscriberKey(t *testing.T) {
	tests := []struct {
		chatID string
		want   string
	}{
		{"123456", "sub-123456.json"},
		{"-100987", "sub--100987.json"},
		{"", ""},
		{"-", ""},
		{"12a34", ""},
		{"../../etc/passwd", ""},
		{"123 456", ""},
	}

	for _, tt := range tests {
		if got := SubscriberKey(tt.chatID); got != tt.want {
			t.Errorf("SubscriberKey(%q) = %q, want %q", tt.chatID, got, tt.want)
		}
	}
}

func TestSubscriberRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sub := &notifier.Subscriber{
		ChatID:         "12345",
		Lines:          []string{"11", "44"},
		ReceiveGeneral: false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.SaveSubscriber(ctx, sub); err != nil {
		t.Fatalf("SaveSubscriber() error = %v", err)
	}

	got, err := s.LoadSubscriber(ctx, "12345")
	if err != nil {
		t.Fatalf("LoadSubscriber() error = %v", err)
	}
	if got.ChatID != "12345" || len(got.Lines) != 2 || got.ReceiveGeneral {
		t.Errorf("LoadSubscriber() = %+v, want saved record back", got)
	}
}

func TestLoadSubscriberNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.LoadSubscriber(context.Background(), "999")
	if err == nil {
		t.Fatal("LoadSubscriber() on missing record should fail")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestReceiveGeneralDefaultsTrue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Record written without the receive_general field, as an older layout might
	raw := []byte(`{"chat_id": "777", "lines": ["11"]}`)
	if err := os.WriteFile(filepath.Join(s.localPath, "sub-777.json"), raw, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSubscriber(ctx, "777")
	if err != nil {
		t.Fatalf("LoadSubscriber() error = %v", err)
	}
	if !got.ReceiveGeneral {
		t.Error("ReceiveGeneral should default to true when the field is absent")
	}
}

func TestListSubscribersSortedAndSkipsMalformed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"300", "100", "200"} {
		if err := s.SaveSubscriber(ctx, &notifier.Subscriber{ChatID: id, ReceiveGeneral: true}); err != nil {
			t.Fatalf("SaveSubscriber(%s) error = %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(s.localPath, "sub-666.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	subs, err := s.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers() error = %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("ListSubscribers() returned %d records, want 3 (malformed one skipped)", len(subs))
	}
	for i, want := range []string{"100", "200", "300"} {
		if subs[i].ChatID != want {
			t.Errorf("subs[%d].ChatID = %q, want %q", i, subs[i].ChatID, want)
		}
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h := &notifier.History{
		LastCheck: time.Now().UTC(),
		Alerts: []*notifier.Alert{
			{ID: "501", Line: "44", Title: "desvío", URL: "https://tmpmurcia.es/Cuerpo.asp?codigo=501"},
			{ID: "502", Title: "horarios"},
		},
	}
	if err := s.ReplaceHistory(ctx, h); err != nil {
		t.Fatalf("ReplaceHistory() error = %v", err)
	}

	got := s.LoadHistory(ctx)
	if len(got.Alerts) != 2 {
		t.Fatalf("LoadHistory() returned %d alerts, want 2", len(got.Alerts))
	}
	ids := got.IDs()
	if !ids["501"] || !ids["502"] {
		t.Errorf("history IDs = %v, want 501 and 502", ids)
	}
}

func TestHistoryReplaceIsWholesale(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := &notifier.History{Alerts: []*notifier.Alert{{ID: "1"}, {ID: "2"}}}
	if err := s.ReplaceHistory(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &notifier.History{Alerts: []*notifier.Alert{{ID: "3"}}}
	if err := s.ReplaceHistory(ctx, second); err != nil {
		t.Fatal(err)
	}

	got := s.LoadHistory(ctx)
	if len(got.Alerts) != 1 || got.Alerts[0].ID != "3" {
		t.Errorf("LoadHistory() after replace = %v, want only alert 3", got.IDs())
	}
}

func TestCorruptHistoryFailsOpen(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(filepath.Join(s.localPath, "history.json"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := s.LoadHistory(context.Background())
	if len(got.Alerts) != 0 {
		t.Errorf("corrupt history should load as empty, got %d alerts", len(got.Alerts))
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if got := s.LoadOffset(ctx); got != 0 {
		t.Errorf("LoadOffset() with no cursor = %d, want 0", got)
	}
	if err := s.SaveOffset(ctx, 42); err != nil {
		t.Fatalf("SaveOffset() error = %v", err)
	}
	if got := s.LoadOffset(ctx); got != 42 {
		t.Errorf("LoadOffset() = %d, want 42", got)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveSubscriber(ctx, &notifier.Subscriber{ChatID: "1", ReceiveGeneral: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceHistory(ctx, &notifier.History{}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(s.localPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind after write", e.Name())
		}
	}
}

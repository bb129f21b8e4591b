package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"tmpmurcia-notifier/subscription"
)

type fakePoller struct {
	calls int
	err   error
}

func (f *fakePoller) Check(context.Context) error {
	f.calls++
	return f.err
}

type fakeSubs struct {
	stats *subscription.Stats
}

func (f *fakeSubs) Stats(context.Context) (*subscription.Stats, error) {
	return f.stats, nil
}

func testServer(t *testing.T, poller *fakePoller) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	subs := &fakeSubs{stats: &subscription.Stats{TotalSubscribers: 2, PerLine: map[string]int{"11": 2}}}
	srv := httptest.NewServer(New(poller, subs, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, &fakePoller{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestPollzRunsCheck(t *testing.T) {
	poller := &fakePoller{}
	srv := testServer(t, poller)

	resp, err := http.Post(srv.URL+"/pollz", "application/json", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /pollz status = %d, want 200", resp.StatusCode)
	}
	if poller.calls != 1 {
		t.Errorf("poller called %d times, want 1", poller.calls)
	}
}

func TestPollzRejectsGet(t *testing.T) {
	poller := &fakePoller{}
	srv := testServer(t, poller)

	resp, err := http.Get(srv.URL + "/pollz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /pollz status = %d, want 405", resp.StatusCode)
	}
	if poller.calls != 0 {
		t.Errorf("poller must not run on GET")
	}
}

func TestPollzReportsFailure(t *testing.T) {
	poller := &fakePoller{err: errors.New("source unavailable")}
	srv := testServer(t, poller)

	resp, err := http.Post(srv.URL+"/pollz", "application/json", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("POST /pollz with failing check status = %d, want 500", resp.StatusCode)
	}
}

func TestStatz(t *testing.T) {
	srv := testServer(t, &fakePoller{})

	resp, err := http.Get(srv.URL + "/statz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /statz status = %d, want 200", resp.StatusCode)
	}

	var st subscription.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if st.TotalSubscribers != 2 {
		t.Errorf("TotalSubscribers = %d, want 2", st.TotalSubscribers)
	}
}

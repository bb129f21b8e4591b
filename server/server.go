// Package server exposes the operational HTTP endpoints: health, a manual
// pipeline trigger and subscription statistics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tmpmurcia-notifier/subscription"
)

// checkTimeout bounds a manually triggered pipeline run.
const checkTimeout = 5 * time.Minute

// Poller runs one pipeline pass.
type Poller interface {
	Check(ctx context.Context) error
}

// Subscriptions reports subscription statistics.
type Subscriptions interface {
	Stats(ctx context.Context) (*subscription.Stats, error)
}

// Server handles HTTP requests.
type Server struct {
	poller Poller
	subs   Subscriptions
	logger *slog.Logger
}

// New creates the HTTP handler set.
func New(poller Poller, subs Subscriptions, logger *slog.Logger) *Server {
	return &Server{poller: poller, subs: subs, logger: logger}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/statz", s.handleStats)
	return mux
}

// ListenAndServe starts the HTTP server with timeouts to prevent resource
// exhaustion. Blocks until the server fails.
func (s *Server) ListenAndServe(port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      checkTimeout + 30*time.Second, // /pollz responds after a full run
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if err := s.poller.Check(ctx); err != nil {
		s.logger.Error("Manual check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"completed"}`)); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.subs.Stats(r.Context())
	if err != nil {
		s.logger.Error("Stats lookup failed", "error", err)
		http.Error(w, "Stats failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

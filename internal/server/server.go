// Package server provides the physiopal HTTP API and session WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/physiopal/internal/server/api"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   session.Options
}

// Server routes the API, the session socket and static files.
type Server struct {
	config  Config
	mux     *http.ServeMux
	manager *session.Manager
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config:  config,
		mux:     http.NewServeMux(),
		manager: session.NewManager(config.Session),
		start:   time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	exercises := api.NewExerciseHandler(s.config.Store)
	s.mux.Handle("/api/exercises", exercises)
	s.mux.Handle("/api/exercises/", exercises)

	s.mux.Handle("/api/sessions", NewSessionHandler(s.config.Store, s.manager))

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Sessions returns the manager holding the open WebSocket sessions.
func (s *Server) Sessions() *session.Manager {
	return s.manager
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"sessions": s.manager.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes any open sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.manager.CloseAll()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	slog.Info("server: stopped")
	return err
}

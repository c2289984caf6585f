// Package api implements the local bridge: an HTTP and WebSocket server
// that lets a browser front end drive work sessions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is the bridge HTTP server.
type Server struct {
	addr    string
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
	manager *Manager
	log     *slog.Logger
}

// New creates a bridge server over m.
func New(addr string, m *Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{addr: addr, manager: m, log: log}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.handler = guard(s.mux)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleState)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleClose)
	s.mux.HandleFunc("GET /api/sessions/{id}/diff", s.handleDiff)
	s.mux.HandleFunc("POST /api/sessions/{id}/content", s.handleContent)
	s.mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSave)
	s.mux.HandleFunc("POST /api/sessions/{id}/submit", s.handleSubmit)
	s.mux.HandleFunc("POST /api/sessions/{id}/revert", s.handleRevert)
	s.mux.HandleFunc("POST /api/sessions/{id}/markings", s.handleMarking)
	s.mux.HandleFunc("POST /api/sessions/{id}/versions/{n}", s.handleOpenVersion)
	s.mux.HandleFunc("POST /api/sessions/{id}/load_more", s.handleLoadMore)
	s.mux.HandleFunc("POST /api/sessions/{id}/reload", s.handleReload)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server. It returns when ctx is cancelled,
// after closing all sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("afterword bridge listening", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.manager.CloseAll()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.manager.CloseAll()
	return err
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("json encode error", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v. An empty body leaves v as is.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

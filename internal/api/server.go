// Package api serves a read-only status HTTP API over the arbiter's
// registries: which paths exist, who references them, and aggregate counters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/grzechuj/RtspRestreamServer/internal/arbiter"
	"github.com/grzechuj/RtspRestreamServer/internal/logger"
)

// Registry is the view of the arbiter the API needs.
type Registry interface {
	Paths() []arbiter.PathSnapshot
	Path(name string) (arbiter.PathSnapshot, bool)
	Clients() []arbiter.ClientSnapshot
	Stats() arbiter.Stats
}

// Server is the status API HTTP server.
type Server struct {
	reg  Registry
	log  *slog.Logger
	http *http.Server
	ln   net.Listener
}

// New creates an unstarted API server listening on addr.
func New(addr string, reg Registry) *Server {
	s := &Server{
		reg: reg,
		log: logger.Logger().With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/paths", s.handlePaths)
		r.Get("/paths/*", s.handlePath)
		r.Get("/clients", s.handleClients)
		r.Get("/stats", s.handleStats)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and begins serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.http.Addr, err)
	}
	s.ln = ln
	s.log.Info("status API listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address (nil if not started).
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close shuts the server down, waiting up to 5s for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePaths(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Paths())
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	// Paths contain slashes, so the route uses a wildcard; restore the
	// leading slash stripped by the router.
	name := "/" + chi.URLParam(r, "*")
	snap, ok := s.reg.Path(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "path not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Clients())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

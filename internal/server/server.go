package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"MarketScreener/internal/model"
	"MarketScreener/internal/recorder"
	"MarketScreener/internal/scheduler"
)

// Runner starts passes and exposes the latest one.
type Runner interface {
	RunPass(ctx context.Context) (*model.Run, error)
	StartPass(ctx context.Context) error
	LatestRun(ctx context.Context) (*model.Run, error)
}

// Server is the HTTP API over screening passes.
type Server struct {
	runner Runner
	ctx    context.Context
	http   *http.Server
}

// New builds the server. Background passes run under ctx.
func New(ctx context.Context, addr string, runner Runner) *Server {
	s := &Server{runner: runner, ctx: ctx}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "healthy")
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs/latest", s.handleLatest)
		r.Get("/runs/latest/selections", s.handleLatestSelections)
		r.Post("/screen", s.handleScreen)
	})
	return r
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Printf("[INFO] HTTP API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.runner.LatestRun(r.Context())
	if errors.Is(err, recorder.ErrNoRuns) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.latest(w, r); ok {
		writeJSON(w, http.StatusOK, run)
	}
}

func (s *Server) handleLatestSelections(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.latest(w, r); ok {
		writeJSON(w, http.StatusOK, run.Selected)
	}
}

// handleScreen starts a pass. With ?wait=true it runs under the request
// context and returns the run; otherwise it returns 202 at once.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		run, err := s.runner.RunPass(r.Context())
		switch {
		case errors.Is(err, scheduler.ErrPassRunning):
			writeError(w, http.StatusConflict, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, run)
		}
		return
	}

	if err := s.runner.StartPass(s.ctx); err != nil {
		if errors.Is(err, scheduler.ErrPassRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, "screening pass started")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data}); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the ops listener: probes, metrics and a read-only view
// of the running session and stored records.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/testgen/internal/health"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/record"
	"github.com/ManuGH/testgen/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	shutdownTimeout  = 5 * time.Second
)

// SessionView exposes the running session. *session.Controller implements it.
type SessionView interface {
	Snapshot() session.Snapshot
}

// Options configures the ops router.
type Options struct {
	Version string
	Health  *health.Manager
	Records record.Store
	// Session is nil for commands that do not run a session.
	Session SessionView
	// RateLimit is requests per minute per client IP for the /api routes.
	RateLimit int
	// TracingService enables otelhttp server spans when set.
	TracingService string
}

type server struct {
	opts Options
}

// NewRouter builds the ops handler.
func NewRouter(opts Options) http.Handler {
	if opts.Health == nil {
		opts.Health = health.NewManager(opts.Version)
	}
	s := &server{opts: opts}

	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	if opts.TracingService != "" {
		r.Use(Tracing(opts.TracingService))
	}
	r.Use(AccessLog)

	r.Get("/healthz", opts.Health.ServeHealth)
	r.Get("/readyz", opts.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(opts.RateLimit))
		r.Get("/version", s.handleVersion)
		r.Get("/session", s.handleSession)
		r.Get("/records", s.handleListRecords)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Get("/records/{id}/assets", s.handleRecordAssets)
	})
	return r
}

func (s *server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
}

func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		writeError(w, r, http.StatusNotFound, "no_session", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Session.Snapshot())
}

func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.opts.Records == nil {
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", nil)
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := s.opts.Records.List(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": list})
}

func (s *server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.opts.Records == nil {
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", nil)
		return
	}
	rec, err := s.opts.Records.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleRecordAssets(w http.ResponseWriter, r *http.Request) {
	if s.opts.Records == nil {
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", nil)
		return
	}
	list, err := s.opts.Records.LoadAssets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": list})
}

func (s *server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, record.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", nil)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().
		Err(err).
		Str(log.FieldEvent, "api.store_error").
		Msg("record store failed")
	writeError(w, r, http.StatusInternalServerError, "store_error", nil)
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, handler)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	logger := log.WithComponent("api")
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str(log.FieldEvent, "api.listen").Str("addr", ln.Addr().String()).Msg("ops listener started")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	logger.Info().Str(log.FieldEvent, "api.stopped").Msg("ops listener stopped")
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/testgen/internal/api"
	"github.com/ManuGH/testgen/internal/assets"
	"github.com/ManuGH/testgen/internal/health"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/session"
	"github.com/ManuGH/testgen/internal/transport"
	"github.com/rs/zerolog"
)

// App runs one session and, when configured, the ops listener next to it.
type App struct {
	logger zerolog.Logger
	deps   *Deps
	dialer transport.Dialer

	// serveOps is api.Serve, replaceable in tests.
	serveOps func(ctx context.Context, addr string, h http.Handler) error
}

// NewApp wires an App. dialer overrides the configured transport when set.
func NewApp(deps *Deps, dialer transport.Dialer) (*App, error) {
	if deps == nil || deps.Store == nil {
		return nil, ErrMissingStore
	}
	if dialer == nil {
		var err error
		dialer, err = NewDialer(deps.Config.Server)
		if err != nil {
			return nil, err
		}
	}
	return &App{
		logger:   log.WithComponent("daemon"),
		deps:     deps,
		dialer:   dialer,
		serveOps: api.Serve,
	}, nil
}

// Run executes req until the session is terminal. The ops listener, if any,
// stops when the session ends. The returned snapshot is valid even when err
// is not nil.
func (a *App) Run(ctx context.Context, req session.Request, listener session.Listener) (session.Snapshot, error) {
	cfg := a.deps.Config

	ctrl, err := session.NewController(session.Options{
		Dialer:      a.dialer,
		Fetcher:     a.deps.Fetcher,
		Sink:        a.deps.Sink,
		Saver:       a.deps.Store,
		Credentials: assets.Auth{Username: cfg.Server.Username, Password: cfg.Server.Password},
		Listener:    listener,
	})
	if err != nil {
		return session.Snapshot{}, err
	}
	a.deps.Health.RegisterChecker(health.NewSessionChecker(func() string { return string(ctrl.State()) }))

	g, gctx := errgroup.WithContext(ctx)
	opsCtx, stopOps := context.WithCancel(gctx)
	defer stopOps()

	if cfg.Ops.Listen != "" {
		handler := api.NewRouter(api.Options{
			Version:        cfg.Version,
			Health:         a.deps.Health,
			Records:        a.deps.Store,
			Session:        ctrl,
			RateLimit:      cfg.Ops.RateLimit,
			TracingService: tracingService(cfg.Telemetry.Enabled),
		})
		g.Go(func() error {
			return a.serveOps(opsCtx, cfg.Ops.Listen, handler)
		})
	}

	g.Go(func() error {
		defer stopOps()
		return ctrl.Run(gctx, req)
	})

	err = g.Wait()
	snap := ctrl.Snapshot()
	a.logger.Info().
		Str(log.FieldEvent, "daemon.run_finished").
		Str(log.FieldSessionID, snap.SessionID).
		Str(log.FieldNewState, string(snap.State)).
		Int("steps", snap.Steps).
		Msg("run finished")
	return snap, err
}

func tracingService(enabled bool) string {
	if !enabled {
		return ""
	}
	return "testgen-ops"
}

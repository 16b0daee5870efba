// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/ManuGH/testgen/internal/config"
	"github.com/ManuGH/testgen/internal/daemon"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/session"
	"github.com/spf13/cobra"
)

type runFlags struct {
	goal            string
	maxSteps        int
	devices         []string
	platform        string
	platformVersion string
	assertions      []string
	continueFrom    string
	transport       string
	opsListen       string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one generation session and save the result",
		Long: `Run opens a session with the generation service, prints every
notification as one JSON line on stdout and saves the generated test when the
service reports completion. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.goal == "" {
				return fmt.Errorf("%w: --goal is required", errUsage)
			}
			return runSession(cmd.Context(), cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.goal, "goal", "g", "", "what the generated test should accomplish")
	fl.IntVar(&f.maxSteps, "max-steps", 0, "upper bound on generated steps (0 lets the service decide)")
	fl.StringSliceVar(&f.devices, "device", nil, "target device name (repeatable)")
	fl.StringVar(&f.platform, "platform", "", "target platform, e.g. android or ios")
	fl.StringVar(&f.platformVersion, "platform-version", "", "target platform version")
	fl.StringArrayVar(&f.assertions, "assert", nil, "assertion the test must check (repeatable)")
	fl.StringVar(&f.continueFrom, "continue", "", "record id whose steps are replayed as prior actions")
	fl.StringVar(&f.transport, "transport", "", "override the configured transport (websocket or http)")
	fl.StringVar(&f.opsListen, "ops-listen", "", "serve probes and metrics on this address while running")
	return cmd
}

func runSession(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	if f.transport != "" {
		cfg.Server.Transport = f.transport
	}
	if f.opsListen != "" {
		cfg.Ops.Listen = f.opsListen
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.RequireServer(cfg); err != nil {
		return err
	}

	deps, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger := log.WithComponent("cli")
			logger.Warn().Err(cerr).Msg("shutdown")
		}
	}()

	req := session.Request{
		Goal:            f.goal,
		MaxSteps:        f.maxSteps,
		Devices:         f.devices,
		Platform:        f.platform,
		PlatformVersion: f.platformVersion,
		Assertions:      f.assertions,
	}
	if f.continueFrom != "" {
		prev, err := deps.Store.Load(ctx, f.continueFrom)
		if err != nil {
			return fmt.Errorf("load record %s: %w", f.continueFrom, err)
		}
		req.PriorActions = prev.PriorActions()
		if req.Platform == "" {
			req.Platform = prev.Platform
		}
	}

	app, err := daemon.NewApp(deps, nil)
	if err != nil {
		return err
	}

	logger := log.WithComponent("cli")
	logger.Info().
		Str(log.FieldEvent, "cli.run").
		Str("server", maskURL(cfg.Server.URL)).
		Str(log.FieldTransport, cfg.Server.Transport).
		Int("prior_actions", len(req.PriorActions)).
		Msg("starting session")

	snap, err := app.Run(ctx, req, newLineWriter(cmd.OutOrStdout()))
	if err != nil {
		return fmt.Errorf("session %s %s: %w", snap.SessionID, snap.State, err)
	}
	return nil
}

// lineWriter prints notifications as JSON lines.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (l *lineWriter) Notify(n session.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(n); err != nil {
		logger := log.WithComponent("cli")
		logger.Warn().Err(err).Str(log.FieldEvent, "cli.write_failed").Msg("writing notification")
	}
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	return u.String()
}

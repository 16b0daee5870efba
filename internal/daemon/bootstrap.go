// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon builds the runtime components from configuration and owns
// the lifecycle of one generation run plus the optional ops listener.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ManuGH/testgen/internal/assets"
	"github.com/ManuGH/testgen/internal/config"
	"github.com/ManuGH/testgen/internal/health"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/record"
	"github.com/ManuGH/testgen/internal/telemetry"
	"github.com/ManuGH/testgen/internal/transport"
	"github.com/ManuGH/testgen/internal/version"
)

// Deps are the components shared by every command.
type Deps struct {
	Config    config.AppConfig
	Store     record.Store
	Fetcher   *assets.Fetcher
	Sink      *assets.FileSink
	Health    *health.Manager
	Telemetry *telemetry.Provider
}

// Bootstrap opens the record store and builds the asset pipeline. Close
// releases everything it opened.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (*Deps, error) {
	logger := log.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "testgen",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := record.Open(cfg.Store)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("open record store: %w", err)
	}

	d := &Deps{
		Config:    cfg,
		Store:     store,
		Telemetry: tp,
		Sink:      assets.NewFileSink(cfg.Assets.Dir),
		Fetcher: assets.NewFetcher(assets.Options{
			MaxAttempts:    cfg.Assets.MaxAttempts,
			RetryInterval:  cfg.Assets.RetryInterval,
			RequestTimeout: cfg.Assets.RequestTimeout,
			RateLimit:      cfg.Assets.RateLimit,
			Burst:          cfg.Assets.Burst,
			UserAgent:      "testgen/" + version.Version,
		}),
		Health: health.NewManager(cfg.Version),
	}
	d.Health.RegisterChecker(health.NewStoreChecker(store.Backend(), store.Check))
	d.Health.RegisterChecker(health.NewDirChecker("assets", cfg.Assets.Dir))

	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrap").
		Str(log.FieldBackend, store.Backend()).
		Str(log.FieldPath, cfg.DataDir).
		Msg("components ready")
	return d, nil
}

// Close shuts down the store and flushes traces.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Telemetry != nil {
		errs = append(errs, d.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// NewDialer picks the transport named in cfg.
func NewDialer(cfg config.ServerConfig) (transport.Dialer, error) {
	creds := transport.Credentials{Username: cfg.Username, Password: cfg.Password}
	switch cfg.Transport {
	case config.TransportWebSocket:
		return &transport.WebSocketDialer{
			URL:          cfg.URL,
			Credentials:  creds,
			DialTimeout:  cfg.DialTimeout,
			PingInterval: cfg.PingInterval,
		}, nil
	case config.TransportHTTP:
		return &transport.HTTPDialer{URL: cfg.URL, Credentials: creds}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
	}
}

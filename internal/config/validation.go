// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/testgen/internal/validate"
)

// Validate checks cfg and returns an error wrapping ErrInvalid that lists
// every failed field.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("logLevel", cfg.LogLevel, []string{"trace", "debug", "info", "warn", "error"})
	v.NotEmpty("dataDir", cfg.DataDir)

	v.OneOf("server.transport", cfg.Server.Transport, []string{TransportWebSocket, TransportHTTP})
	if cfg.Server.URL != "" {
		switch cfg.Server.Transport {
		case TransportWebSocket:
			v.URL("server.url", cfg.Server.URL, []string{"ws", "wss"})
		case TransportHTTP:
			v.URL("server.url", cfg.Server.URL, []string{"http", "https"})
		}
	}
	v.MinDuration("server.dialTimeout", cfg.Server.DialTimeout, 0)
	v.MinDuration("server.pingInterval", cfg.Server.PingInterval, 0)

	v.Positive("assets.maxAttempts", cfg.Assets.MaxAttempts)
	v.MinDuration("assets.retryInterval", cfg.Assets.RetryInterval, 0)
	v.MinDuration("assets.requestTimeout", cfg.Assets.RequestTimeout, 0)
	if cfg.Assets.RateLimit < 0 {
		v.AddError("assets.rateLimit", "value cannot be negative", cfg.Assets.RateLimit)
	}
	if cfg.Assets.RateLimit > 0 {
		v.Positive("assets.burst", cfg.Assets.Burst)
	}

	v.OneOf("store.backend", cfg.Store.Backend, []string{BackendSQLite, BackendBadger, BackendRedis, BackendMemory})
	switch cfg.Store.Backend {
	case BackendSQLite, BackendBadger:
		v.NotEmpty("store.path", cfg.Store.Path)
	case BackendRedis:
		v.NotEmpty("store.redisAddr", cfg.Store.RedisAddr)
		v.NonNegative("store.redisDB", cfg.Store.RedisDB)
	}

	v.ListenAddr("ops.listen", cfg.Ops.Listen)
	v.NonNegative("ops.rateLimit", cfg.Ops.RateLimit)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Range("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RequireServer checks the settings needed to open a session. The read-only
// CLI commands load config without a server.
func RequireServer(cfg AppConfig) error {
	v := validate.New()
	v.NotEmpty("server.url", cfg.Server.URL)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

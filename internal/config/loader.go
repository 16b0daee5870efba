// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvDataDir            = "TESTGEN_DATA_DIR"
	EnvLogLevel           = "TESTGEN_LOG_LEVEL"
	EnvServerURL          = "TESTGEN_SERVER_URL"
	EnvTransport          = "TESTGEN_TRANSPORT"
	EnvUsername           = "TESTGEN_USERNAME"
	EnvPassword           = "TESTGEN_PASSWORD"
	EnvDialTimeout        = "TESTGEN_DIAL_TIMEOUT"
	EnvPingInterval       = "TESTGEN_PING_INTERVAL"
	EnvAssetDir           = "TESTGEN_ASSET_DIR"
	EnvAssetMaxAttempts   = "TESTGEN_ASSET_MAX_ATTEMPTS"
	EnvAssetRetryInterval = "TESTGEN_ASSET_RETRY_INTERVAL"
	EnvAssetTimeout       = "TESTGEN_ASSET_TIMEOUT"
	EnvAssetRate          = "TESTGEN_ASSET_RATE"
	EnvAssetBurst         = "TESTGEN_ASSET_BURST"
	EnvStoreBackend       = "TESTGEN_STORE_BACKEND"
	EnvStorePath          = "TESTGEN_STORE_PATH"
	EnvRedisAddr          = "TESTGEN_REDIS_ADDR"
	EnvRedisDB            = "TESTGEN_REDIS_DB"
	EnvRedisPassword      = "TESTGEN_REDIS_PASSWORD"
	EnvOpsListen          = "TESTGEN_OPS_LISTEN"
	EnvOpsRateLimit       = "TESTGEN_OPS_RATE_LIMIT"
	EnvTelemetryEnabled   = "TESTGEN_TELEMETRY_ENABLED"
	EnvOTLPExporter       = "TESTGEN_OTLP_EXPORTER"
	EnvOTLPEndpoint       = "TESTGEN_OTLP_ENDPOINT"
	EnvTraceSampling      = "TESTGEN_TRACE_SAMPLING"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: parse file -> apply env -> derive paths -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when neither file nor env set a value.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		Server: ServerConfig{
			Transport:    DefaultTransport,
			DialTimeout:  DefaultDialTimeout,
			PingInterval: DefaultPingInterval,
		},
		Assets: AssetsConfig{
			MaxAttempts:    DefaultAssetMaxAttempts,
			RetryInterval:  DefaultAssetRetryInterval,
			RequestTimeout: DefaultAssetTimeout,
			RateLimit:      DefaultAssetRate,
			Burst:          DefaultAssetBurst,
		},
		Store: StoreConfig{
			Backend:   DefaultStoreBackend,
			RedisAddr: DefaultRedisAddr,
		},
		Ops: OpsConfig{
			RateLimit: DefaultOpsRateLimit,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			SamplingRate: DefaultTraceSampling,
		},
	}
}

// loadFile loads configuration from a YAML file with strict parsing.
// Unknown fields are fatal to prevent silent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data)
}

func decodeStrict(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.LogLevel, f.LogLevel)

	setString(&cfg.Server.URL, f.Server.URL)
	setString(&cfg.Server.Transport, f.Server.Transport)
	setString(&cfg.Server.Username, f.Server.Username)
	setString(&cfg.Server.Password, f.Server.Password)
	if err := setDuration(&cfg.Server.DialTimeout, "server.dialTimeout", f.Server.DialTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.Server.PingInterval, "server.pingInterval", f.Server.PingInterval); err != nil {
		return err
	}

	setString(&cfg.Assets.Dir, f.Assets.Dir)
	if f.Assets.MaxAttempts != nil {
		cfg.Assets.MaxAttempts = *f.Assets.MaxAttempts
	}
	if err := setDuration(&cfg.Assets.RetryInterval, "assets.retryInterval", f.Assets.RetryInterval); err != nil {
		return err
	}
	if err := setDuration(&cfg.Assets.RequestTimeout, "assets.requestTimeout", f.Assets.RequestTimeout); err != nil {
		return err
	}
	if f.Assets.RateLimit != nil {
		cfg.Assets.RateLimit = *f.Assets.RateLimit
	}
	if f.Assets.Burst != nil {
		cfg.Assets.Burst = *f.Assets.Burst
	}

	setString(&cfg.Store.Backend, f.Store.Backend)
	setString(&cfg.Store.Path, f.Store.Path)
	setString(&cfg.Store.RedisAddr, f.Store.RedisAddr)
	setString(&cfg.Store.RedisPassword, f.Store.RedisPassword)
	if f.Store.RedisDB != nil {
		cfg.Store.RedisDB = *f.Store.RedisDB
	}

	setString(&cfg.Ops.Listen, f.Ops.Listen)
	if f.Ops.RateLimit != nil {
		cfg.Ops.RateLimit = *f.Ops.RateLimit
	}

	if f.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *f.Telemetry.Enabled
	}
	setString(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	if f.Telemetry.SamplingRate != nil {
		cfg.Telemetry.SamplingRate = *f.Telemetry.SamplingRate
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)

	cfg.Server.URL = l.envString(EnvServerURL, cfg.Server.URL)
	cfg.Server.Transport = l.envString(EnvTransport, cfg.Server.Transport)
	cfg.Server.Username = l.envString(EnvUsername, cfg.Server.Username)
	cfg.Server.Password = l.envString(EnvPassword, cfg.Server.Password)
	cfg.Server.DialTimeout = l.envDuration(EnvDialTimeout, cfg.Server.DialTimeout)
	cfg.Server.PingInterval = l.envDuration(EnvPingInterval, cfg.Server.PingInterval)

	cfg.Assets.Dir = l.envString(EnvAssetDir, cfg.Assets.Dir)
	cfg.Assets.MaxAttempts = l.envInt(EnvAssetMaxAttempts, cfg.Assets.MaxAttempts)
	cfg.Assets.RetryInterval = l.envDuration(EnvAssetRetryInterval, cfg.Assets.RetryInterval)
	cfg.Assets.RequestTimeout = l.envDuration(EnvAssetTimeout, cfg.Assets.RequestTimeout)
	cfg.Assets.RateLimit = l.envFloat(EnvAssetRate, cfg.Assets.RateLimit)
	cfg.Assets.Burst = l.envInt(EnvAssetBurst, cfg.Assets.Burst)

	cfg.Store.Backend = l.envString(EnvStoreBackend, cfg.Store.Backend)
	cfg.Store.Path = l.envString(EnvStorePath, cfg.Store.Path)
	cfg.Store.RedisAddr = l.envString(EnvRedisAddr, cfg.Store.RedisAddr)
	cfg.Store.RedisDB = l.envInt(EnvRedisDB, cfg.Store.RedisDB)
	cfg.Store.RedisPassword = l.envString(EnvRedisPassword, cfg.Store.RedisPassword)

	cfg.Ops.Listen = l.envString(EnvOpsListen, cfg.Ops.Listen)
	cfg.Ops.RateLimit = l.envInt(EnvOpsRateLimit, cfg.Ops.RateLimit)

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvOTLPExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTraceSampling, cfg.Telemetry.SamplingRate)
}

// resolvePaths fills data-dir relative defaults once DataDir is final.
func resolvePaths(cfg *AppConfig) {
	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = filepath.Join(cfg.DataDir, "assets")
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case BackendSQLite:
			cfg.Store.Path = filepath.Join(cfg.DataDir, "records.db")
		case BackendBadger:
			cfg.Store.Path = filepath.Join(cfg.DataDir, "records.badger")
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, v, err)
	}
	*dst = d
	return nil
}

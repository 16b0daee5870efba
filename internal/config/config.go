// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the testgen runtime configuration.
//
// Precedence is defaults, then a strict YAML file, then TESTGEN_* environment
// variables. The merged result is validated before it is returned.
package config

import "time"

// Transport names accepted in ServerConfig.Transport.
const (
	TransportWebSocket = "websocket"
	TransportHTTP      = "http"
)

// Store backends accepted in StoreConfig.Backend.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Defaults.
const (
	DefaultDataDir            = "./data"
	DefaultLogLevel           = "info"
	DefaultTransport          = TransportWebSocket
	DefaultDialTimeout        = 15 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultAssetMaxAttempts   = 10
	DefaultAssetRetryInterval = time.Second
	DefaultAssetTimeout       = 30 * time.Second
	DefaultAssetRate          = 5.0
	DefaultAssetBurst         = 5
	DefaultStoreBackend       = BackendSQLite
	DefaultRedisAddr          = "127.0.0.1:6379"
	DefaultOpsRateLimit       = 120
	DefaultTraceSampling      = 1.0
)

// AppConfig is the fully merged runtime configuration.
type AppConfig struct {
	Version   string
	DataDir   string
	LogLevel  string
	Server    ServerConfig
	Assets    AssetsConfig
	Store     StoreConfig
	Ops       OpsConfig
	Telemetry TelemetryConfig
}

// ServerConfig describes the remote generation service.
type ServerConfig struct {
	URL          string
	Transport    string
	Username     string
	Password     string
	DialTimeout  time.Duration
	PingInterval time.Duration
}

// AssetsConfig controls the asset fetcher.
type AssetsConfig struct {
	Dir            string
	MaxAttempts    int
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	// RateLimit is requests per second across all fetches; 0 disables the limiter.
	RateLimit float64
	Burst     int
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
}

// OpsConfig controls the optional ops HTTP listener.
type OpsConfig struct {
	// Listen is empty when the ops listener is disabled.
	Listen    string
	RateLimit int
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig mirrors the YAML file. Pointer fields distinguish "unset" from zero.
type FileConfig struct {
	DataDir   string        `yaml:"dataDir,omitempty"`
	LogLevel  string        `yaml:"logLevel,omitempty"`
	Server    ServerFile    `yaml:"server,omitempty"`
	Assets    AssetsFile    `yaml:"assets,omitempty"`
	Store     StoreFile     `yaml:"store,omitempty"`
	Ops       OpsFile       `yaml:"ops,omitempty"`
	Telemetry TelemetryFile `yaml:"telemetry,omitempty"`
}

type ServerFile struct {
	URL          string `yaml:"url,omitempty"`
	Transport    string `yaml:"transport,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	DialTimeout  string `yaml:"dialTimeout,omitempty"`
	PingInterval string `yaml:"pingInterval,omitempty"`
}

type AssetsFile struct {
	Dir            string   `yaml:"dir,omitempty"`
	MaxAttempts    *int     `yaml:"maxAttempts,omitempty"`
	RetryInterval  string   `yaml:"retryInterval,omitempty"`
	RequestTimeout string   `yaml:"requestTimeout,omitempty"`
	RateLimit      *float64 `yaml:"rateLimit,omitempty"`
	Burst          *int     `yaml:"burst,omitempty"`
}

type StoreFile struct {
	Backend       string `yaml:"backend,omitempty"`
	Path          string `yaml:"path,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisDB       *int   `yaml:"redisDB,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
}

type OpsFile struct {
	Listen    string `yaml:"listen,omitempty"`
	RateLimit *int   `yaml:"rateLimit,omitempty"`
}

type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

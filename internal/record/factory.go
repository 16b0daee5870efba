// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"fmt"

	"github.com/ManuGH/testgen/internal/config"
	"github.com/ManuGH/testgen/internal/log"
)

// Open creates a Store based on the backend configuration.
func Open(cfg config.StoreConfig) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = config.BackendSQLite
	}

	var (
		s   Store
		err error
	)
	switch backend {
	case config.BackendMemory:
		s = NewMemoryStore()
	case config.BackendSQLite:
		s, err = NewSqliteStore(cfg.Path)
	case config.BackendBadger:
		s, err = OpenBadgerStore(cfg.Path)
	case config.BackendRedis:
		s, err = NewRedisStore(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}

	logger := log.WithComponent("record")
	logger.Debug().
		Str(log.FieldEvent, "record.store_opened").
		Str(log.FieldBackend, backend).
		Str(log.FieldPath, cfg.Path).
		Msg("record store opened")
	return s, nil
}

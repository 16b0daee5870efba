// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordPrefix = "testgen:record:"
	redisIndexKey     = "testgen:records"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps records as JSON strings plus a sorted-set index by
// completion time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Backend() string { return "redis" }

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Save(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := redisRecordPrefix + r.ID

	// The record and its index entry land together or not at all.
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis exists: %w", err)
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{
				Score:  float64(r.CompletedAt.UnixMilli()),
				Member: r.ID,
			})
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			// another writer got the key first; nothing of ours was written
			return err
		}
		if err != nil {
			// EXEC does not roll back commands that succeeded.
			s.client.Del(context.WithoutCancel(ctx), key)
			s.client.ZRem(context.WithoutCancel(ctx), redisIndexKey, r.ID)
			return fmt.Errorf("redis save: %w", err)
		}
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrExists
	}
	return err
}

func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	buf, err := s.client.Get(ctx, redisRecordPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get: %w", err)
	}
	var r Record
	if err := json.Unmarshal(buf, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		r, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r.Summarize())
	}
	return sortAndLimit(out, limit), nil
}

func (s *RedisStore) LoadAssets(ctx context.Context, id string) ([]Asset, error) {
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Assets(), nil
}

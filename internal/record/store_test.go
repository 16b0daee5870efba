// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/testgen/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(id string, completed time.Time) Record {
	return Record{
		ID:              id,
		SessionID:       "sess-" + id,
		RemoteSessionID: "remote-" + id,
		RequestID:       "req-" + id,
		Goal:            "log in and open settings",
		Platform:        "android",
		Device: Device{
			Name:            "Pixel 8",
			PlatformVersion: "14",
			Screen:          Screen{Width: 1080, Height: 2400},
		},
		Steps: []Step{
			{Index: 0, Data: json.RawMessage(`{"action":"tap","target":"login"}`), Asset: &Asset{Name: "0.png", URL: "https://gen.example.com/a/0.png", Path: "/data/assets/s/0.png"}},
			{Index: 1, Data: json.RawMessage(`{"action":"type","text":"alice"}`)},
			{Index: 2, Data: json.RawMessage(`{"action":"tap","target":"settings"}`), Asset: &Asset{Name: "2.png", URL: "https://gen.example.com/a/2.png", Missing: true}},
		},
		CreatedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
	}
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSqliteStore(filepath.Join(t.TempDir(), "records.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadgerStore("")
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			assert.Equal(t, name, s.Backend())
			require.NoError(t, s.Check(ctx))

			first := fixture("r1", base)
			second := fixture("r2", base.Add(time.Hour))
			require.NoError(t, s.Save(ctx, first))
			require.NoError(t, s.Save(ctx, second))

			t.Run("load round trip", func(t *testing.T) {
				got, err := s.Load(ctx, "r1")
				require.NoError(t, err)
				if diff := cmp.Diff(first, got); diff != "" {
					t.Errorf("record mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("insert once", func(t *testing.T) {
				err := s.Save(ctx, first)
				assert.True(t, errors.Is(err, ErrExists), "got %v", err)
			})

			t.Run("not found", func(t *testing.T) {
				_, err := s.Load(ctx, "missing")
				assert.True(t, errors.Is(err, ErrNotFound))
				_, err = s.LoadAssets(ctx, "missing")
				assert.True(t, errors.Is(err, ErrNotFound))
			})

			t.Run("list newest first", func(t *testing.T) {
				all, err := s.List(ctx, 0)
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, "r2", all[0].ID)
				assert.Equal(t, "r1", all[1].ID)
				assert.Equal(t, 3, all[0].Steps)
				assert.Equal(t, "Pixel 8", all[0].Device)

				one, err := s.List(ctx, 1)
				require.NoError(t, err)
				require.Len(t, one, 1)
				assert.Equal(t, "r2", one[0].ID)
			})

			t.Run("assets in step order", func(t *testing.T) {
				assets, err := s.LoadAssets(ctx, "r1")
				require.NoError(t, err)
				require.Len(t, assets, 2)
				assert.Equal(t, "0.png", assets[0].Name)
				assert.False(t, assets[0].Missing)
				assert.Equal(t, "2.png", assets[1].Name)
				assert.True(t, assets[1].Missing)
			})

			t.Run("rejects empty id", func(t *testing.T) {
				err := s.Save(ctx, Record{})
				assert.True(t, errors.Is(err, ErrInvalid))
			})
		})
	}
}

func TestRedisStore_FailedIndexLeavesNoRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	// A string under the index key makes ZADD fail with WRONGTYPE.
	require.NoError(t, mr.Set(redisIndexKey, "not-a-zset"))

	err = s.Save(ctx, fixture("r1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExists))
	assert.False(t, mr.Exists(redisRecordPrefix+"r1"))
	_, err = s.Load(ctx, "r1")
	assert.True(t, errors.Is(err, ErrNotFound))

	mr.Del(redisIndexKey)
	require.NoError(t, s.Save(ctx, fixture("r1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))))
	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Backend())

	s, err = Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Backend())
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestRecordHelpers(t *testing.T) {
	r := fixture("r", time.Now())
	actions := r.PriorActions()
	require.Len(t, actions, 3)
	assert.JSONEq(t, `{"action":"type","text":"alice"}`, string(actions[1]))

	sum := r.Summarize()
	assert.Equal(t, 3, sum.Steps)
	assert.Len(t, r.Assets(), 2)
}

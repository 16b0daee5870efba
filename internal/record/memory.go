// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Backend() string { return "memory" }

// Save stores a deep copy of r.
func (s *MemoryStore) Save(_ context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	buf, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return ErrExists
	}
	s.records[r.ID] = buf
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	buf, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	var r Record
	if err := json.Unmarshal(buf, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		r, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Summarize())
	}
	return sortAndLimit(out, limit), nil
}

func (s *MemoryStore) LoadAssets(ctx context.Context, id string) ([]Asset, error) {
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Assets(), nil
}

func (s *MemoryStore) Check(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// sortAndLimit orders newest first; limit <= 0 means all.
func sortAndLimit(in []Summary, limit int) []Summary {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].CompletedAt.Equal(in[j].CompletedAt) {
			return in[i].ID < in[j].ID
		}
		return in[i].CompletedAt.After(in[j].CompletedAt)
	})
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "rec:"

// BadgerStore keeps records as JSON values under "rec:<id>".
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens a badger database at path. An empty path opens an
// in-memory instance.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Backend() string { return "badger" }

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Check(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func (s *BadgerStore) Save(_ context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	key := []byte(badgerPrefix + r.ID)
	buf, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return ErrExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, buf)
	})
}

func (s *BadgerStore) Load(_ context.Context, id string) (Record, error) {
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (s *BadgerStore) List(_ context.Context, limit int) ([]Summary, error) {
	out := []Summary{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			out = append(out, r.Summarize())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortAndLimit(out, limit), nil
}

func (s *BadgerStore) LoadAssets(ctx context.Context, id string) ([]Asset, error) {
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Assets(), nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/testgen/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore persists records in a local SQLite database.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Backend() string { return "sqlite" }

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Check(ctx context.Context) error {
	return sqlite.QuickCheck(ctx, s.DB)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		remote_session_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		goal TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		device_json TEXT NOT NULL,
		step_count INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL,
		completed_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_completed ON records(completed_at_ms DESC);

	CREATE TABLE IF NOT EXISTS steps (
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		data TEXT NOT NULL,
		asset_json TEXT,
		PRIMARY KEY (record_id, idx)
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Save inserts r and its steps in one transaction.
func (s *SqliteStore) Save(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	device, err := json.Marshal(r.Device)
	if err != nil {
		return fmt.Errorf("encode device: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", r.ID).Scan(&exists)
	switch {
	case err == nil:
		return ErrExists
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, session_id, remote_session_id, request_id, goal, platform, device_json, step_count, created_at_ms, completed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.RemoteSessionID, r.RequestID, r.Goal, r.Platform, string(device),
		len(r.Steps), r.CreatedAt.UnixMilli(), r.CompletedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO steps (record_id, idx, data, asset_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range r.Steps {
		var asset sql.NullString
		if st.Asset != nil {
			b, err := json.Marshal(st.Asset)
			if err != nil {
				return fmt.Errorf("encode asset: %w", err)
			}
			asset = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, st.Index, string(st.Data), asset); err != nil {
			return fmt.Errorf("insert step %d: %w", st.Index, err)
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) Load(ctx context.Context, id string) (Record, error) {
	var (
		r                      Record
		device                 string
		createdMS, completedMS int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, session_id, remote_session_id, request_id, goal, platform, device_json, created_at_ms, completed_at_ms
		FROM records WHERE id = ?`, id).
		Scan(&r.ID, &r.SessionID, &r.RemoteSessionID, &r.RequestID, &r.Goal, &r.Platform, &device, &createdMS, &completedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(device), &r.Device); err != nil {
		return Record{}, fmt.Errorf("decode device: %w", err)
	}
	r.CreatedAt = time.UnixMilli(createdMS).UTC()
	r.CompletedAt = time.UnixMilli(completedMS).UTC()

	rows, err := s.DB.QueryContext(ctx, "SELECT idx, data, asset_json FROM steps WHERE record_id = ? ORDER BY idx", id)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()

	r.Steps = []Step{}
	for rows.Next() {
		var (
			st    Step
			data  string
			asset sql.NullString
		)
		if err := rows.Scan(&st.Index, &data, &asset); err != nil {
			return Record{}, err
		}
		st.Data = json.RawMessage(data)
		if asset.Valid {
			st.Asset = &Asset{}
			if err := json.Unmarshal([]byte(asset.String), st.Asset); err != nil {
				return Record{}, fmt.Errorf("decode asset: %w", err)
			}
		}
		r.Steps = append(r.Steps, st)
	}
	return r, rows.Err()
}

func (s *SqliteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, session_id, goal, platform, device_json, step_count, completed_at_ms
		FROM records ORDER BY completed_at_ms DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum         Summary
			device      string
			completedMS int64
		)
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Goal, &sum.Platform, &device, &sum.Steps, &completedMS); err != nil {
			return nil, err
		}
		var d Device
		if err := json.Unmarshal([]byte(device), &d); err == nil {
			sum.Device = d.Name
		}
		sum.CompletedAt = time.UnixMilli(completedMS).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SqliteStore) LoadAssets(ctx context.Context, id string) ([]Asset, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, "SELECT asset_json FROM steps WHERE record_id = ? AND asset_json IS NOT NULL ORDER BY idx", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a Asset
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

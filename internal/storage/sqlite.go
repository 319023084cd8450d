// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/delve/internal/model"
)

// sqliteSchema holds one row per session. The record document is kept as
// JSON in body; the other columns are denormalized for listing.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	turn_count  INTEGER NOT NULL,
	has_canvas  INTEGER NOT NULL,
	preview     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps session records in a single sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path. The special path
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger.Named("sqlitestore")}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec model.Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	return s.upsert(ctx, s.db, rec)
}

// AttachCanvas implements Store.
func (s *SQLiteStore) AttachCanvas(ctx context.Context, id string, canvas *model.CanvasRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec, err := s.load(ctx, tx, id)
	if err != nil {
		return err
	}
	rec.Canvas = canvas
	if err := s.upsert(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (model.Record, error) {
	return s.load(ctx, s.db, id)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]model.SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, turn_count, has_canvas, preview, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	metas := []model.SessionMeta{}
	for rows.Next() {
		var (
			m                model.SessionMeta
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.TurnCount, &m.HasCanvas, &m.Preview, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		m.UpdatedAt = time.Unix(0, updated).UTC()
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, q querier, id string) (model.Record, error) {
	var body string
	err := q.QueryRowContext(ctx, "SELECT body FROM sessions WHERE id = ?", id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, fmt.Errorf("load session: %w", err)
	}

	var rec model.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return model.Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	rec.ID = id
	return rec, nil
}

func (s *SQLiteStore) upsert(ctx context.Context, q querier, rec model.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	meta := metaFromRecord(rec)
	_, err = q.ExecContext(ctx, `
		INSERT INTO sessions (id, title, turn_count, has_canvas, preview, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			turn_count = excluded.turn_count,
			has_canvas = excluded.has_canvas,
			preview = excluded.preview,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			body = excluded.body
	`, rec.ID, meta.Title, meta.TurnCount, meta.HasCanvas, meta.Preview,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

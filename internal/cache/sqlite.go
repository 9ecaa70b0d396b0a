// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	generation TEXT NOT NULL,
	key TEXT NOT NULL,
	status INTEGER NOT NULL,
	header TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_at_ms INTEGER NOT NULL,
	PRIMARY KEY (generation, key)
);
CREATE TABLE IF NOT EXISTS cache_meta (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB    *sql.DB
	stats counters
}

// NewSqliteStore opens (or creates) a SQLite cache store at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.EnsureSchema(db, sqliteSchemaVersion, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) Get(ctx context.Context, gen manifest.Generation, key string) (*Entry, error) {
	query := `SELECT status, header, body, stored_at_ms FROM cache_entries WHERE generation = ? AND key = ?`
	var (
		e        = Entry{Key: key}
		header   string
		storedAt int64
	)
	err := s.DB.QueryRowContext(ctx, query, string(gen), key).Scan(&e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.stats.observe(false)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("decode header for %s: %w", key, err)
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	s.stats.observe(true)
	return &e, nil
}

func (s *SqliteStore) Put(ctx context.Context, gen manifest.Generation, e *Entry) error {
	return s.PutAll(ctx, gen, []*Entry{e})
}

func (s *SqliteStore) PutAll(ctx context.Context, gen manifest.Generation, entries []*Entry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO cache_entries (generation, key, status, header, body, stored_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(generation, key) DO UPDATE SET
		status = excluded.status,
		header = excluded.header,
		body = excluded.body,
		stored_at_ms = excluded.stored_at_ms
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		header, err := json.Marshal(e.Header)
		if err != nil {
			return fmt.Errorf("encode header for %s: %w", e.Key, err)
		}
		body := e.Body
		if body == nil {
			body = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, string(gen), e.Key, e.Status, string(header), body, e.StoredAt.UnixMilli()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.stats.sets.Add(int64(len(entries)))
	return nil
}

func (s *SqliteStore) Generations(ctx context.Context) ([]manifest.Generation, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT generation FROM cache_entries ORDER BY generation`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []manifest.Generation
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, manifest.Generation(g))
	}
	return out, rows.Err()
}

func (s *SqliteStore) DeleteGeneration(ctx context.Context, gen manifest.Generation) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE generation = ?`, string(gen)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_meta WHERE name = 'active' AND value = ?`, string(gen)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Active(ctx context.Context) (manifest.Generation, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM cache_meta WHERE name = 'active'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return manifest.Generation(v), err
}

func (s *SqliteStore) SetActive(ctx context.Context, gen manifest.Generation) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO cache_meta (name, value) VALUES ('active', ?)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, string(gen))
	return err
}

func (s *SqliteStore) Stats() Stats { return s.stats.snapshot() }

// HealthCheck pings the database.
func (s *SqliteStore) HealthCheck(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// SPDX-License-Identifier: MIT

package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/offlinekit/internal/persistence/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS progress_records (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
`

// Sqlite stores records in one table.
type Sqlite struct {
	DB *sql.DB
}

// OpenSqlite opens (or creates) the database at dbPath.
func OpenSqlite(dbPath string) (*Sqlite, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.EnsureSchema(db, sqliteSchemaVersion, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("progress records: migration failed: %w", err)
	}
	return &Sqlite{DB: db}, nil
}

func (s *Sqlite) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM progress_records WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (s *Sqlite) PutAll(ctx context.Context, values map[string][]byte) error {
	for k := range values {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO progress_records (key, value, updated_at_ms) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
			k, v, now); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *Sqlite) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM progress_records WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// HealthCheck pings the database.
func (s *Sqlite) HealthCheck(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Sqlite) Close() error { return s.DB.Close() }

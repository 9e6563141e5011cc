// Package sqlite provides a SQLite-backed LocalStore, the on-device source
// of truth for offline reads. Uses the pure-Go modernc.org/sqlite driver so
// the client builds without cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nutrilog/datasync/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  payload    BLOB NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);`

// Store persists entity payloads in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ store.LocalStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the store at path. Use ":memory:" for an
// ephemeral database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Save(ctx context.Context, collection, id string, payload []byte) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO entities (collection, id, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		collection, id, payload, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, bool, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload FROM entities WHERE collection = ? AND id = ?`,
		collection, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return payload, true, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, payload, updated_at FROM entities WHERE collection = ? ORDER BY id`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var rec store.Record
		var updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		rec.UpdatedAt = fromMillis(updatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.sqlDB.Close()
}

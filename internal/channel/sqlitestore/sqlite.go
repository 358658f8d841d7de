// Package sqlitestore is the durable channel path: a SQLite file every
// citejump process on the machine can reach.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/csheth/citejump/internal/channel"
)

const schema = `
CREATE TABLE IF NOT EXISTS channel_entries (
    key          TEXT PRIMARY KEY,
    document_id  TEXT NOT NULL,
    payload      BLOB NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channel_entries_created ON channel_entries(created_at);
`

type row struct {
	Key        string `db:"key"`
	DocumentID string `db:"document_id"`
	Payload    []byte `db:"payload"`
	CreatedAt  int64  `db:"created_at"`
}

func (r row) entry() channel.Entry {
	return channel.Entry{
		Key:        r.Key,
		DocumentID: r.DocumentID,
		Payload:    r.Payload,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Store keeps channel entries in SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Put(ctx context.Context, entry channel.Entry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO channel_entries (key, document_id, payload, created_at)
		VALUES (:key, :document_id, :payload, :created_at)`,
		row{
			Key:        entry.Key,
			DocumentID: entry.DocumentID,
			Payload:    entry.Payload,
			CreatedAt:  entry.CreatedAt.UnixNano(),
		})
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Take deletes and returns the entry in one statement, so concurrent readers
// in other processes cannot both receive it.
func (s *Store) Take(ctx context.Context, key string) (channel.Entry, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		DELETE FROM channel_entries WHERE key = ?
		RETURNING key, document_id, payload, created_at`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return channel.Entry{}, channel.ErrNotFound
	}
	if err != nil {
		return channel.Entry{}, fmt.Errorf("take entry: %w", err)
	}
	return r.entry(), nil
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_entries WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep entries: %w", err)
	}
	return int(n), nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM channel_entries`); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

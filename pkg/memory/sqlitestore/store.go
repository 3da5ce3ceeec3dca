// Package sqlitestore is the embedded memory backend. Records live in one SQLite table with an
// explicit expiry column; expired rows are deleted lazily when they are read.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "chat_memory"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the embedded store configuration
type Config struct {
	Path  string
	Table string
	Now   func() time.Time // clock used for expiry; defaults to time.Now
}

// Store implements memory.Store on SQLite.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// New opens (or creates) the database at cfg.Path and provisions the table.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s, err := NewWithDB(db, cfg.Table, cfg.Now)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an open database.
func NewWithDB(db *sql.DB, table string, now func() time.Time) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if now == nil {
		now = time.Now
	}

	s := &Store{db: db, table: table, now: now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the memory table
func (s *Store) initSchema() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			memory_id TEXT PRIMARY KEY,
			message_payload TEXT NOT NULL,
			expires_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_expires ON %[1]s(expires_at);
	`, s.table)
	_, err := s.db.Exec(schema)
	return err
}

// Name returns "sqlite".
func (s *Store) Name() string { return "sqlite" }

// Get returns the record for memoryID. An expired row is deleted and reported as absent.
func (s *Store) Get(ctx context.Context, memoryID string) (*memory.Record, error) {
	var (
		payload   string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT message_payload, expires_at FROM %s WHERE memory_id = ?", s.table),
		memoryID,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}

	now := s.now()
	rec := &memory.Record{MemoryID: memoryID}
	if expiresAt.Valid {
		exp := time.UnixMilli(expiresAt.Int64)
		if !now.Before(exp) {
			if _, err := s.db.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE memory_id = ? AND expires_at <= ?", s.table),
				memoryID, now.UnixMilli(),
			); err != nil {
				return nil, fmt.Errorf("failed to delete expired memory: %w", err)
			}
			return nil, nil
		}
		rec.ExpiresAt = &exp
	}

	rec.Messages, err = memory.DecodeMessages([]byte(payload))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put upserts the record for memoryID.
func (s *Store) Put(ctx context.Context, memoryID string, messages []chat.Message, ttl time.Duration) error {
	payload, err := memory.EncodeMessages(messages)
	if err != nil {
		return err
	}

	var expiresAt sql.NullInt64
	if exp := memory.ExpiresAt(s.now(), ttl); exp != nil {
		expiresAt = sql.NullInt64{Int64: exp.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (memory_id, message_payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			message_payload = excluded.message_payload,
			expires_at = excluded.expires_at
	`, s.table), memoryID, string(payload), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// Delete removes the record for memoryID.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE memory_id = ?", s.table),
		memoryID,
	); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

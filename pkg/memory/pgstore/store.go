// Package pgstore is the Postgres memory backend. Records live in one table with an explicit
// expires_at column; the table is created on first use and expired rows are deleted lazily on
// read.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "chat_memory"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the Postgres connection settings
type Config struct {
	DSN   string           `json:"dsn" mapstructure:"dsn"`
	Table string           `json:"table" mapstructure:"table"`
	Now   func() time.Time `json:"-" mapstructure:"-"`
}

// Store implements memory.Store on Postgres.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool
}

// New opens a connection pool through the pgx database/sql driver.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	s, err := NewWithDB(db, cfg.Table, cfg.Now)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an open database. No statement is issued until the first operation.
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
	return &Store{db: db, table: table, now: now}, nil
}

// ensureSchema creates the table once per store. A failed attempt is retried on the next call.
func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		memory_id TEXT PRIMARY KEY,
		message_payload JSONB NOT NULL,
		expires_at TIMESTAMPTZ
	)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create memory table: %w", err)
	}
	s.schemaReady = true
	return nil
}

// Name returns "postgres".
func (s *Store) Name() string { return "postgres" }

// Get returns the record for memoryID. An expired row is deleted and reported as absent.
func (s *Store) Get(ctx context.Context, memoryID string) (*memory.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var (
		payload   []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT message_payload, expires_at FROM %s WHERE memory_id = $1", s.table),
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
		if !now.Before(expiresAt.Time) {
			// only delete if no fresher save replaced the row meanwhile
			if _, err := s.db.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE memory_id = $1 AND expires_at <= $2", s.table),
				memoryID, now,
			); err != nil {
				return nil, fmt.Errorf("failed to delete expired memory: %w", err)
			}
			return nil, nil
		}
		exp := expiresAt.Time
		rec.ExpiresAt = &exp
	}

	rec.Messages, err = memory.DecodeMessages(payload)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put upserts the record for memoryID.
func (s *Store) Put(ctx context.Context, memoryID string, messages []chat.Message, ttl time.Duration) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	payload, err := memory.EncodeMessages(messages)
	if err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if exp := memory.ExpiresAt(s.now(), ttl); exp != nil {
		expiresAt = sql.NullTime{Time: *exp, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (memory_id, message_payload, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (memory_id) DO UPDATE SET
			message_payload = EXCLUDED.message_payload,
			expires_at = EXCLUDED.expires_at`, s.table),
		memoryID, string(payload), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// Delete removes the record for memoryID.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE memory_id = $1", s.table),
		memoryID,
	); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

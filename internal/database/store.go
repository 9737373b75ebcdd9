package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when an insert hits a unique constraint
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update finds the row in a different state
	ErrConflict = errors.New("record changed concurrently")
)

const uniqueViolation = "23505"

// Store is the PostgreSQL persistence layer for conversations, messages,
// issues, tags, customers, knowledge entries and auto-reply logs.
type Store struct {
	db *sqlx.DB
}

// NewStore creates the store and makes sure the schema exists
func NewStore(db *sqlx.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for store")
	}

	store := &Store{db: db}
	if err := store.CreateTables(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// DB returns the underlying connection pool
func (s *Store) DB() *sqlx.DB {
	return s.db
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		sentiment VARCHAR(20) NOT NULL DEFAULT 'neutral',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		channel VARCHAR(50) NOT NULL DEFAULT '',
		customer_id BIGINT REFERENCES customers(id),
		contact_address TEXT,
		auto_reply_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		external_id TEXT,
		external_party_id TEXT NOT NULL,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		content TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (conversation_id, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_party_created ON messages(external_party_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		trigger_message_id BIGINT NOT NULL UNIQUE REFERENCES messages(id),
		customer_id BIGINT REFERENCES customers(id),
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		question_summary TEXT NOT NULL,
		sentiment VARCHAR(20) NOT NULL DEFAULT 'neutral',
		suggested_reply TEXT,
		timeout_at TIMESTAMPTZ NOT NULL,
		relevance_score INT,
		reply_message_id BIGINT UNIQUE REFERENCES messages(id),
		replied_by TEXT,
		auto_replied BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		replied_at TIMESTAMPTZ,
		resolved_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT issues_resolved_stamped CHECK (status <> 'RESOLVED' OR resolved_at IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_status_timeout ON issues(status, timeout_at)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_conversation ON issues(conversation_id)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		usage_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS issue_tags (
		issue_id BIGINT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (issue_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS knowledge_entries (
		id BIGSERIAL PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT,
		keywords TEXT[] NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INT NOT NULL DEFAULT 0,
		embedding vector,
		embedding_family TEXT,
		embedding_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		embedding_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_active_family ON knowledge_entries(is_active, embedding_family)`,
	`CREATE TABLE IF NOT EXISTS auto_reply_logs (
		id BIGSERIAL PRIMARY KEY,
		conversation_id TEXT,
		message_id BIGINT,
		query TEXT NOT NULL,
		matched BOOLEAN NOT NULL,
		confidence INT NOT NULL DEFAULT 0,
		knowledge_entry_id BIGINT,
		is_generated BOOLEAN NOT NULL DEFAULT FALSE,
		source VARCHAR(20) NOT NULL,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auto_reply_logs_created ON auto_reply_logs(created_at DESC)`,
}

// CreateTables creates every table and index used by the store
func (s *Store) CreateTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// mapErr turns driver errors into the store sentinels
func mapErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", msg, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

// withTx runs fn inside a transaction. fn must not call external services.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// New opens the PostgreSQL connection pool. The pgvector extension is
// created by NewStore.
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// readOnly runs fn inside a READ ONLY transaction that is always rolled back
func readOnly(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("failed to roll back read-only transaction: %w", rbErr)
		}
	}()
	return fn(tx)
}

// ExecuteReadOnlyQuery selects rows into dest without write access
func ExecuteReadOnlyQuery(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	return readOnly(ctx, db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, dest, query, args...); err != nil {
			return fmt.Errorf("failed to execute read-only query: %w", err)
		}
		return nil
	})
}

// ExecuteReadOnlyQuerySingle is ExecuteReadOnlyQuery for a single row
func ExecuteReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	return readOnly(ctx, db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, dest, query, args...); err != nil {
			return fmt.Errorf("failed to execute read-only query: %w", err)
		}
		return nil
	})
}

// ExecuteReadOnlyPing checks that the pool can serve a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	return readOnly(ctx, db, func(tx *sqlx.Tx) error {
		var one int
		if err := tx.GetContext(ctx, &one, "SELECT 1"); err != nil {
			return fmt.Errorf("failed to execute read-only ping query: %w", err)
		}
		return nil
	})
}

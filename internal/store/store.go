package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Schema creates the receipt ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS order_receipts (
	order_id          TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	payment_method    TEXT NOT NULL,
	payment_status    TEXT NOT NULL,
	payment_reference TEXT NOT NULL DEFAULT '',
	intent_uri        TEXT NOT NULL DEFAULT '',
	asserted_by       TEXT NOT NULL,
	total             NUMERIC(12,2) NOT NULL,
	payload           JSONB,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_receipts_user ON order_receipts (user_id, created_at DESC);`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the ledger table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

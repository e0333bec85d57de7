// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"travel-assistant/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL connection used by the receipts archive and
// the country facts tool.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pool sized from cfg. Connections are made lazily; call
// Ping to check the database.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping checks the database connection.
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schema holds the tables the receipts archive and the country facts tool
// read and write. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS turn_receipts (
		id         UUID PRIMARY KEY,
		thread_id  TEXT NOT NULL,
		intent     TEXT NOT NULL,
		reply      TEXT NOT NULL,
		facts      JSONB NOT NULL,
		decisions  JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS turn_receipts_thread_idx ON turn_receipts (thread_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS country_facts (
		name       TEXT PRIMARY KEY,
		capital    TEXT NOT NULL,
		currency   TEXT NOT NULL,
		languages  TEXT NOT NULL,
		plug_types TEXT NOT NULL,
		visa_note  TEXT NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates the assistant's tables when they are missing.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// GetDB returns the underlying *sql.DB.
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}

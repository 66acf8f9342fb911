package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

const rateLimitSchema = `
CREATE TABLE IF NOT EXISTS vk_rate_limit (
	device_id  TEXT PRIMARY KEY,
	not_before BIGINT NOT NULL
)`

// PostgresStorage persists not-before timestamps in a single-row-per-
// device table, as unix milliseconds.
type PostgresStorage struct {
	db *sqlx.DB
}

// NewPostgresStorage connects, verifies the connection and ensures the
// backing table exists.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, rateLimitSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create rate limit table: %w", err)
	}

	return &PostgresStorage{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// GetNotBefore returns the stored timestamp, zero when none.
func (s *PostgresStorage) GetNotBefore(ctx context.Context, deviceID string) (time.Time, error) {
	var millis int64
	err := s.db.GetContext(ctx, &millis,
		`SELECT not_before FROM vk_rate_limit WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get not-before failed: %w", err)
	}
	return time.UnixMilli(millis), nil
}

// SetNotBefore stores the timestamp, inserting or updating the device row.
func (s *PostgresStorage) SetNotBefore(ctx context.Context, deviceID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vk_rate_limit (device_id, not_before) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET not_before = EXCLUDED.not_before`,
		deviceID, t.UnixMilli())
	if err != nil {
		return fmt.Errorf("set not-before failed: %w", err)
	}
	return nil
}

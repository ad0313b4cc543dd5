package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore handles job persistence using PostgreSQL
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a new PostgreSQL-backed job store
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pooling configuration
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}

	// Create tables if they don't exist
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// migrate creates the jobs table
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hazard_jobs (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		num_tasks INTEGER NOT NULL DEFAULT 0,
		num_realizations INTEGER NOT NULL DEFAULT 0,
		digest TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_hazard_jobs_status ON hazard_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_hazard_jobs_created_at ON hazard_jobs(created_at);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/therealutkarshpriyadarshi/render/internal/config"
)

// DB wraps the database connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks if the database is healthy
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// schema is applied idempotently at startup
const schema = `
CREATE TABLE IF NOT EXISTS timelines (
	id               TEXT PRIMARY KEY,
	data             JSONB NOT NULL,
	active_render_id TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS render_jobs (
	id               TEXT PRIMARY KEY,
	timeline_id      TEXT NOT NULL,
	render_id        TEXT NOT NULL UNIQUE,
	bucket           TEXT NOT NULL,
	frames_per_chunk INTEGER NOT NULL,
	chunk_count      INTEGER NOT NULL,
	status           TEXT NOT NULL,
	output_url       TEXT NOT NULL DEFAULT '',
	output_size      BIGINT NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	completed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs (status);
CREATE INDEX IF NOT EXISTS idx_render_jobs_timeline ON render_jobs (timeline_id);

CREATE TABLE IF NOT EXISTS proxy_records (
	id               TEXT PRIMARY KEY,
	original_url     TEXT NOT NULL UNIQUE,
	stream_id        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	proxy_url        TEXT NOT NULL DEFAULT '',
	playback_url     TEXT NOT NULL DEFAULT '',
	thumbnail_url    TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_proxy_records_status ON proxy_records (status, updated_at);
`

// Migrate creates the tables the service needs
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing only if fn succeeds
func (db *DB) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Package database manages PostgreSQL connections and provides the data access layer.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// DB wraps the PostgreSQL connection pool and provides query methods.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies it with a ping.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// migrationLockID keeps replicas from racing on DDL. It is unique to this
// service so other apps on the same instance are unaffected.
const migrationLockID int64 = 0x4D42_4501

const schema = `
CREATE TABLE IF NOT EXISTS express_requests (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL DEFAULT '',
	variant        TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL DEFAULT '',
	routing_kind   TEXT NOT NULL DEFAULT '',
	provider       TEXT NOT NULL,
	model          TEXT NOT NULL,
	input_tokens   BIGINT NOT NULL DEFAULT 0,
	output_tokens  BIGINT NOT NULL DEFAULT 0,
	total_tokens   BIGINT NOT NULL DEFAULT 0,
	cost_usd       DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms     BIGINT NOT NULL DEFAULT 0,
	fallback_used  BOOLEAN NOT NULL DEFAULT FALSE,
	complexity     INTEGER NOT NULL DEFAULT 0,
	savings_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	timestamp      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS budgets (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	limit_usd   DOUBLE PRECISION NOT NULL,
	spent_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	period_days INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (scope, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_express_requests_user_id ON express_requests(user_id);
CREATE INDEX IF NOT EXISTS idx_express_requests_timestamp ON express_requests(timestamp);
CREATE INDEX IF NOT EXISTS idx_express_requests_model ON express_requests(model);
CREATE INDEX IF NOT EXISTS idx_express_requests_provider ON express_requests(provider);
`

// Migrate creates the schema. An advisory lock serializes concurrent replicas.
func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.WithError(err).Warn("Failed to release migration lock")
		}
	}()

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New connects to PostgreSQL and applies migrations.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{
		pool:   pool,
		logger: logging.Component("Database"),
	}

	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("database connected")
	return db, nil
}

// Close releases the connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// migrate creates the schema. Statements are idempotent so startup
// is safe against an existing database.
func (d *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			signal_id UUID NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			tier TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			target_price DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			expected_profit_min DOUBLE PRECISION NOT NULL DEFAULT 0,
			expected_profit_max DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			max_hold_seconds BIGINT NOT NULL,
			max_price DOUBLE PRECISION NOT NULL,
			min_price DOUBLE PRECISION NOT NULL,
			partial_exit_advised BOOLEAN NOT NULL DEFAULT FALSE,
			closed_at TIMESTAMPTZ,
			exit_price DOUBLE PRECISION,
			exit_reason TEXT,
			analysis JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol)`,

		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id BIGSERIAL PRIMARY KEY,
			position_id UUID NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			tier TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			profit_percent DOUBLE PRECISION NOT NULL,
			sim_final_value DOUBLE PRECISION NOT NULL,
			expectation_met BOOLEAN NOT NULL,
			max_profit_during_hold DOUBLE PRECISION NOT NULL,
			duration_hours DOUBLE PRECISION NOT NULL,
			exit_reason TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_symbol ON trade_outcomes(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_closed_at ON trade_outcomes(closed_at)`,

		`CREATE TABLE IF NOT EXISTS symbol_memory (
			symbol TEXT PRIMARY KEY,
			entries JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the shared connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs the schema migrations in order. Each statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateVehicleStates,
		migrationCreateCommandRequests,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(17) NOT NULL UNIQUE,
    make VARCHAR(50),
    model VARCHAR(255),
    year INT,
    nickname VARCHAR(255),
    color VARCHAR(50),
    capabilities JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_vin ON vehicles(vin);
`

// Latest snapshot per VIN. Commands and the HTTP layer only ever read the
// newest state, so the row is replaced in place rather than appended.
const migrationCreateVehicleStates = `
CREATE TABLE IF NOT EXISTS vehicle_states (
    vin VARCHAR(17) PRIMARY KEY,
    state JSONB NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const migrationCreateCommandRequests = `
CREATE TABLE IF NOT EXISTS command_requests (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(17) NOT NULL,
    command VARCHAR(50) NOT NULL,
    request_id VARCHAR(100),
    outcome VARCHAR(20) NOT NULL,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_requests_vin ON command_requests(vin);
CREATE INDEX IF NOT EXISTS idx_command_requests_submitted_at ON command_requests(submitted_at);
`

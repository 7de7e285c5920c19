package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Executor is the subset of *pgxpool.Pool the repositories use.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var errMissingURL = errors.New("postgres: connection url is required")

// NewPool dials the database and verifies it answers.
func NewPool(ctx context.Context, url string, maxConns int32, log zerolog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errMissingURL
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "hydrocore"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Uint16("port", poolConfig.ConnConfig.Port).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected to postgres")

	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id                 TEXT PRIMARY KEY,
		mac_address        TEXT UNIQUE,
		device_name        TEXT NOT NULL UNIQUE,
		auto_mode          BOOLEAN NOT NULL DEFAULT FALSE,
		moisture_threshold DOUBLE PRECISION,
		light_threshold    DOUBLE PRECISION,
		pump_state         BOOLEAN NOT NULL DEFAULT FALSE,
		led_state          BOOLEAN NOT NULL DEFAULT FALSE,
		current_command    TEXT,
		calibration        JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id          TEXT PRIMARY KEY,
		device_id   TEXT NOT NULL REFERENCES devices (id) ON DELETE CASCADE,
		device_name TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		temperature DOUBLE PRECISION,
		humidity    DOUBLE PRECISION,
		moisture    DOUBLE PRECISION,
		light       DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_device_recorded_idx
		ON sensor_readings (device_id, recorded_at DESC)`,
}

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db Executor) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

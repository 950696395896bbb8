package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for database/sql and sqlx
)

const (
	pgMaxConnections    = int32(8)
	pgMinConnections    = int32(1)
	pgMaxOpenConns      = 16
	pgMaxIdleConns      = 4
	pgMaxConnLifetime   = time.Hour
	pgMaxConnIdleTime   = 5 * time.Minute
	pgHealthCheckPeriod = time.Minute
	pgConnectTimeout    = 5 * time.Second
	pqDriverName        = "postgres"
)

// ErrPostgresUnavailable wraps connection and ping failures.
var ErrPostgresUnavailable = errors.New("postgres unavailable")

// PostgresPGXPoolConfig parses the DSN into a pool configuration with the server defaults applied.
func PostgresPGXPoolConfig(dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("postgres dsn: %w", err))
	}

	poolConfig.MaxConns = pgMaxConnections
	poolConfig.MinConns = pgMinConnections
	poolConfig.MaxConnLifetime = pgMaxConnLifetime
	poolConfig.MaxConnIdleTime = pgMaxConnIdleTime
	poolConfig.HealthCheckPeriod = pgHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = pgConnectTimeout

	return poolConfig, nil
}

// OpenPGXPool opens and pings a pgx pool.
func OpenPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := PostgresPGXPoolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	return pool, nil
}

// OpenSQLDB opens and pings a database/sql handle using lib/pq.
func OpenSQLDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(pqDriverName, dsn)
	if err != nil {
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	configureSQLPool(db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	return db, nil
}

// OpenSQLX opens and pings an sqlx handle using lib/pq.
func OpenSQLX(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(pqDriverName, dsn)
	if err != nil {
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	configureSQLPool(db.DB)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrPostgresUnavailable, err)
	}

	return db, nil
}

func configureSQLPool(db *sql.DB) {
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgMaxConnLifetime)
	db.SetConnMaxIdleTime(pgMaxConnIdleTime)
}

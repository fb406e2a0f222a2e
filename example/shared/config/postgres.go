package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/AntonStoeckl/book-lending-go/lending/postgresengine"
)

const driverPostgres = "postgres"

// PGXPoolConfig creates a pgxpool.Config from the postgres settings.
func (c PostgresConfig) PGXPoolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	poolConfig.MaxConns = int32(c.MaxConns) //nolint:gosec
	poolConfig.MinConns = int32(c.MinConns) //nolint:gosec
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	return poolConfig, nil
}

// NewPGXPool opens a pgx pool and verifies the connection.
func (c PostgresConfig) NewPGXPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := c.PGXPoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", pingErr)
	}

	return pool, nil
}

// NewSQLDB opens a database/sql handle with the lib/pq driver and verifies the connection.
func (c PostgresConfig) NewSQLDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	c.configurePool(db)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", pingErr)
	}

	return db, nil
}

// NewSQLX opens a sqlx handle with the lib/pq driver and verifies the connection.
func (c PostgresConfig) NewSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverPostgres, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	c.configurePool(db.DB)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", pingErr)
	}

	return db, nil
}

func (c PostgresConfig) configurePool(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxConns)
	db.SetMaxIdleConns(c.MinConns)
	db.SetConnMaxLifetime(c.MaxConnLifetime)
	db.SetConnMaxIdleTime(c.MaxConnIdleTime)
}

// EngineOptions returns the postgres engine options for the configured table names.
func (c Config) EngineOptions() []postgresengine.Option {
	return []postgresengine.Option{
		postgresengine.WithBooksTableName(c.Tables.Books),
		postgresengine.WithLoansTableName(c.Tables.Loans),
	}
}

// NewPostgresEngine connects with the configured adapter and returns the engine together with a close function.
func (c Config) NewPostgresEngine(
	ctx context.Context,
	options ...postgresengine.Option,
) (*postgresengine.Engine, func(), error) {

	options = append(c.EngineOptions(), options...)

	switch c.Adapter {
	case AdapterPGXPool:
		pool, err := c.Postgres.NewPGXPool(ctx)
		if err != nil {
			return nil, nil, err
		}

		engine, err := postgresengine.NewEngineFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		return engine, pool.Close, nil

	case AdapterSQLDB:
		db, err := c.Postgres.NewSQLDB(ctx)
		if err != nil {
			return nil, nil, err
		}

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return engine, func() { _ = db.Close() }, nil

	case AdapterSQLX:
		db, err := c.Postgres.NewSQLX(ctx)
		if err != nil {
			return nil, nil, err
		}

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return engine, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: adapter %q has no postgres engine", ErrInvalidConfig, c.Adapter)
	}
}

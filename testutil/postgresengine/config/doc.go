// Package config provides PostgreSQL database configuration for lending store tests.
//
// It contains factory functions for the three connection types supported by the
// postgres engine (pgx.Pool, sql.DB, sqlx.DB), all pointing at the test database.
package config

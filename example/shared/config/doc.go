// Package config loads the deployment configuration of the lending engine.
//
// Values come from defaults, an optional YAML file and LENDING_ prefixed environment variables,
// in increasing precedence. Nested keys map to environment variables with underscores,
// e.g. postgres.dsn is LENDING_POSTGRES_DSN.
//
// The package also creates the database handles for the three supported drivers
// (pgx.Pool, sql.DB with lib/pq, sqlx.DB) and the postgres engine on top of them.
package config

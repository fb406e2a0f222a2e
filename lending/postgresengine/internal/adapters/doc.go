// Package adapters provide database adapter implementations for the PostgreSQL lending engine.
//
// Three PostgreSQL client libraries are supported: pgx.Pool, sql.DB, and sqlx.DB.
// All adapters present the same DBAdapter interface, so the engine builds its SQL once
// and runs it unchanged on whichever connection type the caller provides.
package adapters

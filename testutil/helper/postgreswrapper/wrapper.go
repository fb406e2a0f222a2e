package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/book-lending-go/lending/postgresengine"
	"github.com/AntonStoeckl/book-lending-go/testutil/postgresengine/config"
)

// Adapter type constants, selected with the ADAPTER_TYPE environment variable.
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLX    = "sqlx.db"
)

// Wrapper abstracts over the connection types the postgres engine supports.
type Wrapper interface {
	GetEngine() *postgresengine.Engine
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	engine *postgresengine.Engine
}

func (w *PGXPoolWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db     *sql.DB
	engine *postgresengine.Engine
}

func (w *SQLDBWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db     *sqlx.DB
	engine *postgresengine.Engine
}

func (w *SQLXWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE and makes sure the schema exists.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	var wrapper Wrapper

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
		require.NoError(t, err, "error connecting to DB pool in test setup")

		engine, err := postgresengine.NewEngineFromPGXPool(connPool, options...)
		require.NoError(t, err, "error creating engine in test setup")

		wrapper = &PGXPoolWrapper{pool: connPool, engine: engine}

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		require.NoError(t, err, "error creating engine in test setup")

		wrapper = &SQLDBWrapper{db: db, engine: engine}

	case typeSQLX:
		db := config.PostgresSQLXTestConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		require.NoError(t, err, "error creating engine in test setup")

		wrapper = &SQLXWrapper{db: db, engine: engine}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}

	require.NoError(t, wrapper.GetEngine().CreateSchema(context.Background()), "error creating schema in test setup")

	return wrapper
}

// CleanUp truncates the loans and books tables of the wrapped engine.
func CleanUp(t testing.TB, wrapper Wrapper) {
	engine := wrapper.GetEngine()
	query := fmt.Sprintf("TRUNCATE TABLE %s, %s", engine.LoansTableName(), engine.BooksTableName())

	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err = w.pool.Exec(context.Background(), query)

	case *SQLDBWrapper:
		_, err = w.db.Exec(query)

	case *SQLXWrapper:
		_, err = w.db.Exec(query)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error cleaning up the lending tables")
}

// CountLoansOfBook counts all loans, active or returned, of one book.
func CountLoansOfBook(t testing.TB, wrapper Wrapper, bookID string) (total int, active int) {
	query := fmt.Sprintf(
		"SELECT count(*), count(*) FILTER (WHERE return_date IS NULL) FROM %s WHERE book_id = $1",
		wrapper.GetEngine().LoansTableName(),
	)

	var err error

	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		err = w.pool.QueryRow(context.Background(), query, bookID).Scan(&total, &active)

	case *SQLDBWrapper:
		err = w.db.QueryRow(query, bookID).Scan(&total, &active)

	case *SQLXWrapper:
		err = w.db.QueryRow(query, bookID).Scan(&total, &active)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}

	assert.NoError(t, err, "error counting loans")

	return total, active
}

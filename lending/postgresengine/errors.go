package postgresengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// PostgreSQL SQLSTATE codes the engine reacts to.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// sqlStateOf extracts the SQLSTATE code and the violated constraint from a pgx or lib/pq error.
func sqlStateOf(err error) (code string, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}

	return "", ""
}

// classifyDBError joins a database error with the lending error it represents.
// Constraint violations map to domain errors, transient conflicts to ErrStoreConflict,
// everything else to ErrStoreFailure.
func (e *Engine) classifyDBError(err error) error {
	code, constraint := sqlStateOf(err)

	switch code {
	case sqlStateUniqueViolation:
		if constraint == e.activeLoanIndexName() {
			return errors.Join(lending.ErrDuplicateActiveLoan, err)
		}

		return errors.Join(lending.ErrStoreFailure, err)

	case sqlStateForeignKeyViolation:
		return errors.Join(lending.ErrBookNotFound, err)

	case sqlStateCheckViolation:
		return errors.Join(lending.ErrInvalidBook, err)

	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return errors.Join(lending.ErrStoreConflict, err)

	default:
		return errors.Join(lending.ErrStoreFailure, err)
	}
}

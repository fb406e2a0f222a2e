package postgresengine

import (
	"context"
	"fmt"
	"strings"
)

const (
	// maxIdentifierLength is the number of bytes Postgres keeps of an identifier (NAMEDATALEN - 1).
	// Longer names are silently truncated, so derived index names would no longer match.
	maxIdentifierLength = 63

	activeLoanIndexSuffix     = "_active_user_book_idx"
	userBorrowDateIndexSuffix = "_user_borrow_date_idx"
	borrowDateIndexSuffix     = "_borrow_date_idx"

	// maxLoansTableNameLength leaves room for the longest index suffix.
	maxLoansTableNameLength = maxIdentifierLength - len(activeLoanIndexSuffix)
)

// activeLoanIndexName is the partial unique index that allows at most one active loan per borrower and book.
func (e *Engine) activeLoanIndexName() string {
	return e.loansTableName + activeLoanIndexSuffix
}

// schemaStatements returns the DDL for both tables and their indexes.
// Identifiers are quoted, so custom table names are safe to interpolate.
func (e *Engine) schemaStatements() []string {
	books := quoteIdentifier(e.booksTableName)
	loans := quoteIdentifier(e.loansTableName)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	title text NOT NULL,
	authors jsonb NOT NULL DEFAULT '[]'::jsonb,
	copies integer NOT NULL CHECK (copies > 0),
	available integer NOT NULL,
	CHECK (available >= 0 AND available <= copies)
)`, books),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	user_id uuid NOT NULL,
	book_id uuid NOT NULL REFERENCES %s (id),
	borrow_date timestamptz NOT NULL,
	return_date timestamptz NULL,
	renew_count integer NOT NULL DEFAULT 0 CHECK (renew_count >= 0)
)`, loans, books),

		fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (user_id, book_id) WHERE return_date IS NULL`,
			quoteIdentifier(e.activeLoanIndexName()), loans,
		),

		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s (user_id, borrow_date DESC)`,
			quoteIdentifier(e.loansTableName+userBorrowDateIndexSuffix), loans,
		),

		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s (borrow_date)`,
			quoteIdentifier(e.loansTableName+borrowDateIndexSuffix), loans,
		),
	}
}

// CreateSchema creates the books and loans tables with their constraints and indexes if they do not exist.
// The statements are idempotent, so it is safe to call on every start.
func (e *Engine) CreateSchema(ctx context.Context) error {
	observer, ctx := e.observe(ctx, operationCreateSchema, nil)

	for _, statement := range e.schemaStatements() {
		if _, _, execErr := e.executeStatement(ctx, operationCreateSchema, statement); execErr != nil {
			observer.finishError(execErr)
			return execErr
		}
	}

	e.logOperation(
		ctx,
		logMsgSchemaCreated,
		logAttrBooksTable, e.booksTableName,
		logAttrLoansTable, e.loansTableName,
	)

	observer.finishSuccess(nil)

	return nil
}

// quoteIdentifier renders a double-quoted SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/postgresengine/internal/adapters"
)

const (
	defaultBooksTableName = "books"
	defaultLoansTableName = "loans"

	colID         = "id"
	colTitle      = "title"
	colAuthors    = "authors"
	colCopies     = "copies"
	colAvailable  = "available"
	colUserID     = "user_id"
	colBookID     = "book_id"
	colBorrowDate = "borrow_date"
	colReturnDate = "return_date"
	colRenewCount = "renew_count"

	dialectPostgres = "postgres"
	castJsonb       = "?::jsonb"
)

// Log messages and attributes.
const (
	logMsgBuildQueryFailed       = "failed to build sql statement"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database statement execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgMalformedRecord        = "database row does not form a valid record"
	logMsgRowsAffectedFailed     = "failed to get rows affected count"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "lending store operation: "
	logMsgStockDecremented       = "stock decremented"
	logMsgStockIncremented       = "stock incremented"
	logMsgGuardRejected          = "conditional update rejected"
	logMsgLoanInserted           = "loan inserted"
	logMsgLoanRenewed            = "loan renewed"
	logMsgLoanReturned           = "loan returned"
	logMsgLoanDeleted            = "loan deleted"
	logMsgBookAdded              = "book added"
	logMsgSchemaCreated          = "schema created"
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrDurationMS            = "duration_ms"
	logAttrBookID                = "book_id"
	logAttrLoanID                = "loan_id"
	logAttrUserID                = "user_id"
	logAttrAvailable             = "available"
	logAttrCopies                = "copies"
	logAttrRenewCount            = "renew_count"
	logAttrReason                = "reason"
	logAttrRowsAffected          = "rows_affected"
	logAttrOperation             = "operation"
	logAttrBooksTable            = "books_table"
	logAttrLoansTable            = "loans_table"
	logReasonNoCopiesAvailable   = "no copies available"
	logReasonNothingToReturn     = "all copies in stock"
	logReasonLoanInactive        = "loan not found or inactive"
	logReasonRenewalCapReached   = "renewal cap reached"
	logReasonLoanNotReturned     = "loan not returned"
	logReasonDuplicateActiveLoan = "duplicate active loan"
)

type (
	sqlQueryString = string
	queryDuration  = time.Duration
)

// Engine is the PostgreSQL implementation of lending.InventoryStore and lending.LoanLedger.
// It leverages a database adapter and supports customizable table names and observability collectors.
type Engine struct {
	db               adapters.DBAdapter
	booksTableName   string
	loansTableName   string
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
	metricsCollector lending.MetricsCollector
	tracingCollector lending.TracingCollector
}

// NewEngineFromPGXPool creates a new Engine using a pgx Pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	e := &Engine{
		db:             db,
		booksTableName: defaultBooksTableName,
		loansTableName: defaultLoansTableName,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// BooksTableName returns the configured books table name.
func (e *Engine) BooksTableName() string {
	return e.booksTableName
}

// LoansTableName returns the configured loans table name.
func (e *Engine) LoansTableName() string {
	return e.loansTableName
}

// executeQuery executes the SQL query and returns rows with timing information.
func (e *Engine) executeQuery(ctx context.Context, operation string, sqlQuery sqlQueryString) (
	adapters.DBRows,
	queryDuration,
	error,
) {

	start := time.Now()
	rows, queryErr := e.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	e.logQueryWithDuration(ctx, sqlQuery, operation, duration)

	if queryErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)

		return nil, duration, e.classifyDBError(queryErr)
	}

	return rows, duration, nil
}

// executeStatement executes a statement that returns no rows and reports the affected row count.
func (e *Engine) executeStatement(ctx context.Context, operation string, sqlQuery sqlQueryString) (
	int64,
	queryDuration,
	error,
) {

	start := time.Now()
	result, execErr := e.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	e.logQueryWithDuration(ctx, sqlQuery, operation, duration)

	if execErr != nil {
		e.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

		return 0, duration, e.classifyDBError(execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		e.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)

		return 0, duration, errors.Join(lending.ErrStoreFailure, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		e.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// queryBooks runs a statement returning book rows and maps them to lending.Book.
func (e *Engine) queryBooks(ctx context.Context, operation string, sqlQuery sqlQueryString) (
	[]lending.Book,
	queryDuration,
	error,
) {

	rows, duration, queryErr := e.executeQuery(ctx, operation, sqlQuery)
	if queryErr != nil {
		return nil, duration, queryErr
	}
	defer e.closeRows(ctx, rows)

	books := make([]lending.Book, 0, 1)

	for rows.Next() {
		book, scanErr := e.scanBook(ctx, rows)
		if scanErr != nil {
			return nil, duration, scanErr
		}

		books = append(books, book)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)

		return nil, duration, e.classifyDBError(rowsErr)
	}

	return books, duration, nil
}

// queryLoans runs a statement returning loan rows and maps them to lending.Loan.
func (e *Engine) queryLoans(ctx context.Context, operation string, sqlQuery sqlQueryString) (
	[]lending.Loan,
	queryDuration,
	error,
) {

	rows, duration, queryErr := e.executeQuery(ctx, operation, sqlQuery)
	if queryErr != nil {
		return nil, duration, queryErr
	}
	defer e.closeRows(ctx, rows)

	loans := make([]lending.Loan, 0)

	for rows.Next() {
		loan, scanErr := e.scanLoan(ctx, rows)
		if scanErr != nil {
			return nil, duration, scanErr
		}

		loans = append(loans, loan)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)

		return nil, duration, e.classifyDBError(rowsErr)
	}

	return loans, duration, nil
}

type bookRow struct {
	id        string
	title     string
	authors   []byte
	copies    int
	available int
}

func (e *Engine) scanBook(ctx context.Context, rows adapters.DBRows) (lending.Book, error) {
	row := bookRow{}

	if scanErr := rows.Scan(&row.id, &row.title, &row.authors, &row.copies, &row.available); scanErr != nil {
		e.logError(ctx, logMsgScanRowFailed, scanErr)

		return lending.Book{}, errors.Join(lending.ErrStoreFailure, scanErr)
	}

	book, buildErr := buildBookFromRow(row)
	if buildErr != nil {
		e.logError(ctx, logMsgMalformedRecord, buildErr, logAttrBookID, row.id)

		return lending.Book{}, buildErr
	}

	return book, nil
}

func buildBookFromRow(row bookRow) (lending.Book, error) {
	id, parseErr := uuid.Parse(row.id)
	if parseErr != nil {
		return lending.Book{}, errors.Join(lending.ErrMalformedRecord, parseErr)
	}

	authors := make([]string, 0)
	if len(row.authors) > 0 {
		if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(row.authors, &authors); unmarshalErr != nil {
			return lending.Book{}, errors.Join(lending.ErrMalformedRecord, unmarshalErr)
		}
	}

	book := lending.Book{
		ID:        id,
		Title:     row.title,
		Authors:   authors,
		Copies:    row.copies,
		Available: row.available,
	}

	if validationErr := book.Validate(); validationErr != nil {
		return lending.Book{}, errors.Join(lending.ErrMalformedRecord, validationErr)
	}

	return book, nil
}

type loanRow struct {
	id         string
	userID     string
	bookID     string
	borrowDate time.Time
	returnDate *time.Time
	renewCount int
}

func (e *Engine) scanLoan(ctx context.Context, rows adapters.DBRows) (lending.Loan, error) {
	row := loanRow{}

	scanErr := rows.Scan(&row.id, &row.userID, &row.bookID, &row.borrowDate, &row.returnDate, &row.renewCount)
	if scanErr != nil {
		e.logError(ctx, logMsgScanRowFailed, scanErr)

		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, scanErr)
	}

	loan, buildErr := buildLoanFromRow(row)
	if buildErr != nil {
		e.logError(ctx, logMsgMalformedRecord, buildErr, logAttrLoanID, row.id)

		return lending.Loan{}, buildErr
	}

	return loan, nil
}

func buildLoanFromRow(row loanRow) (lending.Loan, error) {
	ids := make([]uuid.UUID, 3)

	for i, raw := range []string{row.id, row.userID, row.bookID} {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return lending.Loan{}, errors.Join(lending.ErrMalformedRecord, parseErr)
		}

		ids[i] = id
	}

	loan := lending.Loan{
		ID:         ids[0],
		UserID:     ids[1],
		BookID:     ids[2],
		BorrowDate: row.borrowDate.UTC(),
		RenewCount: row.renewCount,
	}

	if row.returnDate != nil {
		returnDate := row.returnDate.UTC()
		loan.ReturnDate = &returnDate
	}

	if validationErr := loan.Validate(); validationErr != nil {
		return lending.Loan{}, validationErr
	}

	return loan, nil
}

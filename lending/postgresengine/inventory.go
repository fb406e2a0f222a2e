package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

var bookColumns = []any{colID, colTitle, colAuthors, colCopies, colAvailable}

// AddBook inserts a new book with its stock counters.
func (e *Engine) AddBook(ctx context.Context, book lending.Book) error {
	observer, ctx := e.observe(ctx, operationAddBook, map[string]string{spanAttrBookID: book.ID.String()})

	if validationErr := book.Validate(); validationErr != nil {
		observer.finishError(validationErr)
		return validationErr
	}

	sqlQuery, buildErr := e.buildInsertBookQuery(book)
	if buildErr != nil {
		e.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrOperation, operationAddBook)
		observer.finishError(buildErr)

		return buildErr
	}

	_, duration, execErr := e.executeStatement(ctx, operationAddBook, sqlQuery)
	if execErr != nil {
		observer.finishError(execErr)
		return execErr
	}

	e.logOperation(
		ctx,
		logMsgBookAdded,
		logAttrBookID, book.ID.String(),
		logAttrCopies, book.Copies,
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.finishSuccess(nil)

	return nil
}

// FindBook returns the current state of a book or lending.ErrBookNotFound.
func (e *Engine) FindBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	observer, ctx := e.observe(ctx, operationFindBook, map[string]string{spanAttrBookID: bookID.String()})

	book, err := e.findBook(ctx, bookID)
	if err != nil {
		observer.finishError(err)
		return lending.Book{}, err
	}

	observer.finishSuccess(nil)

	return book, nil
}

// TryDecrement decrements the available copies by one, guarded by available > 0 in the same statement.
func (e *Engine) TryDecrement(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	observer, ctx := e.observe(ctx, operationTryDecrement, map[string]string{spanAttrBookID: bookID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(e.booksTableName).
		Set(goqu.Record{colAvailable: goqu.L("? - 1", goqu.C(colAvailable))}).
		Where(
			goqu.C(colID).Eq(bookID.String()),
			goqu.C(colAvailable).Gt(0),
		).
		Returning(bookColumns...).
		ToSQL()

	return e.adjustStock(ctx, observer, bookID, sqlQuery, buildErr, lending.ErrNoCopiesAvailable)
}

// TryIncrement increments the available copies by one, guarded by available < copies in the same statement.
func (e *Engine) TryIncrement(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	observer, ctx := e.observe(ctx, operationTryIncrement, map[string]string{spanAttrBookID: bookID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(e.booksTableName).
		Set(goqu.Record{colAvailable: goqu.L("? + 1", goqu.C(colAvailable))}).
		Where(
			goqu.C(colID).Eq(bookID.String()),
			goqu.C(colAvailable).Lt(goqu.C(colCopies)),
		).
		Returning(bookColumns...).
		ToSQL()

	return e.adjustStock(ctx, observer, bookID, sqlQuery, buildErr, lending.ErrNothingToReturn)
}

// adjustStock runs a guarded stock update and tells a rejected guard apart from a missing book.
func (e *Engine) adjustStock(
	ctx context.Context,
	observer *operationObserver,
	bookID uuid.UUID,
	sqlQuery sqlQueryString,
	buildErr error,
	guardErr error,
) (lending.Book, error) {

	if buildErr != nil {
		return lending.Book{}, e.failBuild(ctx, observer, buildErr)
	}

	books, duration, queryErr := e.queryBooks(ctx, observer.operation, sqlQuery)
	if queryErr != nil {
		observer.finishError(queryErr)
		return lending.Book{}, queryErr
	}

	if len(books) == 0 {
		if _, findErr := e.findBook(ctx, bookID); findErr != nil {
			observer.finishError(findErr)
			return lending.Book{}, findErr
		}

		reason := logReasonNoCopiesAvailable
		if errors.Is(guardErr, lending.ErrNothingToReturn) {
			reason = logReasonNothingToReturn
		}

		e.logOperation(ctx, logMsgGuardRejected, logAttrBookID, bookID.String(), logAttrReason, reason)
		observer.finishRejected(reason)

		return lending.Book{}, guardErr
	}

	book := books[0]

	msg := logMsgStockDecremented
	if observer.operation == operationTryIncrement {
		msg = logMsgStockIncremented
	}

	e.logOperation(
		ctx,
		msg,
		logAttrBookID, book.ID.String(),
		logAttrAvailable, book.Available,
		logAttrCopies, book.Copies,
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.recordAvailable(book)
	observer.finishSuccess(nil)

	return book, nil
}

func (e *Engine) findBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(e.booksTableName).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(bookID.String())).
		ToSQL()

	if buildErr != nil {
		e.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrOperation, operationFindBook)
		return lending.Book{}, errors.Join(lending.ErrStoreFailure, buildErr)
	}

	books, _, queryErr := e.queryBooks(ctx, operationFindBook, sqlQuery)
	if queryErr != nil {
		return lending.Book{}, queryErr
	}

	if len(books) == 0 {
		return lending.Book{}, lending.ErrBookNotFound
	}

	return books[0], nil
}

func (e *Engine) buildInsertBookQuery(book lending.Book) (sqlQueryString, error) {
	authors := book.Authors
	if authors == nil {
		authors = []string{}
	}

	authorsJSON, marshalErr := jsoniter.ConfigFastest.Marshal(authors)
	if marshalErr != nil {
		return "", errors.Join(lending.ErrInvalidBook, marshalErr)
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(e.booksTableName).
		Rows(goqu.Record{
			colID:        book.ID.String(),
			colTitle:     book.Title,
			colAuthors:   goqu.L(castJsonb, string(authorsJSON)),
			colCopies:    book.Copies,
			colAvailable: book.Available,
		}).
		ToSQL()

	if toSQLErr != nil {
		return "", errors.Join(lending.ErrStoreFailure, toSQLErr)
	}

	return sqlQuery, nil
}

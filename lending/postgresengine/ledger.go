package postgresengine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

var loanColumns = []any{colID, colUserID, colBookID, colBorrowDate, colReturnDate, colRenewCount}

// InsertActive stores a new active loan.
// The partial unique index on active loans turns a racing duplicate into lending.ErrDuplicateActiveLoan,
// a missing book into lending.ErrBookNotFound.
func (e *Engine) InsertActive(ctx context.Context, loan lending.Loan) (lending.Loan, error) {
	observer, ctx := e.observe(ctx, operationInsertActive, map[string]string{
		spanAttrLoanID: loan.ID.String(),
		spanAttrUserID: loan.UserID.String(),
		spanAttrBookID: loan.BookID.String(),
	})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Insert(e.loansTableName).
		Rows(goqu.Record{
			colID:         loan.ID.String(),
			colUserID:     loan.UserID.String(),
			colBookID:     loan.BookID.String(),
			colBorrowDate: lending.ToStoredTime(loan.BorrowDate),
			colRenewCount: 0,
		}).
		Returning(loanColumns...).
		ToSQL()

	if buildErr != nil {
		return lending.Loan{}, e.failBuild(ctx, observer, buildErr)
	}

	loans, duration, queryErr := e.queryLoans(ctx, operationInsertActive, sqlQuery)
	if queryErr != nil {
		if errors.Is(queryErr, lending.ErrDuplicateActiveLoan) {
			e.logOperation(ctx, logMsgGuardRejected,
				logAttrUserID, loan.UserID.String(),
				logAttrBookID, loan.BookID.String(),
				logAttrReason, logReasonDuplicateActiveLoan,
			)
		}

		observer.finishError(queryErr)

		return lending.Loan{}, queryErr
	}

	if len(loans) == 0 {
		noRowErr := errors.Join(lending.ErrStoreFailure, errors.New("insert returned no row"))
		observer.finishError(noRowErr)

		return lending.Loan{}, noRowErr
	}

	e.logOperation(
		ctx,
		logMsgLoanInserted,
		logAttrLoanID, loans[0].ID.String(),
		logAttrUserID, loans[0].UserID.String(),
		logAttrBookID, loans[0].BookID.String(),
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.finishSuccess(nil)

	return loans[0], nil
}

// TryRenew moves the borrow date and increments the renew count in one statement,
// guarded by return_date IS NULL and renew_count < lending.MaxRenewals.
//
// A missing or returned loan fails with lending.ErrLoanNotFoundOrInactive,
// an active loan at the renewal cap with lending.ErrRenewalNotPermitted.
func (e *Engine) TryRenew(ctx context.Context, loanID uuid.UUID, newBorrowDate time.Time) (lending.Loan, error) {
	observer, ctx := e.observe(ctx, operationTryRenew, map[string]string{spanAttrLoanID: loanID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(e.loansTableName).
		Set(goqu.Record{
			colBorrowDate: lending.ToStoredTime(newBorrowDate),
			colRenewCount: goqu.L("? + 1", goqu.C(colRenewCount)),
		}).
		Where(
			goqu.C(colID).Eq(loanID.String()),
			goqu.C(colReturnDate).IsNull(),
			goqu.C(colRenewCount).Lt(lending.MaxRenewals),
		).
		Returning(loanColumns...).
		ToSQL()

	if buildErr != nil {
		return lending.Loan{}, e.failBuild(ctx, observer, buildErr)
	}

	loans, duration, queryErr := e.queryLoans(ctx, operationTryRenew, sqlQuery)
	if queryErr != nil {
		observer.finishError(queryErr)
		return lending.Loan{}, queryErr
	}

	if len(loans) == 0 {
		current, findErr := e.findLoan(ctx, loanID)
		if findErr != nil && !errors.Is(findErr, lending.ErrLoanNotFoundOrInactive) {
			observer.finishError(findErr)
			return lending.Loan{}, findErr
		}

		if findErr == nil && current.IsActive() {
			e.logOperation(ctx, logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, logReasonRenewalCapReached)
			observer.finishRejected(logReasonRenewalCapReached)

			return lending.Loan{}, lending.ErrRenewalNotPermitted
		}

		e.logOperation(ctx, logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, logReasonLoanInactive)
		observer.finishRejected(logReasonLoanInactive)

		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	e.logOperation(
		ctx,
		logMsgLoanRenewed,
		logAttrLoanID, loanID.String(),
		logAttrRenewCount, loans[0].RenewCount,
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.finishSuccess(map[string]string{logAttrRenewCount: strconv.Itoa(loans[0].RenewCount)})

	return loans[0], nil
}

// TryReturn sets the return date in one statement guarded by return_date IS NULL.
func (e *Engine) TryReturn(ctx context.Context, loanID uuid.UUID, returnDate time.Time) (lending.Loan, error) {
	observer, ctx := e.observe(ctx, operationTryReturn, map[string]string{spanAttrLoanID: loanID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Update(e.loansTableName).
		Set(goqu.Record{colReturnDate: lending.ToStoredTime(returnDate)}).
		Where(
			goqu.C(colID).Eq(loanID.String()),
			goqu.C(colReturnDate).IsNull(),
		).
		Returning(loanColumns...).
		ToSQL()

	if buildErr != nil {
		return lending.Loan{}, e.failBuild(ctx, observer, buildErr)
	}

	loans, duration, queryErr := e.queryLoans(ctx, operationTryReturn, sqlQuery)
	if queryErr != nil {
		observer.finishError(queryErr)
		return lending.Loan{}, queryErr
	}

	if len(loans) == 0 {
		e.logOperation(ctx, logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, logReasonLoanInactive)
		observer.finishRejected(logReasonLoanInactive)

		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	e.logOperation(
		ctx,
		logMsgLoanReturned,
		logAttrLoanID, loanID.String(),
		logAttrBookID, loans[0].BookID.String(),
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.finishSuccess(nil)

	return loans[0], nil
}

// TryDeleteIfReturned deletes a loan only if it was returned. Deleting an active or missing loan is a no-op.
func (e *Engine) TryDeleteIfReturned(ctx context.Context, loanID uuid.UUID) (bool, error) {
	observer, ctx := e.observe(ctx, operationTryDeleteIfReturned, map[string]string{spanAttrLoanID: loanID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		Delete(e.loansTableName).
		Where(
			goqu.C(colID).Eq(loanID.String()),
			goqu.C(colReturnDate).IsNotNull(),
		).
		ToSQL()

	if buildErr != nil {
		return false, e.failBuild(ctx, observer, buildErr)
	}

	rowsAffected, duration, execErr := e.executeStatement(ctx, operationTryDeleteIfReturned, sqlQuery)
	if execErr != nil {
		observer.finishError(execErr)
		return false, execErr
	}

	if rowsAffected == 0 {
		e.logOperation(ctx, logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, logReasonLoanNotReturned)
		observer.finishRejected(logReasonLoanNotReturned)

		return false, nil
	}

	e.logOperation(
		ctx,
		logMsgLoanDeleted,
		logAttrLoanID, loanID.String(),
		logAttrRowsAffected, rowsAffected,
		logAttrDurationMS, toMilliseconds(duration),
	)

	observer.finishSuccess(nil)

	return true, nil
}

// FindActiveDuplicate returns the active loan of bookID held by userID, if there is one.
func (e *Engine) FindActiveDuplicate(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (lending.Loan, bool, error) {
	observer, ctx := e.observe(ctx, operationFindActiveDuplicate, map[string]string{
		spanAttrUserID: userID.String(),
		spanAttrBookID: bookID.String(),
	})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(e.loansTableName).
		Select(loanColumns...).
		Where(
			goqu.C(colUserID).Eq(userID.String()),
			goqu.C(colBookID).Eq(bookID.String()),
			goqu.C(colReturnDate).IsNull(),
		).
		Limit(1).
		ToSQL()

	if buildErr != nil {
		return lending.Loan{}, false, e.failBuild(ctx, observer, buildErr)
	}

	loans, _, queryErr := e.queryLoans(ctx, operationFindActiveDuplicate, sqlQuery)
	if queryErr != nil {
		observer.finishError(queryErr)
		return lending.Loan{}, false, queryErr
	}

	observer.finishSuccess(map[string]string{spanAttrRowCount: strconv.Itoa(len(loans))})

	if len(loans) == 0 {
		return lending.Loan{}, false, nil
	}

	return loans[0], true, nil
}

// FindByID returns a loan or lending.ErrLoanNotFoundOrInactive if it does not exist.
func (e *Engine) FindByID(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	observer, ctx := e.observe(ctx, operationFindByID, map[string]string{spanAttrLoanID: loanID.String()})

	loan, err := e.findLoan(ctx, loanID)
	if err != nil {
		observer.finishError(err)
		return lending.Loan{}, err
	}

	observer.finishSuccess(nil)

	return loan, nil
}

// ListByUser returns all loans of a user, the most recently borrowed first.
func (e *Engine) ListByUser(ctx context.Context, userID uuid.UUID) ([]lending.Loan, error) {
	observer, ctx := e.observe(ctx, operationListByUser, map[string]string{spanAttrUserID: userID.String()})

	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(e.loansTableName).
		Select(loanColumns...).
		Where(goqu.C(colUserID).Eq(userID.String())).
		Order(goqu.C(colBorrowDate).Desc(), goqu.C(colID).Desc()).
		ToSQL()

	if buildErr != nil {
		return nil, e.failBuild(ctx, observer, buildErr)
	}

	loans, _, queryErr := e.queryLoans(ctx, operationListByUser, sqlQuery)
	if queryErr != nil {
		observer.finishError(queryErr)
		return nil, queryErr
	}

	observer.finishSuccess(map[string]string{spanAttrRowCount: strconv.Itoa(len(loans))})

	return loans, nil
}

func (e *Engine) findLoan(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	sqlQuery, _, buildErr := goqu.Dialect(dialectPostgres).
		From(e.loansTableName).
		Select(loanColumns...).
		Where(goqu.C(colID).Eq(loanID.String())).
		ToSQL()

	if buildErr != nil {
		e.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrOperation, operationFindByID)
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, buildErr)
	}

	loans, _, queryErr := e.queryLoans(ctx, operationFindByID, sqlQuery)
	if queryErr != nil {
		return lending.Loan{}, queryErr
	}

	if len(loans) == 0 {
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	return loans[0], nil
}

// failBuild logs and records a failure to build a SQL statement.
func (e *Engine) failBuild(ctx context.Context, observer *operationObserver, buildErr error) error {
	e.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrOperation, observer.operation)

	err := errors.Join(lending.ErrStoreFailure, buildErr)
	observer.finishError(err)

	return err
}

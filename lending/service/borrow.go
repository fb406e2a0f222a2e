package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Borrow lends one copy of bookID to the borrower.
//
// The steps are: reject admins, reject an active duplicate, decrement the stock, insert the loan.
// If the insert fails after the stock was decremented, the decrement is compensated on a
// detached context bounded by the reconcile timeout, so a canceled caller never leaks a copy.
// An ambiguous insert failure is compensated only if the loan turns out not to be stored.
// A zero when is replaced by the service clock.
func (s *LendingService) Borrow(
	ctx context.Context,
	borrower lending.Borrower,
	bookID uuid.UUID,
	when time.Time,
) (BorrowResult, error) {

	observer, ctx := s.observe(ctx, operationBorrow, map[string]string{
		spanAttrUserID: borrower.ID.String(),
		spanAttrBookID: bookID.String(),
		spanAttrRole:   string(borrower.Role),
	})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return BorrowResult{}, err
	}

	if !lending.MayBorrow(borrower.Role) {
		observer.finish(lending.ErrBorrowerNotPermitted, RetryMetrics{}, nil)
		return BorrowResult{}, lending.ErrBorrowerNotPermitted
	}

	if when.IsZero() {
		when = s.clock.Now()
	}

	var result BorrowResult

	retry, err := RetryWithExponentialBackoff(
		ctx,
		func(ctx context.Context) error {
			loan, book, borrowErr := s.borrowOnce(ctx, borrower.ID, bookID, when)
			if borrowErr != nil {
				return borrowErr
			}

			result.Loan = loan
			result.Book = book

			return nil
		},
		s.retryOptionsFor(operationBorrow)...,
	)

	result.Retry = retry

	if err != nil {
		observer.finish(err, retry, nil, logAttrUserID, borrower.ID.String(), logAttrBookID, bookID.String())
		return BorrowResult{Retry: retry}, err
	}

	s.logInfo(
		ctx,
		logMsgOperation+logMsgBorrowed,
		logAttrLoanID, result.Loan.ID.String(),
		logAttrUserID, borrower.ID.String(),
		logAttrBookID, bookID.String(),
		logAttrAvailable, result.Book.Available,
	)

	observer.finish(nil, retry, map[string]string{spanAttrLoanID: result.Loan.ID.String()})

	return result, nil
}

func (s *LendingService) borrowOnce(
	ctx context.Context,
	userID uuid.UUID,
	bookID uuid.UUID,
	when time.Time,
) (lending.Loan, lending.Book, error) {

	if _, found, err := s.ledger.FindActiveDuplicate(ctx, userID, bookID); err != nil {
		return lending.Loan{}, lending.Book{}, err
	} else if found {
		return lending.Loan{}, lending.Book{}, lending.ErrDuplicateActiveLoan
	}

	book, err := s.inventory.TryDecrement(ctx, bookID)
	if err != nil {
		return lending.Loan{}, lending.Book{}, err
	}

	loanID, idErr := uuid.NewV7()
	if idErr != nil {
		insertErr := errors.Join(lending.ErrStoreFailure, idErr)
		return lending.Loan{}, lending.Book{}, s.compensateDecrement(ctx, bookID, insertErr)
	}

	candidate := lending.BuildActiveLoan(loanID, userID, bookID, when)

	loan, insertErr := s.ledger.InsertActive(ctx, candidate)
	if insertErr != nil {
		if stored, found := s.findLoanStoredDespite(ctx, candidate, insertErr); found {
			return stored, book, nil
		}

		return lending.Loan{}, lending.Book{}, s.compensateDecrement(ctx, bookID, insertErr)
	}

	return loan, book, nil
}

// findLoanStoredDespite looks up a loan whose insert failed ambiguously (store failure or a context error),
// because the insert may have been committed before the failure was reported.
// The lookup runs on a detached context bounded by the reconcile timeout.
// Only a stored loan of the same borrower and book counts; any lookup failure means not found.
func (s *LendingService) findLoanStoredDespite(
	ctx context.Context,
	candidate lending.Loan,
	insertErr error,
) (lending.Loan, bool) {

	if !isAmbiguousFailure(insertErr) {
		return lending.Loan{}, false
	}

	detachedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reconcileTimeout)
	defer cancel()

	stored, err := s.ledger.FindByID(detachedCtx, candidate.ID)
	if err != nil || stored.UserID != candidate.UserID || stored.BookID != candidate.BookID || !stored.IsActive() {
		return lending.Loan{}, false
	}

	s.logWarn(
		ctx,
		logMsgOperation+logMsgInsertStored,
		logAttrLoanID, stored.ID.String(),
		logAttrBookID, stored.BookID.String(),
		logAttrErrorKind, lending.ErrorKind(insertErr),
	)

	return stored, true
}

func isAmbiguousFailure(err error) bool {
	return errors.Is(err, lending.ErrStoreFailure) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// compensateDecrement gives back the copy taken for a loan that could not be inserted.
// It returns the insert error, joined with ErrCompensationFailed if the stock could not be restored.
func (s *LendingService) compensateDecrement(ctx context.Context, bookID uuid.UUID, insertErr error) error {
	book, compensationErr := s.incrementDetached(ctx, bookID)

	s.incrementCounter(ctx, metricCompensations, map[string]string{
		labelOperation: operationBorrow,
		labelOutcome:   lending.ErrorKind(compensationErr),
	})

	if compensationErr != nil {
		s.logError(
			ctx,
			logMsgOperation+logMsgCompensationFailed,
			compensationErr,
			logAttrBookID, bookID.String(),
			logAttrErrorKind, lending.ErrorKind(insertErr),
		)

		return errors.Join(insertErr, ErrCompensationFailed, compensationErr)
	}

	s.logWarn(
		ctx,
		logMsgOperation+logMsgCompensated,
		logAttrBookID, bookID.String(),
		logAttrAvailable, book.Available,
		logAttrErrorKind, lending.ErrorKind(insertErr),
	)

	return insertErr
}

// incrementDetached increments the stock on a context that survives cancellation of ctx,
// bounded by the reconcile timeout and retried on store conflicts.
func (s *LendingService) incrementDetached(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	detachedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reconcileTimeout)
	defer cancel()

	var book lending.Book

	_, err := RetryWithExponentialBackoff(
		detachedCtx,
		func(ctx context.Context) error {
			incremented, incrementErr := s.inventory.TryIncrement(ctx, bookID)
			if incrementErr != nil {
				return incrementErr
			}

			book = incremented

			return nil
		},
		s.retryOptionsFor(operationReconcile)...,
	)

	return book, err
}

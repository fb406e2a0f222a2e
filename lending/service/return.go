package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Return closes an active loan and gives the copy back to the stock.
//
// Closing the loan is authoritative: once TryReturn succeeded the loan stays returned.
// The stock increment runs best effort on a detached context; when it fails the result
// reports InventoryReconciled false and the failure is logged and counted.
// A zero when is replaced by the configured lending.EventTimeSource.
func (s *LendingService) Return(ctx context.Context, loanID uuid.UUID, when time.Time) (ReturnResult, error) {
	observer, ctx := s.observe(ctx, operationReturn, map[string]string{spanAttrLoanID: loanID.String()})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return ReturnResult{}, err
	}

	var returned lending.Loan

	retry, err := RetryWithExponentialBackoff(
		ctx,
		func(ctx context.Context) error {
			loan, returnErr := s.returnOnce(ctx, loanID, when)
			if returnErr != nil {
				return returnErr
			}

			returned = loan

			return nil
		},
		s.retryOptionsFor(operationReturn)...,
	)

	if err != nil {
		observer.finish(err, retry, nil, logAttrLoanID, loanID.String())
		return ReturnResult{Retry: retry}, err
	}

	result := ReturnResult{
		Loan:  returned,
		Retry: retry,
	}

	book, reconcileErr := s.incrementDetached(ctx, returned.BookID)
	if reconcileErr != nil {
		s.incrementCounter(ctx, metricReconcileFailures, map[string]string{
			labelOperation: operationReturn,
			labelErrorType: lending.ErrorKind(reconcileErr),
		})

		s.logWarn(
			ctx,
			logMsgOperation+logMsgReconcileFailed,
			logAttrError, reconcileErr.Error(),
			logAttrErrorKind, lending.ErrorKind(reconcileErr),
			logAttrLoanID, loanID.String(),
			logAttrBookID, returned.BookID.String(),
		)
	} else {
		result.Book = book
		result.InventoryReconciled = true
	}

	s.logInfo(
		ctx,
		logMsgOperation+logMsgReturned,
		logAttrLoanID, loanID.String(),
		logAttrBookID, returned.BookID.String(),
		logAttrInventoryReconciled, result.InventoryReconciled,
	)

	observer.finish(nil, retry, map[string]string{
		spanAttrBookID:     returned.BookID.String(),
		spanAttrReconciled: strconv.FormatBool(result.InventoryReconciled),
	})

	return result, nil
}

func (s *LendingService) returnOnce(ctx context.Context, loanID uuid.UUID, when time.Time) (lending.Loan, error) {
	loan, err := s.ledger.FindByID(ctx, loanID)
	if err != nil {
		return lending.Loan{}, err
	}

	if !loan.IsActive() {
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	returnDate, err := s.eventTime(loan, when)
	if err != nil {
		return lending.Loan{}, err
	}

	return s.ledger.TryReturn(ctx, loanID, returnDate)
}

// eventTime resolves the effective time of a renew or return event and checks it against the borrow date.
// Only calendar days are compared, matching the day granularity of the lending policy.
func (s *LendingService) eventTime(loan lending.Loan, when time.Time) (time.Time, error) {
	if when.IsZero() {
		when = s.eventTimes.EventTimeFor(loan)
	}

	if lending.DateOf(when).Before(lending.DateOf(loan.BorrowDate)) {
		return time.Time{}, lending.ErrEventTimeBeforeBorrowDate
	}

	return when, nil
}

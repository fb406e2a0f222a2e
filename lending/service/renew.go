package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// Renew extends an active loan by moving its borrow date to when and incrementing its renew count.
//
// Renewal is decided with lending.CanRenew as of the service clock's today: the loan must be active,
// not overdue, and renewed fewer than lending.MaxRenewals times.
// A zero when is replaced by the configured lending.EventTimeSource.
func (s *LendingService) Renew(ctx context.Context, loanID uuid.UUID, when time.Time) (RenewResult, error) {
	observer, ctx := s.observe(ctx, operationRenew, map[string]string{spanAttrLoanID: loanID.String()})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return RenewResult{}, err
	}

	var renewed lending.Loan

	retry, err := RetryWithExponentialBackoff(
		ctx,
		func(ctx context.Context) error {
			loan, renewErr := s.renewOnce(ctx, loanID, when)
			if renewErr != nil {
				return renewErr
			}

			renewed = loan

			return nil
		},
		s.retryOptionsFor(operationRenew)...,
	)

	if err != nil {
		observer.finish(err, retry, nil, logAttrLoanID, loanID.String())
		return RenewResult{Retry: retry}, err
	}

	result := RenewResult{
		Loan:    renewed,
		DueDate: lending.DueDate(renewed.BorrowDate),
		Retry:   retry,
	}

	s.logInfo(
		ctx,
		logMsgOperation+logMsgRenewed,
		logAttrLoanID, loanID.String(),
		logAttrRenewCount, renewed.RenewCount,
	)

	observer.finish(nil, retry, map[string]string{spanAttrRenewCount: strconv.Itoa(renewed.RenewCount)})

	return result, nil
}

func (s *LendingService) renewOnce(ctx context.Context, loanID uuid.UUID, when time.Time) (lending.Loan, error) {
	loan, err := s.ledger.FindByID(ctx, loanID)
	if err != nil {
		return lending.Loan{}, err
	}

	if !loan.IsActive() {
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	if !lending.CanRenew(loan, s.clock.Now()) {
		return lending.Loan{}, lending.ErrRenewalNotPermitted
	}

	newBorrowDate, err := s.eventTime(loan, when)
	if err != nil {
		return lending.Loan{}, err
	}

	return s.ledger.TryRenew(ctx, loanID, newBorrowDate)
}

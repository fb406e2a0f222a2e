package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// Delete removes a returned loan and reports whether a deletion happened.
// Active and unknown loans are left untouched and yield false, so Delete is idempotent.
func (s *LendingService) Delete(ctx context.Context, loanID uuid.UUID) (bool, error) {
	observer, ctx := s.observe(ctx, operationDelete, map[string]string{spanAttrLoanID: loanID.String()})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return false, err
	}

	var deleted bool

	retry, err := RetryWithExponentialBackoff(
		ctx,
		func(ctx context.Context) error {
			var deleteErr error
			deleted, deleteErr = s.ledger.TryDeleteIfReturned(ctx, loanID)

			return deleteErr
		},
		s.retryOptionsFor(operationDelete)...,
	)

	if err != nil {
		observer.finish(err, retry, nil, logAttrLoanID, loanID.String())
		return false, err
	}

	msg := logMsgDeleted
	if !deleted {
		msg = logMsgDeleteNotPermitted
	}

	s.logInfo(ctx, logMsgOperation+msg, logAttrLoanID, loanID.String())

	observer.finish(nil, retry, map[string]string{spanAttrDeleted: strconv.FormatBool(deleted)})

	return deleted, nil
}

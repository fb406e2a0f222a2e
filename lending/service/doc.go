// Package service implements the lending workflows on top of a lending.InventoryStore and a lending.LoanLedger.
//
// LendingService validates the request, consults the lending policy and then issues at most two
// coordinated conditional updates. The stores guard every state change atomically; the service
// keeps them consistent with each other:
//   - Borrow decrements the stock first and compensates the decrement if the loan cannot be inserted.
//   - Return closes the loan first and increments the stock best effort afterwards.
//
// Transient store conflicts are retried with exponential backoff and jitter (RetryWithExponentialBackoff).
//
// Usage:
//
//	store, _ := memengine.New()
//	svc, _ := service.New(store, store, service.WithLogger(slog.Default()))
//
//	result, err := svc.Borrow(ctx, lending.Borrower{ID: userID, Role: lending.RoleUser}, bookID, time.Time{})
//	switch {
//	case errors.Is(err, lending.ErrNoCopiesAvailable):
//		// all copies are lent out
//	case errors.Is(err, lending.ErrDuplicateActiveLoan):
//		// the borrower already holds this book
//	}
package service

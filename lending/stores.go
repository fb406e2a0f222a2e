package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InventoryStore holds per-title stock counters and adjusts them with atomic conditional updates.
//
// Implementations must never perform a read-modify-write of Available at the application layer:
// either the guard holds and the update is applied, or the state stays untouched.
type InventoryStore interface {
	// TryDecrement decrements Available by one only if Available > 0.
	// Fails with ErrNoCopiesAvailable or ErrBookNotFound.
	TryDecrement(ctx context.Context, bookID uuid.UUID) (Book, error)

	// TryIncrement increments Available by one only if Available < Copies.
	// Fails with ErrNothingToReturn or ErrBookNotFound.
	TryIncrement(ctx context.Context, bookID uuid.UUID) (Book, error)

	// FindBook returns the current state of a book or ErrBookNotFound.
	FindBook(ctx context.Context, bookID uuid.UUID) (Book, error)
}

// LoanLedger holds loan records and applies guarded state transitions.
type LoanLedger interface {
	// InsertActive stores a new active loan with RenewCount 0.
	// Fails with ErrDuplicateActiveLoan if the store detects an active loan for the same user and book.
	InsertActive(ctx context.Context, loan Loan) (Loan, error)

	// TryRenew sets a new borrow date and increments RenewCount only if the loan is active.
	// Fails with ErrLoanNotFoundOrInactive.
	TryRenew(ctx context.Context, loanID uuid.UUID, newBorrowDate time.Time) (Loan, error)

	// TryReturn sets the return date only if the loan is active.
	// Fails with ErrLoanNotFoundOrInactive.
	TryReturn(ctx context.Context, loanID uuid.UUID, returnDate time.Time) (Loan, error)

	// TryDeleteIfReturned deletes the loan only if it was returned and reports whether a deletion happened.
	TryDeleteIfReturned(ctx context.Context, loanID uuid.UUID) (bool, error)

	// FindActiveDuplicate returns the active loan of bookID held by userID, if any.
	FindActiveDuplicate(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (Loan, bool, error)

	// FindByID returns a loan or ErrLoanNotFoundOrInactive if it does not exist.
	FindByID(ctx context.Context, loanID uuid.UUID) (Loan, error)

	// ListByUser returns all loans of a user, most recent borrow date first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Loan, error)
}

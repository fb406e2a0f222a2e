package lending

import (
	"context"
	"errors"
)

// Expected, recoverable outcomes. They are surfaced to callers as-is and never leave partial state behind.
var (
	// ErrNoCopiesAvailable is returned when a borrow is attempted while no copy of the book is available.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrDuplicateActiveLoan is returned when the borrower already holds an active loan of the same book.
	ErrDuplicateActiveLoan = errors.New("borrower already holds an active loan of this book")

	// ErrLoanNotFoundOrInactive is returned when a renew or return targets a missing or already returned loan.
	ErrLoanNotFoundOrInactive = errors.New("loan not found or already returned")

	// ErrRenewalNotPermitted is returned when a loan is overdue or was already renewed the maximum number of times.
	ErrRenewalNotPermitted = errors.New("renewal not permitted")

	// ErrBorrowerNotPermitted is returned when the acting role may not borrow books.
	ErrBorrowerNotPermitted = errors.New("borrower role is not permitted to borrow")

	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrNothingToReturn is returned when the stock of a book is already complete.
	ErrNothingToReturn = errors.New("all copies are already in stock")

	// ErrEventTimeBeforeBorrowDate is returned when a renew or return is dated before the loan's borrow date.
	ErrEventTimeBeforeBorrowDate = errors.New("event time is before the borrow date")

	// ErrInvalidBook is returned when a book violates 0 <= available <= copies or has no positive stock.
	ErrInvalidBook = errors.New("book is not valid")
)

// Infrastructure failures.
var (
	// ErrStoreFailure wraps unexpected failures of the underlying data store (connectivity, timeouts, ...).
	ErrStoreFailure = errors.New("lending store failure")

	// ErrStoreConflict marks a transient store conflict (serialization failure, deadlock) that is safe to retry.
	ErrStoreConflict = errors.New("lending store conflict, retry possible")

	// ErrMalformedRecord is returned when a stored record cannot be mapped to a valid Book or Loan.
	ErrMalformedRecord = errors.New("malformed record in lending store")

	// ErrNilDatabaseConnection is returned when a nil database connection is supplied to a store factory.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table name is supplied.
	ErrEmptyTableName = errors.New("empty table name supplied")

	// ErrTableNameTooLong is returned when a table name, or an index name derived from it,
	// exceeds the identifier length of the store.
	ErrTableNameTooLong = errors.New("table name too long")
)

// Error kinds used for messages, metric labels and span attributes.
const (
	KindNone                   = "none"
	KindNoCopiesAvailable      = "no_copies_available"
	KindDuplicateActiveLoan    = "duplicate_active_loan"
	KindLoanNotFoundOrInactive = "loan_not_found_or_inactive"
	KindRenewalNotPermitted    = "renewal_not_permitted"
	KindBorrowerNotPermitted   = "borrower_not_permitted"
	KindBookNotFound           = "book_not_found"
	KindNothingToReturn        = "nothing_to_return"
	KindEventTimeBeforeBorrow  = "event_time_before_borrow_date"
	KindInvalidBook            = "invalid_book"
	KindMalformedRecord        = "malformed_record"
	KindStoreConflict          = "store_conflict"
	KindStoreFailure           = "store_failure"
	KindContextCanceled        = "context_canceled"
	KindDeadlineExceeded       = "context_deadline_exceeded"
	KindOther                  = "other"
)

var kindsInPrecedence = []struct {
	err  error
	kind string
}{
	{ErrNoCopiesAvailable, KindNoCopiesAvailable},
	{ErrDuplicateActiveLoan, KindDuplicateActiveLoan},
	{ErrLoanNotFoundOrInactive, KindLoanNotFoundOrInactive},
	{ErrRenewalNotPermitted, KindRenewalNotPermitted},
	{ErrBorrowerNotPermitted, KindBorrowerNotPermitted},
	{ErrBookNotFound, KindBookNotFound},
	{ErrNothingToReturn, KindNothingToReturn},
	{ErrEventTimeBeforeBorrowDate, KindEventTimeBeforeBorrow},
	{ErrInvalidBook, KindInvalidBook},
	{ErrMalformedRecord, KindMalformedRecord},
	{context.Canceled, KindContextCanceled},
	{context.DeadlineExceeded, KindDeadlineExceeded},
	{ErrStoreConflict, KindStoreConflict},
	{ErrStoreFailure, KindStoreFailure},
}

// ErrorKind maps an error to a stable kind string.
// Domain outcomes take precedence over infrastructure kinds when an error carries both.
func ErrorKind(err error) string {
	if err == nil {
		return KindNone
	}

	for _, candidate := range kindsInPrecedence {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}

	return KindOther
}

// IsExpectedOutcome reports whether err is one of the recoverable lending outcomes
// rather than an infrastructure failure.
func IsExpectedOutcome(err error) bool {
	switch ErrorKind(err) {
	case KindNoCopiesAvailable,
		KindDuplicateActiveLoan,
		KindLoanNotFoundOrInactive,
		KindRenewalNotPermitted,
		KindBorrowerNotPermitted,
		KindBookNotFound,
		KindNothingToReturn,
		KindEventTimeBeforeBorrow,
		KindInvalidBook:
		return true
	default:
		return false
	}
}

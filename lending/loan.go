package lending

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserIDString represents a borrower identifier in its string form.
type UserIDString = string

// LoanIDString represents a loan identifier in its string form.
type LoanIDString = string

// Loan records one borrower holding one copy of a title.
//
// A nil ReturnDate means the loan is active. RenewCount starts at 0 and never decreases.
type Loan struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	BorrowDate time.Time
	ReturnDate *time.Time
	RenewCount int
}

// BuildActiveLoan is a factory method for a new active Loan.
// The borrow date is normalized to UTC with microsecond precision, matching what the stores persist.
func BuildActiveLoan(id uuid.UUID, userID uuid.UUID, bookID uuid.UUID, borrowDate time.Time) Loan {
	return Loan{
		ID:         id,
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: ToStoredTime(borrowDate),
	}
}

// IsActive reports whether the loan has not been returned yet.
func (l Loan) IsActive() bool {
	return l.ReturnDate == nil
}

// Validate checks the structural invariants of a Loan read back from a store.
func (l Loan) Validate() error {
	if l.ID == uuid.Nil || l.UserID == uuid.Nil || l.BookID == uuid.Nil {
		return errors.Join(ErrMalformedRecord, errors.New("loan has an empty identifier"))
	}

	if l.RenewCount < 0 {
		return errors.Join(ErrMalformedRecord, fmt.Errorf("renew count must not be negative, got %d", l.RenewCount))
	}

	if l.BorrowDate.IsZero() {
		return errors.Join(ErrMalformedRecord, errors.New("loan has no borrow date"))
	}

	return nil
}

// LoanView is a Loan annotated with the values needed to display it.
type LoanView struct {
	Loan      Loan
	DueDate   time.Time
	Overdue   bool
	Renewable bool
}

// BuildLoanView annotates a loan with due date, overdue flag and renewal eligibility as of today.
func BuildLoanView(loan Loan, today time.Time) LoanView {
	return LoanView{
		Loan:      loan,
		DueDate:   DueDate(loan.BorrowDate),
		Overdue:   loan.IsActive() && IsOverdue(loan.BorrowDate, today),
		Renewable: CanRenew(loan, today),
	}
}

// ToStoredTime converts a time to UTC with microsecond precision (the resolution of Postgres timestamps).
func ToStoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

package lending

import (
	"time"

	"github.com/google/uuid"
)

const (
	// LoanPeriodDays is the number of days a loan may run before it becomes overdue.
	LoanPeriodDays = 14

	// MaxRenewals is the number of times a loan may be renewed.
	MaxRenewals = 2

	// MinFollowUpDays and MaxFollowUpDays bound the simulated offset of a follow-up event.
	MinFollowUpDays = 10
	MaxFollowUpDays = 20

	// RoleAdmin is the role that may manage the catalogue but never borrow.
	RoleAdmin Role = "admin"

	// RoleUser is the regular borrower role.
	RoleUser Role = "user"
)

// Role is the role of an authenticated actor.
type Role string

// Borrower identifies the authenticated actor of a borrow request.
type Borrower struct {
	ID   uuid.UUID
	Role Role
}

// DayOffsetSource yields a pseudo-random integer in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type DayOffsetSource interface {
	IntN(n int) int
}

// MayBorrow reports whether the role is allowed to borrow books.
func MayBorrow(role Role) bool {
	return role != RoleAdmin
}

// DateOf normalizes a time to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate returns the day a loan borrowed at borrowDate is due.
func DueDate(borrowDate time.Time) time.Time {
	return DateOf(borrowDate).AddDate(0, 0, LoanPeriodDays)
}

// IsOverdue reports whether today is strictly after the due date. Time of day is ignored.
func IsOverdue(borrowDate time.Time, today time.Time) bool {
	return DateOf(today).After(DueDate(borrowDate))
}

// CanRenew reports whether the loan is active, not overdue and below the renewal cap.
func CanRenew(loan Loan, today time.Time) bool {
	return loan.IsActive() &&
		!IsOverdue(loan.BorrowDate, today) &&
		loan.RenewCount < MaxRenewals
}

// ClampedFollowUpDate synthesizes the date of a renew or return event following borrowDate.
//
// The candidate is borrowDate plus a random offset of MinFollowUpDays..MaxFollowUpDays days;
// the result is the earlier of candidate and today, normalized to midnight.
// Production callers supply real event times; this exists for historic demo data.
func ClampedFollowUpDate(borrowDate time.Time, today time.Time, rng DayOffsetSource) time.Time {
	offset := MinFollowUpDays + rng.IntN(MaxFollowUpDays-MinFollowUpDays+1)
	candidate := DateOf(borrowDate).AddDate(0, 0, offset)
	todayDate := DateOf(today)

	if candidate.After(todayDate) {
		return todayDate
	}

	return candidate
}

// HasActiveDuplicate reports whether any of the loans is an active loan of bookID held by userID.
func HasActiveDuplicate(existingLoans []Loan, userID uuid.UUID, bookID uuid.UUID) bool {
	for _, loan := range existingLoans {
		if loan.UserID == userID && loan.BookID == bookID && loan.IsActive() {
			return true
		}
	}

	return false
}

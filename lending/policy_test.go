package lending_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// fixedOffset always yields the same offset, clamped to [0, n).
type fixedOffset int

func (f fixedOffset) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}

	return int(f)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func Test_DateOf_NormalizesToMidnightUTC(t *testing.T) {
	// arrange
	berlin := time.FixedZone("CET", 60*60)
	lateEvening := time.Date(2024, 3, 10, 0, 30, 0, 0, berlin) // 2024-03-09 23:30 UTC

	// act
	date := lending.DateOf(lateEvening)

	// assert
	assert.Equal(t, day(2024, 3, 9), date)
}

func Test_IsOverdue(t *testing.T) {
	borrowDate := time.Date(2024, 1, 1, 15, 45, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		today    time.Time
		expected bool
	}{
		{name: "same day", today: day(2024, 1, 1), expected: false},
		{name: "exactly 14 days later", today: time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC), expected: false},
		{name: "15 days later", today: day(2024, 1, 16), expected: true},
		{name: "long after", today: day(2024, 6, 1), expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, lending.IsOverdue(borrowDate, tc.today))
		})
	}
}

func Test_DueDate_Is14DaysAfterBorrowDay(t *testing.T) {
	assert.Equal(t, day(2024, 1, 15), lending.DueDate(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)))
}

func Test_CanRenew(t *testing.T) {
	today := day(2024, 1, 10)
	returnDate := day(2024, 1, 5)

	testCases := []struct {
		name     string
		loan     lending.Loan
		expected bool
	}{
		{
			name:     "active, not overdue, never renewed",
			loan:     lending.Loan{BorrowDate: day(2024, 1, 1)},
			expected: true,
		},
		{
			name:     "active, renewed once",
			loan:     lending.Loan{BorrowDate: day(2024, 1, 1), RenewCount: 1},
			expected: true,
		},
		{
			name:     "renewal cap reached",
			loan:     lending.Loan{BorrowDate: day(2024, 1, 1), RenewCount: lending.MaxRenewals},
			expected: false,
		},
		{
			name:     "overdue",
			loan:     lending.Loan{BorrowDate: day(2023, 12, 1)},
			expected: false,
		},
		{
			name:     "returned",
			loan:     lending.Loan{BorrowDate: day(2024, 1, 1), ReturnDate: &returnDate},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, lending.CanRenew(tc.loan, today))
		})
	}
}

func Test_ClampedFollowUpDate_AddsOffsetWithinBounds(t *testing.T) {
	// arrange
	borrowDate := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	today := day(2024, 12, 31)

	// act
	earliest := lending.ClampedFollowUpDate(borrowDate, today, fixedOffset(0))
	latest := lending.ClampedFollowUpDate(borrowDate, today, fixedOffset(100))

	// assert
	assert.Equal(t, day(2024, 1, 11), earliest)
	assert.Equal(t, day(2024, 1, 21), latest)
}

func Test_ClampedFollowUpDate_NeverExceedsToday(t *testing.T) {
	// arrange
	borrowDate := day(2024, 1, 1)
	today := time.Date(2024, 1, 5, 17, 30, 0, 0, time.UTC)

	// act
	followUp := lending.ClampedFollowUpDate(borrowDate, today, fixedOffset(5))

	// assert
	assert.Equal(t, day(2024, 1, 5), followUp)
}

func Test_ClampedFollowUpDate_WithRandomSource_StaysInRange(t *testing.T) {
	// setup
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test source
	borrowDate := day(2024, 2, 1)
	today := day(2025, 1, 1)

	for range 200 {
		// act
		followUp := lending.ClampedFollowUpDate(borrowDate, today, rng)

		// assert
		assert.False(t, followUp.Before(day(2024, 2, 11)))
		assert.False(t, followUp.After(day(2024, 2, 21)))
	}
}

func Test_HasActiveDuplicate(t *testing.T) {
	// arrange
	userID := uuid.New()
	bookID := uuid.New()
	returnDate := day(2024, 1, 5)

	returnedLoan := lending.Loan{UserID: userID, BookID: bookID, ReturnDate: &returnDate}
	otherBook := lending.Loan{UserID: userID, BookID: uuid.New()}
	otherUser := lending.Loan{UserID: uuid.New(), BookID: bookID}
	activeLoan := lending.Loan{UserID: userID, BookID: bookID}

	// act + assert
	assert.False(t, lending.HasActiveDuplicate(nil, userID, bookID))
	assert.False(t, lending.HasActiveDuplicate([]lending.Loan{returnedLoan, otherBook, otherUser}, userID, bookID))
	assert.True(t, lending.HasActiveDuplicate([]lending.Loan{returnedLoan, activeLoan}, userID, bookID))
}

func Test_MayBorrow_RejectsAdmins(t *testing.T) {
	assert.False(t, lending.MayBorrow(lending.RoleAdmin))
	assert.True(t, lending.MayBorrow(lending.RoleUser))
}

func Test_BuildLoanView(t *testing.T) {
	// arrange
	loan := lending.BuildActiveLoan(uuid.New(), uuid.New(), uuid.New(), day(2024, 1, 1))

	// act
	onTime := lending.BuildLoanView(loan, day(2024, 1, 10))
	late := lending.BuildLoanView(loan, day(2024, 1, 20))

	// assert
	assert.Equal(t, day(2024, 1, 15), onTime.DueDate)
	assert.False(t, onTime.Overdue)
	assert.True(t, onTime.Renewable)
	assert.True(t, late.Overdue)
	assert.False(t, late.Renewable)
}

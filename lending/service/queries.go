package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// ListLoansForUser returns all loans of a user, the most recently borrowed first,
// annotated with due date, overdue flag and renewal eligibility as of the service clock's today.
func (s *LendingService) ListLoansForUser(ctx context.Context, userID uuid.UUID) ([]lending.LoanView, error) {
	observer, ctx := s.observe(ctx, operationListLoans, map[string]string{spanAttrUserID: userID.String()})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return nil, err
	}

	loans, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		observer.finish(err, RetryMetrics{}, nil, logAttrUserID, userID.String())
		return nil, err
	}

	today := s.clock.Now()
	views := make([]lending.LoanView, 0, len(loans))

	for _, loan := range loans {
		views = append(views, lending.BuildLoanView(loan, today))
	}

	observer.finish(nil, RetryMetrics{}, map[string]string{spanAttrLoanCount: strconv.Itoa(len(views))})

	return views, nil
}

// FindBook returns the current stock of a book.
func (s *LendingService) FindBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	observer, ctx := s.observe(ctx, operationFindBook, map[string]string{spanAttrBookID: bookID.String()})

	if err := ctx.Err(); err != nil {
		observer.finish(err, RetryMetrics{}, nil)
		return lending.Book{}, err
	}

	book, err := s.inventory.FindBook(ctx, bookID)
	observer.finish(err, RetryMetrics{}, nil)

	return book, err
}

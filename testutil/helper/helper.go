package helper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// BookAdder is implemented by every store that can be stocked with new titles.
type BookAdder interface {
	AddBook(ctx context.Context, book lending.Book) error
}

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

func GivenUser(t testing.TB) lending.Borrower {
	return lending.Borrower{ID: GivenUniqueID(t), Role: lending.RoleUser}
}

func GivenAdmin(t testing.TB) lending.Borrower {
	return lending.Borrower{ID: GivenUniqueID(t), Role: lending.RoleAdmin}
}

func FixtureBook(t testing.TB, copies int) lending.Book {
	book, err := lending.BuildBook(
		GivenUniqueID(t),
		"Learning Domain-Driven Design",
		[]string{"Vlad Khononov"},
		copies,
	)
	require.NoError(t, err, "error in arranging test data")

	return book
}

func GivenBookWasAdded(t testing.TB, ctx context.Context, store BookAdder, copies int) lending.Book {
	book := FixtureBook(t, copies)
	require.NoError(t, store.AddBook(ctx, book), "error in arranging test data")

	return book
}

// FixtureDay returns midnight UTC of the given day.
func FixtureDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

package memengine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/memengine"
)

func newStoreWithBook(t *testing.T, copies int) (*memengine.Store, lending.Book) {
	t.Helper()

	store, err := memengine.New()
	require.NoError(t, err)

	book, err := lending.BuildBook(uuid.New(), "The Left Hand of Darkness", []string{"Ursula K. Le Guin"}, copies)
	require.NoError(t, err)
	require.NoError(t, store.AddBook(context.Background(), book))

	return store, book
}

func Test_AddBook_ShouldFail_ForDuplicateOrInvalidBook(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 1)

	// act
	duplicateErr := store.AddBook(ctx, book)
	invalidErr := store.AddBook(ctx, lending.Book{ID: uuid.New(), Copies: 0})

	// assert
	assert.ErrorIs(t, duplicateErr, memengine.ErrBookAlreadyExists)
	assert.ErrorIs(t, invalidErr, lending.ErrInvalidBook)
}

func Test_TryDecrement_And_TryIncrement_RespectStockBounds(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 1)

	// act + assert
	_, err := store.TryIncrement(ctx, book.ID)
	assert.ErrorIs(t, err, lending.ErrNothingToReturn)

	updated, err := store.TryDecrement(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Available)

	_, err = store.TryDecrement(ctx, book.ID)
	assert.ErrorIs(t, err, lending.ErrNoCopiesAvailable)

	updated, err = store.TryIncrement(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Available)
}

func Test_StockOperations_ShouldFail_ForUnknownBook(t *testing.T) {
	// setup
	ctx := context.Background()
	store, _ := newStoreWithBook(t, 1)
	unknown := uuid.New()

	// act
	_, decrementErr := store.TryDecrement(ctx, unknown)
	_, incrementErr := store.TryIncrement(ctx, unknown)
	_, findErr := store.FindBook(ctx, unknown)

	// assert
	assert.ErrorIs(t, decrementErr, lending.ErrBookNotFound)
	assert.ErrorIs(t, incrementErr, lending.ErrBookNotFound)
	assert.ErrorIs(t, findErr, lending.ErrBookNotFound)
}

func Test_FindBook_ReturnsIndependentCopy(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 2)

	// act
	found, err := store.FindBook(ctx, book.ID)
	require.NoError(t, err)
	found.Authors[0] = "someone else"

	// assert
	again, err := store.FindBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Authors, again.Authors)
}

func Test_ConcurrentDecrements_NeverOversell(t *testing.T) {
	// setup
	ctx := context.Background()
	copies := 5
	workers := 50
	store, book := newStoreWithBook(t, copies)

	var succeeded atomic.Int64
	var wg sync.WaitGroup

	// act
	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := store.TryDecrement(ctx, book.ID); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, lending.ErrNoCopiesAvailable)
			}
		}()
	}

	wg.Wait()

	// assert
	found, err := store.FindBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(copies), succeeded.Load())
	assert.Equal(t, 0, found.Available)
}

func Test_InsertActive_ShouldRejectDuplicateActiveLoan(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 3)
	userID := uuid.New()

	_, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, time.Now()))
	require.NoError(t, err)

	// act
	_, err = store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, time.Now()))

	// assert
	assert.ErrorIs(t, err, lending.ErrDuplicateActiveLoan)
}

func Test_InsertActive_ShouldFail_ForUnknownBook(t *testing.T) {
	// setup
	store, _ := newStoreWithBook(t, 1)

	// act
	_, err := store.InsertActive(context.Background(), lending.BuildActiveLoan(uuid.New(), uuid.New(), uuid.New(), time.Now()))

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_InsertActive_AllowsNewLoanAfterReturn(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 3)
	userID := uuid.New()

	first, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, time.Now()))
	require.NoError(t, err)

	_, err = store.TryReturn(ctx, first.ID, time.Now())
	require.NoError(t, err)

	// act
	_, err = store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, time.Now()))

	// assert
	assert.NoError(t, err)

	_, found, err := store.FindActiveDuplicate(ctx, userID, book.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func Test_TryRenew_EnforcesRenewalCap(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 1)
	borrowDate := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	loan, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), uuid.New(), book.ID, borrowDate))
	require.NoError(t, err)

	// act + assert
	for i := 1; i <= lending.MaxRenewals; i++ {
		renewed, renewErr := store.TryRenew(ctx, loan.ID, borrowDate.AddDate(0, 0, 10*i))
		require.NoError(t, renewErr)
		assert.Equal(t, i, renewed.RenewCount)
		assert.Equal(t, borrowDate.AddDate(0, 0, 10*i), renewed.BorrowDate)
	}

	_, err = store.TryRenew(ctx, loan.ID, borrowDate.AddDate(0, 0, 40))
	assert.ErrorIs(t, err, lending.ErrRenewalNotPermitted)
}

func Test_TryReturn_ShouldFail_WhenAlreadyReturned(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 1)

	loan, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), uuid.New(), book.ID, time.Now()))
	require.NoError(t, err)

	returned, err := store.TryReturn(ctx, loan.ID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)

	// act
	_, secondErr := store.TryReturn(ctx, loan.ID, time.Now())
	_, renewErr := store.TryRenew(ctx, loan.ID, time.Now())
	_, unknownErr := store.TryReturn(ctx, uuid.New(), time.Now())

	// assert
	assert.ErrorIs(t, secondErr, lending.ErrLoanNotFoundOrInactive)
	assert.ErrorIs(t, renewErr, lending.ErrLoanNotFoundOrInactive)
	assert.ErrorIs(t, unknownErr, lending.ErrLoanNotFoundOrInactive)
}

func Test_TryDeleteIfReturned_OnlyDeletesReturnedLoans(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 1)

	loan, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), uuid.New(), book.ID, time.Now()))
	require.NoError(t, err)

	// act + assert
	deleted, err := store.TryDeleteIfReturned(ctx, loan.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "active loan must not be deleted")

	_, err = store.TryReturn(ctx, loan.ID, time.Now())
	require.NoError(t, err)

	deleted, err = store.TryDeleteIfReturned(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.TryDeleteIfReturned(ctx, loan.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete must be a no-op")

	_, err = store.FindByID(ctx, loan.ID)
	assert.ErrorIs(t, err, lending.ErrLoanNotFoundOrInactive)
}

func Test_ListByUser_OrdersMostRecentFirst(t *testing.T) {
	// setup
	ctx := context.Background()
	store, book := newStoreWithBook(t, 3)
	userID := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, base))
	require.NoError(t, err)
	_, err = store.TryReturn(ctx, older.ID, base.AddDate(0, 0, 3))
	require.NoError(t, err)

	newer, err := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), userID, book.ID, base.AddDate(0, 0, 5)))
	require.NoError(t, err)

	_, err = store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), uuid.New(), book.ID, base))
	require.NoError(t, err)

	// act
	loans, err := store.ListByUser(ctx, userID)

	// assert
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, newer.ID, loans[0].ID)
	assert.Equal(t, older.ID, loans[1].ID)
}

func Test_Operations_ShouldFail_WithCanceledContext(t *testing.T) {
	// setup
	store, book := newStoreWithBook(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, decrementErr := store.TryDecrement(ctx, book.ID)
	_, insertErr := store.InsertActive(ctx, lending.BuildActiveLoan(uuid.New(), uuid.New(), book.ID, time.Now()))
	_, listErr := store.ListByUser(ctx, uuid.New())

	// assert
	for _, err := range []error{decrementErr, insertErr, listErr} {
		assert.ErrorIs(t, err, lending.ErrStoreFailure)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/book-lending-go/lending"
	. "github.com/AntonStoeckl/book-lending-go/testutil/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/book-lending-go/testutil/helper/postgreswrapper" //nolint:revive
)

func Test_AddBook_FindBook_RoundTrip(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := FixtureBook(t, 3)

	// act
	addErr := engine.AddBook(ctxWithTimeout, book)
	found, findErr := engine.FindBook(ctxWithTimeout, book.ID)

	// assert
	require.NoError(t, addErr)
	require.NoError(t, findErr)
	assert.Equal(t, book.ID, found.ID)
	assert.Equal(t, book.Title, found.Title)
	assert.Equal(t, book.Authors, found.Authors)
	assert.Equal(t, 3, found.Copies)
	assert.Equal(t, 3, found.Available)
}

func Test_AddBook_ShouldFail_ForDuplicateID(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)

	// act
	err := engine.AddBook(ctxWithTimeout, book)

	// assert
	assert.ErrorIs(t, err, lending.ErrStoreFailure)
}

func Test_AddBook_ShouldFail_ForInvalidBook(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := FixtureBook(t, 2)
	book.Available = 3

	// act
	err := engine.AddBook(ctxWithTimeout, book)

	// assert
	assert.ErrorIs(t, err, lending.ErrInvalidBook)
}

func Test_FindBook_ShouldFail_ForUnknownBook(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)

	// act
	_, err := engine.FindBook(ctxWithTimeout, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_TryDecrement_TryIncrement_RespectStockBounds(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 2)

	// act + assert
	_, err := engine.TryIncrement(ctxWithTimeout, book.ID)
	assert.ErrorIs(t, err, lending.ErrNothingToReturn, "all copies are in stock")

	first, err := engine.TryDecrement(ctxWithTimeout, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Available)

	second, err := engine.TryDecrement(ctxWithTimeout, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Available)

	_, err = engine.TryDecrement(ctxWithTimeout, book.ID)
	assert.ErrorIs(t, err, lending.ErrNoCopiesAvailable)

	incremented, err := engine.TryIncrement(ctxWithTimeout, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, incremented.Available)
	assert.Equal(t, 2, incremented.Copies)

	stored, err := engine.FindBook(ctxWithTimeout, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Available)
}

func Test_TryDecrement_TryIncrement_ShouldFail_ForUnknownBook(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	unknownBookID := GivenUniqueID(t)

	// act
	_, decrementErr := engine.TryDecrement(ctxWithTimeout, unknownBookID)
	_, incrementErr := engine.TryIncrement(ctxWithTimeout, unknownBookID)

	// assert
	assert.ErrorIs(t, decrementErr, lending.ErrBookNotFound)
	assert.ErrorIs(t, incrementErr, lending.ErrBookNotFound)
}

func Test_InsertActive_StoresLoanWithZeroRenewals(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	borrowDate := time.Date(2024, 3, 10, 14, 30, 15, 123456789, time.UTC)
	loan := lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, book.ID, borrowDate)

	// act
	inserted, err := engine.InsertActive(ctxWithTimeout, loan)

	// assert
	require.NoError(t, err)
	assert.Equal(t, loan.ID, inserted.ID)
	assert.Equal(t, loan.UserID, inserted.UserID)
	assert.Equal(t, loan.BookID, inserted.BookID)
	assert.True(t, inserted.BorrowDate.Equal(lending.ToStoredTime(borrowDate)))
	assert.Nil(t, inserted.ReturnDate)
	assert.Equal(t, 0, inserted.RenewCount)

	found, err := engine.FindByID(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, inserted, found)
}

func Test_InsertActive_ShouldFail_ForDuplicateActiveLoan(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 2)
	user := GivenUser(t)
	today := FixtureDay(2024, 3, 10)
	_, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), user.ID, book.ID, today))
	require.NoError(t, err)

	// act
	_, err = engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), user.ID, book.ID, today))

	// assert
	assert.ErrorIs(t, err, lending.ErrDuplicateActiveLoan)

	total, active := CountLoansOfBook(t, wrapper, book.ID.String())
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, active)
}

func Test_InsertActive_Succeeds_AfterThePreviousLoanWasReturned(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	user := GivenUser(t)
	today := FixtureDay(2024, 3, 10)
	first, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), user.ID, book.ID, today))
	require.NoError(t, err)
	_, err = engine.TryReturn(ctxWithTimeout, first.ID, today.AddDate(0, 0, 3))
	require.NoError(t, err)

	// act
	_, err = engine.InsertActive(
		ctxWithTimeout,
		lending.BuildActiveLoan(GivenUniqueID(t), user.ID, book.ID, today.AddDate(0, 0, 4)),
	)

	// assert
	require.NoError(t, err)

	total, active := CountLoansOfBook(t, wrapper, book.ID.String())
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)
}

func Test_InsertActive_ShouldFail_ForUnknownBook(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	loan := lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, GivenUniqueID(t), FixtureDay(2024, 3, 10))

	// act
	_, err := engine.InsertActive(ctxWithTimeout, loan)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_TryRenew_UpToTheCap_ThenRejects(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	today := FixtureDay(2024, 3, 10)
	loan, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, book.ID, today))
	require.NoError(t, err)

	// act + assert
	for renewal := 1; renewal <= lending.MaxRenewals; renewal++ {
		newBorrowDate := today.AddDate(0, 0, renewal)

		renewed, renewErr := engine.TryRenew(ctxWithTimeout, loan.ID, newBorrowDate)

		require.NoError(t, renewErr)
		assert.Equal(t, renewal, renewed.RenewCount)
		assert.True(t, renewed.BorrowDate.Equal(newBorrowDate))
	}

	_, err = engine.TryRenew(ctxWithTimeout, loan.ID, today.AddDate(0, 0, 5))
	assert.ErrorIs(t, err, lending.ErrRenewalNotPermitted)

	stored, err := engine.FindByID(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.MaxRenewals, stored.RenewCount)
}

func Test_TryRenew_ShouldFail_ForReturnedOrUnknownLoan(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	today := FixtureDay(2024, 3, 10)
	loan, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, book.ID, today))
	require.NoError(t, err)
	_, err = engine.TryReturn(ctxWithTimeout, loan.ID, today)
	require.NoError(t, err)

	// act
	_, returnedErr := engine.TryRenew(ctxWithTimeout, loan.ID, today.AddDate(0, 0, 1))
	_, unknownErr := engine.TryRenew(ctxWithTimeout, GivenUniqueID(t), today.AddDate(0, 0, 1))

	// assert
	assert.ErrorIs(t, returnedErr, lending.ErrLoanNotFoundOrInactive)
	assert.ErrorIs(t, unknownErr, lending.ErrLoanNotFoundOrInactive)
}

func Test_TryReturn_OnlyOnce(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	today := FixtureDay(2024, 3, 10)
	loan, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, book.ID, today))
	require.NoError(t, err)
	returnDate := today.AddDate(0, 0, 7)

	// act
	returned, firstErr := engine.TryReturn(ctxWithTimeout, loan.ID, returnDate)
	_, secondErr := engine.TryReturn(ctxWithTimeout, loan.ID, returnDate.AddDate(0, 0, 1))

	// assert
	require.NoError(t, firstErr)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.Equal(returnDate))
	assert.False(t, returned.IsActive())
	assert.ErrorIs(t, secondErr, lending.ErrLoanNotFoundOrInactive)

	stored, err := engine.FindByID(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReturnDate)
	assert.True(t, stored.ReturnDate.Equal(returnDate), "the first return date must be kept")
}

func Test_TryDeleteIfReturned_OnlyDeletesReturnedLoans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	today := FixtureDay(2024, 3, 10)
	loan, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), GivenUser(t).ID, book.ID, today))
	require.NoError(t, err)

	// act + assert
	deleted, err := engine.TryDeleteIfReturned(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "an active loan must not be deleted")

	_, err = engine.TryReturn(ctxWithTimeout, loan.ID, today)
	require.NoError(t, err)

	deleted, err = engine.TryDeleteIfReturned(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = engine.TryDeleteIfReturned(ctxWithTimeout, loan.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting twice is a no-op")

	_, err = engine.FindByID(ctxWithTimeout, loan.ID)
	assert.ErrorIs(t, err, lending.ErrLoanNotFoundOrInactive)
}

func Test_FindActiveDuplicate(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 2)
	user := GivenUser(t)
	today := FixtureDay(2024, 3, 10)
	loan, err := engine.InsertActive(ctxWithTimeout, lending.BuildActiveLoan(GivenUniqueID(t), user.ID, book.ID, today))
	require.NoError(t, err)

	// act + assert
	found, ok, err := engine.FindActiveDuplicate(ctxWithTimeout, user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, loan.ID, found.ID)

	_, ok, err = engine.FindActiveDuplicate(ctxWithTimeout, GivenUser(t).ID, book.ID)
	require.NoError(t, err)
	assert.False(t, ok, "another user holds no loan")

	_, err = engine.TryReturn(ctxWithTimeout, loan.ID, today)
	require.NoError(t, err)

	_, ok, err = engine.FindActiveDuplicate(ctxWithTimeout, user.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a returned loan is no duplicate")
}

func Test_ListByUser_ReturnsMostRecentBorrowFirst(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	user := GivenUser(t)
	otherUser := GivenUser(t)
	olderBook := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)
	newerBook := GivenBookWasAdded(t, ctxWithTimeout, engine, 2)

	older, err := engine.InsertActive(
		ctxWithTimeout,
		lending.BuildActiveLoan(GivenUniqueID(t), user.ID, olderBook.ID, FixtureDay(2024, 2, 1)),
	)
	require.NoError(t, err)

	newer, err := engine.InsertActive(
		ctxWithTimeout,
		lending.BuildActiveLoan(GivenUniqueID(t), user.ID, newerBook.ID, FixtureDay(2024, 3, 1)),
	)
	require.NoError(t, err)

	_, err = engine.InsertActive(
		ctxWithTimeout,
		lending.BuildActiveLoan(GivenUniqueID(t), otherUser.ID, newerBook.ID, FixtureDay(2024, 3, 5)),
	)
	require.NoError(t, err)

	// act
	loans, err := engine.ListByUser(ctxWithTimeout, user.ID)

	// assert
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, newer.ID, loans[0].ID)
	assert.Equal(t, older.ID, loans[1].ID)

	none, err := engine.ListByUser(ctxWithTimeout, GivenUser(t).ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func Test_Operations_ShouldFail_WithCanceledContext(t *testing.T) {
	// setup
	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	_, err := engine.TryDecrement(canceledCtx, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, context.Canceled)
}

package postgresengine_test

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/postgresengine"
	. "github.com/AntonStoeckl/book-lending-go/testutil/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/book-lending-go/testutil/helper/postgreswrapper" //nolint:revive
	"github.com/AntonStoeckl/book-lending-go/testutil/postgresengine/config"
)

func Test_FactoryFunctions_NewEngine_ShouldPanic_WithUnsupportedAdapterType(t *testing.T) {
	// Save the original env var
	originalAdapterType := os.Getenv("ADAPTER_TYPE")
	defer func() {
		if originalAdapterType == "" {
			err := os.Unsetenv("ADAPTER_TYPE")
			assert.NoError(t, err)
		} else {
			err := os.Setenv("ADAPTER_TYPE", originalAdapterType)
			assert.NoError(t, err)
		}
	}()

	err := os.Setenv("ADAPTER_TYPE", "unsupported")
	assert.NoError(t, err)

	assert.Panics(t, func() {
		_ = CreateWrapperWithTestConfig(t)
	})
}

func Test_FactoryFunctions_NewEngine_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (*postgresengine.Engine, error)
	}{
		{
			name: "NewEngineFromPGXPool with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromPGXPool(nil)
			},
		},
		{
			name: "NewEngineFromSQLDB with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromSQLDB(nil)
			},
		},
		{
			name: "NewEngineFromSQLX with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromSQLX(nil)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := tc.factoryFunc()

			// assert
			assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)
		})
	}
}

func Test_FactoryFunctions_NewEngine_ShouldFail_WithEmptyTableNames(t *testing.T) {
	// setup
	db, err := sql.Open("postgres", config.PostgresTestDSN()) // does not connect yet
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	testCases := []struct {
		name   string
		option postgresengine.Option
	}{
		{name: "empty books table", option: postgresengine.WithBooksTableName("")},
		{name: "empty loans table", option: postgresengine.WithLoansTableName("")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, createErr := postgresengine.NewEngineFromSQLDB(db, tc.option)

			// assert
			assert.ErrorIs(t, createErr, lending.ErrEmptyTableName)
		})
	}
}

func Test_FactoryFunctions_NewEngine_ShouldFail_WithTableNamesBeyondIdentifierLimit(t *testing.T) {
	// setup
	db, err := sql.Open("postgres", config.PostgresTestDSN()) // does not connect yet
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	testCases := []struct {
		name     string
		option   postgresengine.Option
		expected error
	}{
		{name: "books table at the limit", option: postgresengine.WithBooksTableName(strings.Repeat("b", 63))},
		{
			name:     "books table beyond the limit",
			option:   postgresengine.WithBooksTableName(strings.Repeat("b", 64)),
			expected: lending.ErrTableNameTooLong,
		},
		{name: "loans table leaving room for index names", option: postgresengine.WithLoansTableName(strings.Repeat("l", 42))},
		{
			name:     "loans table whose index names would be truncated",
			option:   postgresengine.WithLoansTableName(strings.Repeat("l", 43)),
			expected: lending.ErrTableNameTooLong,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, createErr := postgresengine.NewEngineFromSQLDB(db, tc.option)

			// assert
			if tc.expected == nil {
				assert.NoError(t, createErr)
				return
			}

			assert.ErrorIs(t, createErr, tc.expected)
		})
	}
}

func Test_FactoryFunctions_Engine_WithCustomTableNames_ShouldWorkCorrectly(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(
		t,
		postgresengine.WithBooksTableName("books_custom"),
		postgresengine.WithLoansTableName("loans_custom"),
	)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWasAdded(t, ctxWithTimeout, engine, 1)

	// act
	decremented, err := engine.TryDecrement(ctxWithTimeout, book.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "books_custom", engine.BooksTableName())
	assert.Equal(t, "loans_custom", engine.LoansTableName())
	assert.Equal(t, 0, decremented.Available)
}

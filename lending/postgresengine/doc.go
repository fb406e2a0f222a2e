// Package postgresengine provides a PostgreSQL implementation of lending.InventoryStore and lending.LoanLedger.
//
// Every state change is a single conditional statement, so the database enforces the lending invariants:
//   - "UPDATE books SET available = available - 1 WHERE id = ? AND available > 0 RETURNING ..."
//   - "UPDATE books SET available = available + 1 WHERE id = ? AND available < copies RETURNING ..."
//   - "UPDATE loans SET return_date = ? WHERE id = ? AND return_date IS NULL RETURNING ..."
//
// A partial unique index on loans(user_id, book_id) WHERE return_date IS NULL rejects
// a second active loan for the same borrower and book even when two requests race.
//
// Multiple database adapters are supported (pgx.Pool, sql.DB, sqlx.DB).
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	engine, _ := postgresengine.NewEngineFromPGXPool(db)
//	_ = engine.CreateSchema(ctx)
//
//	// With custom table names and logging
//	engine, _ := postgresengine.NewEngineFromPGXPool(
//		db,
//		postgresengine.WithBooksTableName("library_books"),
//		postgresengine.WithLoansTableName("library_loans"),
//		postgresengine.WithLogger(slog.Default()),
//	)
//
//	book, err := engine.TryDecrement(ctx, bookID)
//	if errors.Is(err, lending.ErrNoCopiesAvailable) {
//		// all copies are lent out
//	}
package postgresengine

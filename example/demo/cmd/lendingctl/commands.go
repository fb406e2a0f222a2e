package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/book-lending-go/example/demo/historic"
	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/service"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the books and loans tables with their constraints and indexes",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			migrated, err := a.createSchema(cmd.Context())
			if err != nil {
				return operationFailed("migrate", err)
			}

			return printJSON(a.out, map[string]any{"adapter": a.cfg.Adapter, "migrated": migrated})
		}),
	}
}

func addBookCmd(a *app) *cobra.Command {
	var (
		id      string
		title   string
		authors []string
		copies  int
	)

	c := &cobra.Command{
		Use:   "add-book",
		Short: "Add a title with its number of copies to the catalogue",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			bookID := uuid.New()
			if id != "" {
				parsed, err := parseID("id", id)
				if err != nil {
					return err
				}

				bookID = parsed
			}

			book, err := lending.BuildBook(bookID, title, authors, copies)
			if err != nil {
				return operationFailed("add-book", err)
			}

			if err = a.backend.AddBook(cmd.Context(), book); err != nil {
				return operationFailed("add-book", err)
			}

			return printJSON(a.out, toBookView(book))
		}),
	}

	c.Flags().StringVar(&id, "id", "", "book ID (UUID, generated if omitted)")
	c.Flags().StringVar(&title, "title", "", "title (required)")
	c.Flags().StringSliceVar(&authors, "author", nil, "author, repeat for several")
	c.Flags().IntVar(&copies, "copies", 1, "number of copies")
	_ = c.MarkFlagRequired("title")

	return c
}

func bookCmd(a *app) *cobra.Command {
	var id string

	c := &cobra.Command{
		Use:   "book",
		Short: "Show the stock of a title",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			bookID, err := parseID("id", id)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			book, err := lendingService.FindBook(cmd.Context(), bookID)
			if err != nil {
				return operationFailed("book", err)
			}

			return printJSON(a.out, toBookView(book))
		}),
	}

	c.Flags().StringVar(&id, "id", "", "book ID (required)")
	_ = c.MarkFlagRequired("id")

	return c
}

func borrowCmd(a *app) *cobra.Command {
	var (
		user string
		book string
		role string
		at   string
	)

	c := &cobra.Command{
		Use:   "borrow",
		Short: "Lend a copy of a title to a user",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			userID, err := parseID("user", user)
			if err != nil {
				return err
			}

			bookID, err := parseID("book", book)
			if err != nil {
				return err
			}

			when, err := parseWhen(at)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			borrower := lending.Borrower{ID: userID, Role: lending.Role(role)}

			result, err := lendingService.Borrow(cmd.Context(), borrower, bookID, when)
			if err != nil {
				return operationFailed("borrow", err)
			}

			return printJSON(a.out, map[string]any{
				"loan":     toLoanView(lending.BuildLoanView(result.Loan, time.Now())),
				"book":     toBookView(result.Book),
				"attempts": result.Retry.Attempts,
			})
		}),
	}

	c.Flags().StringVar(&user, "user", "", "borrower ID (required)")
	c.Flags().StringVar(&book, "book", "", "book ID (required)")
	c.Flags().StringVar(&role, "role", string(lending.RoleUser), "borrower role: user or admin")
	c.Flags().StringVar(&at, "at", "", "borrow date (YYYY-MM-DD or RFC 3339), now if omitted")
	_ = c.MarkFlagRequired("user")
	_ = c.MarkFlagRequired("book")

	return c
}

func returnCmd(a *app) *cobra.Command {
	var (
		loan string
		at   string
	)

	c := &cobra.Command{
		Use:   "return",
		Short: "Close a loan and put the copy back on the shelf",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			loanID, err := parseID("loan", loan)
			if err != nil {
				return err
			}

			when, err := parseWhen(at)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			result, err := lendingService.Return(cmd.Context(), loanID, when)
			if err != nil {
				return operationFailed("return", err)
			}

			return printJSON(a.out, map[string]any{
				"loan":                 toLoanView(lending.BuildLoanView(result.Loan, time.Now())),
				"book":                 toBookView(result.Book),
				"inventory_reconciled": result.InventoryReconciled,
				"attempts":             result.Retry.Attempts,
			})
		}),
	}

	c.Flags().StringVar(&loan, "loan", "", "loan ID (required)")
	c.Flags().StringVar(&at, "at", "", "return date (YYYY-MM-DD or RFC 3339), now if omitted")
	_ = c.MarkFlagRequired("loan")

	return c
}

func renewCmd(a *app) *cobra.Command {
	var (
		loan string
		at   string
	)

	c := &cobra.Command{
		Use:   "renew",
		Short: "Extend an active loan by another loan period",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			loanID, err := parseID("loan", loan)
			if err != nil {
				return err
			}

			when, err := parseWhen(at)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			result, err := lendingService.Renew(cmd.Context(), loanID, when)
			if err != nil {
				return operationFailed("renew", err)
			}

			return printJSON(a.out, map[string]any{
				"loan":     toLoanView(lending.BuildLoanView(result.Loan, time.Now())),
				"due_date": result.DueDate,
				"attempts": result.Retry.Attempts,
			})
		}),
	}

	c.Flags().StringVar(&loan, "loan", "", "loan ID (required)")
	c.Flags().StringVar(&at, "at", "", "renewal date (YYYY-MM-DD or RFC 3339), now if omitted")
	_ = c.MarkFlagRequired("loan")

	return c
}

func deleteCmd(a *app) *cobra.Command {
	var loan string

	c := &cobra.Command{
		Use:   "delete",
		Short: "Delete a returned loan, active loans are kept",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			loanID, err := parseID("loan", loan)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			deleted, err := lendingService.Delete(cmd.Context(), loanID)
			if err != nil {
				return operationFailed("delete", err)
			}

			return printJSON(a.out, map[string]any{"loan_id": loanID, "deleted": deleted})
		}),
	}

	c.Flags().StringVar(&loan, "loan", "", "loan ID (required)")
	_ = c.MarkFlagRequired("loan")

	return c
}

func loansCmd(a *app) *cobra.Command {
	var user string

	c := &cobra.Command{
		Use:   "loans",
		Short: "List the loans of a user, most recent first",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			userID, err := parseID("user", user)
			if err != nil {
				return err
			}

			lendingService, err := a.newService()
			if err != nil {
				return err
			}

			views, err := lendingService.ListLoansForUser(cmd.Context(), userID)
			if err != nil {
				return operationFailed("loans", err)
			}

			loans := make([]loanView, 0, len(views))
			for _, view := range views {
				loans = append(loans, toLoanView(view))
			}

			return printJSON(a.out, map[string]any{"user_id": userID, "loans": loans})
		}),
	}

	c.Flags().StringVar(&user, "user", "", "borrower ID (required)")
	_ = c.MarkFlagRequired("user")

	return c
}

func seedHistoryCmd(a *app) *cobra.Command {
	var (
		books         int
		maxCopies     int
		users         int
		loansPerUser  int
		historyDays   int
		renewPercent  int
		returnPercent int
		seed          uint64
	)

	c := &cobra.Command{
		Use:   "seed-history",
		Short: "Add a catalogue and replay random past borrows, renewals and returns",
		RunE: a.withBackend(func(cmd *cobra.Command) error {
			clock := historic.NewReplayClock(time.Now().UTC())

			lendingService, err := a.newService(
				service.WithClock(clock),
				service.WithEventTimeSource(historic.NewEventTimeSource(lending.WallClock{}, seed)),
			)
			if err != nil {
				return err
			}

			generator, err := historic.NewGenerator(lendingService, a.backend, clock,
				historic.WithSeed(seed),
				historic.WithCatalogue(books, maxCopies),
				historic.WithBorrowers(users, loansPerUser),
				historic.WithHistoryDays(historyDays),
				historic.WithFollowUpPercentages(renewPercent, returnPercent),
				historic.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}

			report, err := generator.Run(cmd.Context())
			if err != nil {
				return operationFailed("seed-history", err)
			}

			return printJSON(a.out, report)
		}),
	}

	c.Flags().IntVar(&books, "books", 20, "number of titles")
	c.Flags().IntVar(&maxCopies, "max-copies", 4, "maximum copies per title")
	c.Flags().IntVar(&users, "users", 10, "number of borrowers")
	c.Flags().IntVar(&loansPerUser, "loans-per-user", 5, "borrows attempted per borrower")
	c.Flags().IntVar(&historyDays, "history-days", 90, "how many days back borrow dates may lie")
	c.Flags().IntVar(&renewPercent, "renew-percent", 30, "chance of a renewal after each loan event")
	c.Flags().IntVar(&returnPercent, "return-percent", 60, "chance of a return after each loan event")
	c.Flags().Uint64Var(&seed, "seed", 42, "seed of all random decisions")

	return c
}

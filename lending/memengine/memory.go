// Package memengine provides an in-memory implementation of lending.InventoryStore and lending.LoanLedger.
//
// Each book is guarded by its own mutex, so stock changes of different titles never block each other.
// Loans share one ledger mutex because the duplicate check spans all loans of a borrower.
// The engine is meant for tests, demos and single-process deployments.
package memengine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

const (
	logMsgOperation        = "lending memory store operation: "
	logMsgStockDecremented = "stock decremented"
	logMsgStockIncremented = "stock incremented"
	logMsgGuardRejected    = "conditional update rejected"
	logMsgLoanInserted     = "loan inserted"
	logMsgLoanRenewed      = "loan renewed"
	logMsgLoanReturned     = "loan returned"
	logMsgLoanDeleted      = "loan deleted"
	logAttrBookID          = "book_id"
	logAttrLoanID          = "loan_id"
	logAttrAvailable       = "available"
	logAttrReason          = "reason"
)

// ErrBookAlreadyExists is returned when AddBook is called twice for the same book ID.
var ErrBookAlreadyExists = errors.New("book already exists")

type bookEntry struct {
	mu   sync.Mutex
	book lending.Book
}

type activeKey struct {
	userID uuid.UUID
	bookID uuid.UUID
}

// Store is the in-memory lending store. The zero value is not usable, use New.
type Store struct {
	booksMu sync.RWMutex
	books   map[uuid.UUID]*bookEntry

	loansMu sync.Mutex
	loans   map[uuid.UUID]lending.Loan
	active  map[activeKey]uuid.UUID

	logger lending.Logger
}

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store. Stock and loan changes are logged at info level.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// New creates an empty Store.
func New(options ...Option) (*Store, error) {
	s := &Store{
		books:  make(map[uuid.UUID]*bookEntry),
		loans:  make(map[uuid.UUID]lending.Loan),
		active: make(map[activeKey]uuid.UUID),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// AddBook stores a new book.
func (s *Store) AddBook(ctx context.Context, book lending.Book) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(lending.ErrStoreFailure, err)
	}

	if err := book.Validate(); err != nil {
		return err
	}

	s.booksMu.Lock()
	defer s.booksMu.Unlock()

	if _, exists := s.books[book.ID]; exists {
		return errors.Join(lending.ErrStoreFailure, ErrBookAlreadyExists)
	}

	book.Authors = slices.Clone(book.Authors)
	s.books[book.ID] = &bookEntry{book: book}

	return nil
}

// FindBook returns the current state of a book or lending.ErrBookNotFound.
func (s *Store) FindBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	entry, err := s.bookEntry(ctx, bookID)
	if err != nil {
		return lending.Book{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return cloneBook(entry.book), nil
}

// TryDecrement decrements the available copies by one if at least one copy is available.
func (s *Store) TryDecrement(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	return s.adjustStock(ctx, bookID, -1)
}

// TryIncrement increments the available copies by one if not all copies are in stock.
func (s *Store) TryIncrement(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	return s.adjustStock(ctx, bookID, +1)
}

func (s *Store) adjustStock(ctx context.Context, bookID uuid.UUID, delta int) (lending.Book, error) {
	entry, err := s.bookEntry(ctx, bookID)
	if err != nil {
		return lending.Book{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch {
	case delta < 0 && entry.book.Available <= 0:
		s.logOperation(logMsgGuardRejected, logAttrBookID, bookID.String(), logAttrReason, lending.KindNoCopiesAvailable)
		return lending.Book{}, lending.ErrNoCopiesAvailable

	case delta > 0 && entry.book.Available >= entry.book.Copies:
		s.logOperation(logMsgGuardRejected, logAttrBookID, bookID.String(), logAttrReason, lending.KindNothingToReturn)
		return lending.Book{}, lending.ErrNothingToReturn
	}

	entry.book.Available += delta

	msg := logMsgStockDecremented
	if delta > 0 {
		msg = logMsgStockIncremented
	}

	s.logOperation(msg, logAttrBookID, bookID.String(), logAttrAvailable, entry.book.Available)

	return cloneBook(entry.book), nil
}

func (s *Store) bookEntry(ctx context.Context, bookID uuid.UUID) (*bookEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(lending.ErrStoreFailure, err)
	}

	s.booksMu.RLock()
	entry, ok := s.books[bookID]
	s.booksMu.RUnlock()

	if !ok {
		return nil, lending.ErrBookNotFound
	}

	return entry, nil
}

// InsertActive stores a new active loan, rejecting a second active loan for the same borrower and book.
func (s *Store) InsertActive(ctx context.Context, loan lending.Loan) (lending.Loan, error) {
	if err := ctx.Err(); err != nil {
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, err)
	}

	s.booksMu.RLock()
	_, bookExists := s.books[loan.BookID]
	s.booksMu.RUnlock()

	if !bookExists {
		return lending.Loan{}, lending.ErrBookNotFound
	}

	stored := lending.BuildActiveLoan(loan.ID, loan.UserID, loan.BookID, loan.BorrowDate)
	if err := stored.Validate(); err != nil {
		return lending.Loan{}, err
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	key := activeKey{userID: loan.UserID, bookID: loan.BookID}
	if _, duplicate := s.active[key]; duplicate {
		s.logOperation(logMsgGuardRejected, logAttrLoanID, loan.ID.String(), logAttrReason, lending.KindDuplicateActiveLoan)
		return lending.Loan{}, lending.ErrDuplicateActiveLoan
	}

	if _, exists := s.loans[loan.ID]; exists {
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, errors.New("loan id already in use"))
	}

	s.loans[stored.ID] = stored
	s.active[key] = stored.ID

	s.logOperation(logMsgLoanInserted, logAttrLoanID, stored.ID.String(), logAttrBookID, stored.BookID.String())

	return cloneLoan(stored), nil
}

// TryRenew moves the borrow date and increments the renew count of an active loan below the renewal cap.
func (s *Store) TryRenew(ctx context.Context, loanID uuid.UUID, newBorrowDate time.Time) (lending.Loan, error) {
	if err := ctx.Err(); err != nil {
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok || !loan.IsActive() {
		s.logOperation(logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, lending.KindLoanNotFoundOrInactive)
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	if loan.RenewCount >= lending.MaxRenewals {
		s.logOperation(logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, lending.KindRenewalNotPermitted)
		return lending.Loan{}, lending.ErrRenewalNotPermitted
	}

	loan.BorrowDate = lending.ToStoredTime(newBorrowDate)
	loan.RenewCount++
	s.loans[loanID] = loan

	s.logOperation(logMsgLoanRenewed, logAttrLoanID, loanID.String())

	return cloneLoan(loan), nil
}

// TryReturn sets the return date of an active loan.
func (s *Store) TryReturn(ctx context.Context, loanID uuid.UUID, returnDate time.Time) (lending.Loan, error) {
	if err := ctx.Err(); err != nil {
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok || !loan.IsActive() {
		s.logOperation(logMsgGuardRejected, logAttrLoanID, loanID.String(), logAttrReason, lending.KindLoanNotFoundOrInactive)
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	returned := lending.ToStoredTime(returnDate)
	loan.ReturnDate = &returned
	s.loans[loanID] = loan
	delete(s.active, activeKey{userID: loan.UserID, bookID: loan.BookID})

	s.logOperation(logMsgLoanReturned, logAttrLoanID, loanID.String(), logAttrBookID, loan.BookID.String())

	return cloneLoan(loan), nil
}

// TryDeleteIfReturned deletes a returned loan. Active or missing loans are left untouched.
func (s *Store) TryDeleteIfReturned(ctx context.Context, loanID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok || loan.IsActive() {
		return false, nil
	}

	delete(s.loans, loanID)

	s.logOperation(logMsgLoanDeleted, logAttrLoanID, loanID.String())

	return true, nil
}

// FindActiveDuplicate returns the active loan of bookID held by userID, if there is one.
func (s *Store) FindActiveDuplicate(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (lending.Loan, bool, error) {
	if err := ctx.Err(); err != nil {
		return lending.Loan{}, false, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	loanID, ok := s.active[activeKey{userID: userID, bookID: bookID}]
	if !ok {
		return lending.Loan{}, false, nil
	}

	return cloneLoan(s.loans[loanID]), true, nil
}

// FindByID returns a loan or lending.ErrLoanNotFoundOrInactive if it does not exist.
func (s *Store) FindByID(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	if err := ctx.Err(); err != nil {
		return lending.Loan{}, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	defer s.loansMu.Unlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return lending.Loan{}, lending.ErrLoanNotFoundOrInactive
	}

	return cloneLoan(loan), nil
}

// ListByUser returns all loans of a user, the most recently borrowed first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]lending.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(lending.ErrStoreFailure, err)
	}

	s.loansMu.Lock()
	loans := make([]lending.Loan, 0)
	for _, loan := range s.loans {
		if loan.UserID == userID {
			loans = append(loans, cloneLoan(loan))
		}
	}
	s.loansMu.Unlock()

	slices.SortFunc(loans, func(a, b lending.Loan) int {
		if c := b.BorrowDate.Compare(a.BorrowDate); c != 0 {
			return c
		}

		return slices.Compare(b.ID[:], a.ID[:])
	})

	return loans, nil
}

func (s *Store) logOperation(action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

func cloneBook(book lending.Book) lending.Book {
	book.Authors = slices.Clone(book.Authors)
	return book
}

func cloneLoan(loan lending.Loan) lending.Loan {
	if loan.ReturnDate != nil {
		returnDate := *loan.ReturnDate
		loan.ReturnDate = &returnDate
	}

	return loan
}

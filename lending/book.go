package lending

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// BookIDString represents a book identifier in its string form (store keys, log attributes).
type BookIDString = string

// Book holds the stock counters of one title.
//
// Copies is the total stock, Available the number of copies currently on the shelf.
// The invariant 0 <= Available <= Copies is maintained by the stores through conditional updates only.
type Book struct {
	ID        uuid.UUID
	Title     string
	Authors   []string
	Copies    int
	Available int
}

// BuildBook is a factory method for a freshly stocked Book with all copies available.
func BuildBook(id uuid.UUID, title string, authors []string, copies int) (Book, error) {
	book := Book{
		ID:        id,
		Title:     title,
		Authors:   authors,
		Copies:    copies,
		Available: copies,
	}

	if err := book.Validate(); err != nil {
		return Book{}, err
	}

	return book, nil
}

// Validate checks the stock invariant and the identity of the Book.
func (b Book) Validate() error {
	if b.ID == uuid.Nil {
		return errors.Join(ErrInvalidBook, errors.New("book id must not be empty"))
	}

	if b.Copies <= 0 {
		return errors.Join(ErrInvalidBook, fmt.Errorf("copies must be positive, got %d", b.Copies))
	}

	if b.Available < 0 || b.Available > b.Copies {
		return errors.Join(
			ErrInvalidBook,
			fmt.Errorf("available must be between 0 and %d, got %d", b.Copies, b.Available),
		)
	}

	return nil
}

// CopiesOnLoan returns how many copies are currently held by borrowers.
func (b Book) CopiesOnLoan() int {
	return b.Copies - b.Available
}

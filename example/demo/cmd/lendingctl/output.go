package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func printJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

type bookView struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	Copies    int       `json:"copies"`
	Available int       `json:"available"`
}

func toBookView(book lending.Book) bookView {
	authors := book.Authors
	if authors == nil {
		authors = []string{}
	}

	return bookView{
		ID:        book.ID,
		Title:     book.Title,
		Authors:   authors,
		Copies:    book.Copies,
		Available: book.Available,
	}
}

type loanView struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	BookID     uuid.UUID  `json:"book_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	RenewCount int        `json:"renew_count"`
	DueDate    time.Time  `json:"due_date"`
	Overdue    bool       `json:"overdue"`
	Renewable  bool       `json:"renewable"`
}

func toLoanView(view lending.LoanView) loanView {
	return loanView{
		ID:         view.Loan.ID,
		UserID:     view.Loan.UserID,
		BookID:     view.Loan.BookID,
		BorrowDate: view.Loan.BorrowDate,
		ReturnDate: view.Loan.ReturnDate,
		RenewCount: view.Loan.RenewCount,
		DueDate:    view.DueDate,
		Overdue:    view.Overdue,
		Renewable:  view.Renewable,
	}
}

func parseID(flag string, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", flag, err)
	}

	return id, nil
}

// parseWhen accepts a date (2006-01-02) or an RFC 3339 timestamp. An empty value yields the zero time,
// which lets the service pick the event time.
func parseWhen(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be a date (YYYY-MM-DD) or an RFC 3339 timestamp, got %q", value)
	}

	return t.UTC(), nil
}

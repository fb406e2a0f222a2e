package service

import (
	"time"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// BorrowResult is the outcome of a successful Borrow.
type BorrowResult struct {
	Loan  lending.Loan
	Book  lending.Book
	Retry RetryMetrics
}

// ReturnResult is the outcome of a successful Return.
//
// InventoryReconciled is false when the loan was closed but the stock could not be incremented.
// The loan stays returned in that case, the failure is logged and counted.
type ReturnResult struct {
	Loan                lending.Loan
	Book                lending.Book
	InventoryReconciled bool
	Retry               RetryMetrics
}

// RenewResult is the outcome of a successful Renew.
type RenewResult struct {
	Loan    lending.Loan
	DueDate time.Time
	Retry   RetryMetrics
}

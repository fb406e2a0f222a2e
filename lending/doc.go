// Package lending provides the core types and rules of a book lending engine.
//
// The package defines the records shared by all store implementations (Book, Loan),
// the store contracts (InventoryStore, LoanLedger), the pure lending policy
// (overdue computation, renewal eligibility, duplicate detection, follow-up dates)
// and the error taxonomy surfaced to callers.
//
// Stores must apply every mutation of Book.Available and Loan.ReturnDate as one atomic
// conditional update. The orchestration of borrow, return, renew and delete lives in
// the service sub-package.
//
// Key types:
//   - Book: stock counters for one title
//   - Loan: one borrower holding one copy of a title
//   - InventoryStore: conditional stock adjustments
//   - LoanLedger: guarded loan state transitions
//
// Common usage pattern:
//
//	today := lending.DateOf(time.Now())
//	if !lending.CanRenew(loan, today) {
//		return lending.ErrRenewalNotPermitted
//	}
//
//	renewed, err := ledger.TryRenew(ctx, loan.ID, today)
package lending

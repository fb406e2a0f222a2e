package historic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/service"
)

const (
	defaultBooks          = 20
	defaultMaxCopies      = 4
	defaultUsers          = 10
	defaultLoansPerUser   = 5
	defaultHistoryDays    = 90
	defaultRenewPercent   = 30
	defaultReturnPercent  = 60
	defaultSeed           = 42
	logMsgGeneratorPrefix = "historic generator: "
	logMsgCatalogueAdded  = "catalogue added"
	logMsgBorrowRejected  = "borrow rejected"
	logMsgRenewRejected   = "renewal rejected"
	logMsgFinished        = "finished"
	logAttrBooks          = "books"
	logAttrUsers          = "users"
	logAttrBorrowed       = "borrowed"
	logAttrRenewed        = "renewed"
	logAttrReturned       = "returned"
	logAttrErrorKind      = "error_kind"
)

var (
	// ErrNilLender is returned when no lending service is supplied.
	ErrNilLender = errors.New("lender must not be nil")

	// ErrNilCatalogue is returned when no catalogue is supplied.
	ErrNilCatalogue = errors.New("catalogue must not be nil")

	// ErrNilReplayClock is returned when no replay clock is supplied.
	ErrNilReplayClock = errors.New("replay clock must not be nil")

	// ErrInvalidGeneratorSetting is returned for counts or percentages out of range.
	ErrInvalidGeneratorSetting = errors.New("invalid generator setting")
)

// Lender is the part of the lending service the generator replays events through.
type Lender interface {
	Borrow(ctx context.Context, borrower lending.Borrower, bookID uuid.UUID, when time.Time) (service.BorrowResult, error)
	Renew(ctx context.Context, loanID uuid.UUID, when time.Time) (service.RenewResult, error)
	Return(ctx context.Context, loanID uuid.UUID, when time.Time) (service.ReturnResult, error)
}

// Catalogue adds books. Both memengine.Store and postgresengine.Engine implement it.
type Catalogue interface {
	AddBook(ctx context.Context, book lending.Book) error
}

// Report summarizes one generator run.
type Report struct {
	Books            []uuid.UUID `json:"books"`
	Users            []uuid.UUID `json:"users"`
	Borrowed         int         `json:"borrowed"`
	BorrowsRejected  int         `json:"borrows_rejected"`
	Renewed          int         `json:"renewed"`
	RenewalsRejected int         `json:"renewals_rejected"`
	Returned         int         `json:"returned"`
	Unreconciled     int         `json:"unreconciled"`
	ActiveLoans      int         `json:"active_loans"`
}

// Generator replays randomized lending history through a Lender.
type Generator struct {
	lender        Lender
	catalogue     Catalogue
	clock         *ReplayClock
	today         lending.Clock
	logger        lending.Logger
	books         int
	maxCopies     int
	users         int
	loansPerUser  int
	historyDays   int
	renewPercent  int
	returnPercent int
	seed          uint64
}

// Option configures a Generator.
type Option func(*Generator) error

// NewGenerator creates a Generator.
//
// The lender must evaluate its policy with the given clock (service.WithClock),
// otherwise replayed renewals are judged against the real today.
func NewGenerator(lender Lender, catalogue Catalogue, clock *ReplayClock, options ...Option) (*Generator, error) {
	if lender == nil {
		return nil, ErrNilLender
	}

	if catalogue == nil {
		return nil, ErrNilCatalogue
	}

	if clock == nil {
		return nil, ErrNilReplayClock
	}

	g := &Generator{
		lender:        lender,
		catalogue:     catalogue,
		clock:         clock,
		today:         lending.WallClock{},
		books:         defaultBooks,
		maxCopies:     defaultMaxCopies,
		users:         defaultUsers,
		loansPerUser:  defaultLoansPerUser,
		historyDays:   defaultHistoryDays,
		renewPercent:  defaultRenewPercent,
		returnPercent: defaultReturnPercent,
		seed:          defaultSeed,
	}

	for _, option := range options {
		if err := option(g); err != nil {
			return nil, err
		}
	}

	if g.renewPercent+g.returnPercent > 100 {
		return nil, fmt.Errorf("%w: renew and return percentages add up to %d", ErrInvalidGeneratorSetting,
			g.renewPercent+g.returnPercent)
	}

	return g, nil
}

// WithToday sets the clock that supplies the real today all generated dates are clamped to.
func WithToday(today lending.Clock) Option {
	return func(g *Generator) error {
		g.today = today
		return nil
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(logger lending.Logger) Option {
	return func(g *Generator) error {
		g.logger = logger
		return nil
	}
}

// WithSeed sets the seed of all random decisions. Equal seeds give equal histories.
func WithSeed(seed uint64) Option {
	return func(g *Generator) error {
		g.seed = seed
		return nil
	}
}

// WithCatalogue sets the number of books and the maximum number of copies per book.
func WithCatalogue(books int, maxCopies int) Option {
	return func(g *Generator) error {
		if books < 1 || maxCopies < 1 {
			return fmt.Errorf("%w: books and max copies must be positive, got %d/%d",
				ErrInvalidGeneratorSetting, books, maxCopies)
		}

		g.books = books
		g.maxCopies = maxCopies

		return nil
	}
}

// WithBorrowers sets the number of borrowers and how many borrows each of them attempts.
func WithBorrowers(users int, loansPerUser int) Option {
	return func(g *Generator) error {
		if users < 1 || loansPerUser < 0 {
			return fmt.Errorf("%w: users must be positive and loans per user not negative, got %d/%d",
				ErrInvalidGeneratorSetting, users, loansPerUser)
		}

		g.users = users
		g.loansPerUser = loansPerUser

		return nil
	}
}

// WithHistoryDays sets how far back borrow dates may lie.
func WithHistoryDays(days int) Option {
	return func(g *Generator) error {
		if days < 0 {
			return fmt.Errorf("%w: history days must not be negative, got %d", ErrInvalidGeneratorSetting, days)
		}

		g.historyDays = days

		return nil
	}
}

// WithFollowUpPercentages sets the chance of a renewal and of a return after each event of a loan.
func WithFollowUpPercentages(renewPercent int, returnPercent int) Option {
	return func(g *Generator) error {
		if renewPercent < 0 || returnPercent < 0 {
			return fmt.Errorf("%w: percentages must not be negative, got %d/%d",
				ErrInvalidGeneratorSetting, renewPercent, returnPercent)
		}

		g.renewPercent = renewPercent
		g.returnPercent = returnPercent

		return nil
	}
}

type eventKind int

const (
	eventBorrow eventKind = iota
	eventRenew
	eventReturn
)

type timelineEvent struct {
	kind   eventKind
	at     time.Time
	seq    int
	userID uuid.UUID
	bookID uuid.UUID
	loan   lending.Loan
}

// timeline holds the pending events ordered by date, events of the same date in scheduling order.
type timeline struct {
	events  []timelineEvent
	nextSeq int
}

func (tl *timeline) schedule(event timelineEvent) {
	event.seq = tl.nextSeq
	tl.nextSeq++

	i, _ := slices.BinarySearchFunc(tl.events, event, compareEvents)
	tl.events = slices.Insert(tl.events, i, event)
}

func (tl *timeline) pop() (timelineEvent, bool) {
	if len(tl.events) == 0 {
		return timelineEvent{}, false
	}

	event := tl.events[0]
	tl.events = tl.events[1:]

	return event, true
}

func compareEvents(a, b timelineEvent) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}

	return cmp.Compare(a.seq, b.seq)
}

// Run adds the catalogue, then replays borrows, renewals and returns of all loans on one timeline,
// so every event is replayed after all earlier events of every loan.
// Each borrow or renewal schedules at most one random follow-up, a renewal or a return.
// Rejections the live system would also produce are counted, any other error aborts the run.
func (g *Generator) Run(ctx context.Context) (Report, error) {
	rng := rand.New(rand.NewPCG(g.seed, g.seed+1)) //nolint:gosec
	today := lending.DateOf(g.today.Now())
	eventTimes := NewEventTimeSource(lending.FixedClock(today), g.seed+2)

	defer g.clock.Set(g.today.Now())

	report := Report{}

	for i := 0; i < g.books; i++ {
		book, err := lending.BuildBook(
			uuid.New(),
			fmt.Sprintf("Historic Title %03d", i+1),
			[]string{fmt.Sprintf("Author %02d", rng.IntN(g.books)+1)},
			rng.IntN(g.maxCopies)+1,
		)
		if err != nil {
			return report, err
		}

		if err = g.catalogue.AddBook(ctx, book); err != nil {
			return report, fmt.Errorf("adding book %d: %w", i+1, err)
		}

		report.Books = append(report.Books, book.ID)
	}

	for i := 0; i < g.users; i++ {
		report.Users = append(report.Users, uuid.New())
	}

	g.logInfo(logMsgCatalogueAdded, logAttrBooks, len(report.Books), logAttrUsers, len(report.Users))

	events := &timeline{}
	for _, userID := range report.Users {
		for j := 0; j < g.loansPerUser; j++ {
			events.schedule(timelineEvent{
				kind:   eventBorrow,
				userID: userID,
				bookID: report.Books[rng.IntN(len(report.Books))],
				at:     today.AddDate(0, 0, -rng.IntN(g.historyDays+1)),
			})
		}
	}

	for event, ok := events.pop(); ok; event, ok = events.pop() {
		g.clock.Set(event.at)

		var err error

		switch event.kind {
		case eventBorrow:
			err = g.replayBorrow(ctx, event, events, rng, eventTimes, &report)
		case eventRenew:
			err = g.replayRenew(ctx, event, events, rng, eventTimes, &report)
		case eventReturn:
			err = g.replayReturn(ctx, event, &report)
		}

		if err != nil {
			return report, err
		}
	}

	report.ActiveLoans = report.Borrowed - report.Returned

	g.logInfo(logMsgFinished,
		logAttrBorrowed, report.Borrowed,
		logAttrRenewed, report.Renewed,
		logAttrReturned, report.Returned,
	)

	return report, nil
}

func (g *Generator) replayBorrow(
	ctx context.Context,
	event timelineEvent,
	events *timeline,
	rng *rand.Rand,
	eventTimes *EventTimeSource,
	report *Report,
) error {

	borrowed, err := g.lender.Borrow(
		ctx,
		lending.Borrower{ID: event.userID, Role: lending.RoleUser},
		event.bookID,
		event.at,
	)

	switch {
	case errors.Is(err, lending.ErrNoCopiesAvailable), errors.Is(err, lending.ErrDuplicateActiveLoan):
		report.BorrowsRejected++
		g.logInfo(logMsgBorrowRejected, logAttrErrorKind, lending.ErrorKind(err))
		return nil
	case err != nil:
		return fmt.Errorf("borrowing at %s: %w", event.at.Format(time.DateOnly), err)
	}

	report.Borrowed++
	g.scheduleFollowUp(events, borrowed.Loan, event.at, true, rng, eventTimes)

	return nil
}

func (g *Generator) replayRenew(
	ctx context.Context,
	event timelineEvent,
	events *timeline,
	rng *rand.Rand,
	eventTimes *EventTimeSource,
	report *Report,
) error {

	renewed, err := g.lender.Renew(ctx, event.loan.ID, event.at)

	switch {
	case errors.Is(err, lending.ErrRenewalNotPermitted):
		report.RenewalsRejected++
		g.logInfo(logMsgRenewRejected, logAttrErrorKind, lending.ErrorKind(err))
		g.scheduleFollowUp(events, event.loan, event.at, false, rng, eventTimes)

		return nil
	case err != nil:
		return fmt.Errorf("renewing at %s: %w", event.at.Format(time.DateOnly), err)
	}

	report.Renewed++
	g.scheduleFollowUp(events, renewed.Loan, event.at, true, rng, eventTimes)

	return nil
}

func (g *Generator) replayReturn(ctx context.Context, event timelineEvent, report *Report) error {
	returned, err := g.lender.Return(ctx, event.loan.ID, event.at)
	if err != nil {
		return fmt.Errorf("returning at %s: %w", event.at.Format(time.DateOnly), err)
	}

	report.Returned++
	if !returned.InventoryReconciled {
		report.Unreconciled++
	}

	return nil
}

// scheduleFollowUp rolls whether the loan is renewed, returned or left active.
// A follow-up is never dated before the event it follows.
func (g *Generator) scheduleFollowUp(
	events *timeline,
	loan lending.Loan,
	after time.Time,
	renewable bool,
	rng *rand.Rand,
	eventTimes *EventTimeSource,
) {

	roll := rng.IntN(100)

	var kind eventKind

	switch {
	case renewable && roll < g.renewPercent && loan.RenewCount < lending.MaxRenewals:
		kind = eventRenew
	case roll < g.renewPercent+g.returnPercent:
		kind = eventReturn
	default:
		return
	}

	at := eventTimes.EventTimeFor(loan)
	if at.Before(after) {
		at = after
	}

	events.schedule(timelineEvent{kind: kind, at: at, loan: loan})
}

func (g *Generator) logInfo(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(logMsgGeneratorPrefix+msg, args...)
	}
}

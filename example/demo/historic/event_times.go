package historic

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

// EventTimeSource synthesizes renew and return dates 10 to 20 days after a loan's borrow date,
// clamped to the day reported by its clock. It is safe for concurrent use.
type EventTimeSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	today lending.Clock
}

// NewEventTimeSource creates an EventTimeSource with a deterministic random sequence for the given seed.
func NewEventTimeSource(today lending.Clock, seed uint64) *EventTimeSource {
	return &EventTimeSource{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec
		today: today,
	}
}

// IntN returns a pseudo-random int in [0, n).
func (s *EventTimeSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rng.IntN(n)
}

// EventTimeFor returns the synthesized follow-up date for the loan.
func (s *EventTimeSource) EventTimeFor(loan lending.Loan) time.Time {
	return lending.ClampedFollowUpDate(loan.BorrowDate, s.today.Now(), s)
}

// ReplayClock is a lending.Clock that reports whatever instant it was last set to.
//
// The Generator moves it to the date of each replayed event, so the service evaluates
// overdue and renewal rules as of that date instead of the real today.
type ReplayClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewReplayClock creates a ReplayClock starting at start.
func NewReplayClock(start time.Time) *ReplayClock {
	return &ReplayClock{now: start}
}

// Now returns the instant the clock was last set to.
func (c *ReplayClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.now
}

// Set moves the clock to t.
func (c *ReplayClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

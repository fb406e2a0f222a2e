package lending

import "time"

// Clock supplies "today" for policy decisions.
type Clock interface {
	Now() time.Time
}

// EventTimeSource supplies the effective time of a renew or return event
// when the caller does not provide one.
type EventTimeSource interface {
	EventTimeFor(loan Loan) time.Time
}

// WallClock uses the real time for both policy decisions and event times.
type WallClock struct{}

// Now returns the current time in UTC.
func (WallClock) Now() time.Time {
	return time.Now().UTC()
}

// EventTimeFor returns the current time in UTC, independent of the loan.
func (WallClock) EventTimeFor(_ Loan) time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Useful for tests and replays.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// EventTimeFor returns the fixed instant.
func (c FixedClock) EventTimeFor(_ Loan) time.Time {
	return time.Time(c)
}

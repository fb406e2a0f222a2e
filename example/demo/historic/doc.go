// Package historic fills a lending deployment with plausible past activity.
//
// The Generator adds a catalogue, creates borrowers and replays borrows, renewals and returns
// at dates in the past through the regular LendingService, so every invariant of the live system
// also holds for the generated data. Follow-up dates are synthesized with lending.ClampedFollowUpDate
// and never lie after "today".
//
// None of this is needed in production, where callers supply real event times.
package historic

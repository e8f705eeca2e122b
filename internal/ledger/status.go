package ledger

import "time"

// DeriveStatus computes the effective status of an entry as of the given
// day. An active override wins outright; otherwise the status follows the
// payment history and due date.
func DeriveStatus(e Entry, today time.Time) Status {
	if e.Override.IsOverride() {
		return e.Override
	}
	balance := e.Outstanding()
	switch {
	case e.Amount.IsPositive() && !balance.IsPositive():
		return StatusPaid
	case balance.IsPositive() && balance.LessThan(e.Amount):
		return StatusPartiallyPaid
	case balance.Equal(e.Amount) && e.DueDate.Before(truncateDay(today)):
		return StatusOverdue
	default:
		return StatusOpen
	}
}

// truncateDay drops the time-of-day component so an entry due today is not
// yet overdue.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package domain

import "time"

// RecomputeStatusFromDates derives a status from a date window alone. The
// end date is exclusive: a membership ending today is already expired.
// All arguments are calendar dates.
func RecomputeStatusFromDates(start, end *time.Time, today time.Time) Status {
	if start != nil && start.After(today) {
		return StatusUpcoming
	}
	if end != nil && !end.After(today) {
		return StatusExpired
	}
	return StatusActive
}

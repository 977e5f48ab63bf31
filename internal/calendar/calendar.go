// Package calendar converts between organization-local calendar dates and
// stored UTC instants, and derives membership end dates from plan cycles.
//
// A calendar date is represented as a time.Time at midnight UTC. Only its
// year, month and day are meaningful.
package calendar

import (
	"errors"
	"strings"
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidCycleUnit = errors.New("invalid_cycle_unit")
	ErrInvalidTimezone  = errors.New("invalid_timezone")
	ErrInvalidDate      = errors.New("invalid_date")
)

type Unit string

const (
	Day   Unit = "day"
	Week  Unit = "week"
	Month Unit = "month"
	Year  Unit = "year"
)

// Date truncates t to its calendar date in t's own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// LoadLocation resolves an organization timezone. Empty means UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

// ToUTCInstant returns the instant at which the local calendar date begins
// in loc. No calendar arithmetic is performed.
func ToUTCInstant(localDate time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := localDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
}

// DeriveEndDate adds duration units to start. A missing duration or unit
// falls back to one month.
func DeriveEndDate(duration *int, unit *string, start time.Time) (time.Time, error) {
	n := 1
	u := Month
	if duration != nil && *duration > 0 && unit != nil && strings.TrimSpace(*unit) != "" {
		n = *duration
		u = Unit(strings.ToLower(strings.TrimSpace(*unit)))
	}

	start = Date(start)
	switch u {
	case Day:
		return start.AddDate(0, 0, n), nil
	case Week:
		return start.AddDate(0, 0, 7*n), nil
	case Month:
		return start.AddDate(0, n, 0), nil
	case Year:
		return start.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidCycleUnit
	}
}

// DaysBetween counts calendar days from from up to, but not including, to.
// The result is negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

// AddDays shifts a calendar date by n days.
func AddDays(date time.Time, n int) time.Time {
	return Date(date).AddDate(0, 0, n)
}

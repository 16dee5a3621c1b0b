package sales

import (
	"errors"
	"time"
)

// MaxReportDays bounds the span of a report.
const MaxReportDays = 730

var (
	ErrRangeOrder          = errors.New("sales: start date is after end date")
	ErrBeforeBusinessStart = errors.New("sales: start date is before operations began")
	ErrFutureRange         = errors.New("sales: end date is in the future")
	ErrRangeTooLong        = errors.New("sales: date range exceeds two years")
)

// Day truncates t to its calendar date, keeping the location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ValidateRange checks an inclusive range of calendar days against the first
// day of operations and today.
func ValidateRange(from, to, businessStart, today time.Time) error {
	from, to = Day(from), Day(to)
	switch {
	case from.After(to):
		return ErrRangeOrder
	case !businessStart.IsZero() && from.Before(Day(businessStart)):
		return ErrBeforeBusinessStart
	case to.After(Day(today)):
		return ErrFutureRange
	case DaysBetween(from, to) > MaxReportDays:
		return ErrRangeTooLong
	}
	return nil
}

// DaysBetween counts calendar days from a to b, ignoring clock changes.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// MonthBounds widens an inclusive day range to whole calendar months.
func MonthBounds(from, to time.Time) (time.Time, time.Time) {
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location())
	end := time.Date(to.Year(), to.Month()+1, 1, 0, 0, 0, 0, to.Location()).AddDate(0, 0, -1)
	return start, end
}

// Days lists every calendar day of the inclusive range.
func Days(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

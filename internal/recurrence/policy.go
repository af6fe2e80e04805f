package recurrence

import (
	"errors"
	"fmt"
	"time"

	"opscycle/internal/model"
)

var ErrUnresolvable = errors.New("recurrence cannot be resolved")

// Period is one generation window. Bounds are date-granular; End is the
// inclusive last day of the window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Next returns the period window containing ref for the template's
// recurrence. The anchor date fixes the phase, so repeated calls with
// instants inside the same window return identical bounds regardless of
// wall-clock jitter.
func Next(t *model.Template, ref time.Time) (Period, error) {
	anchor := dateOf(t.RecurrenceAnchor)
	day := dateOf(ref)

	switch t.RecurrenceType {
	case model.RecurWeekly:
		return dayAligned(anchor, day, 7), nil
	case model.RecurBiweekly:
		return dayAligned(anchor, day, 14), nil
	case model.RecurCustom:
		if t.RecurrenceInterval <= 0 {
			return Period{}, fmt.Errorf("%w: custom type without interval", ErrUnresolvable)
		}
		return dayAligned(anchor, day, t.RecurrenceInterval), nil
	case model.RecurMonthly:
		return monthAligned(anchor, day, 1), nil
	case model.RecurQuarterly:
		return monthAligned(anchor, day, 3), nil
	default:
		return Period{}, fmt.Errorf("%w: unknown type %q", ErrUnresolvable, t.RecurrenceType)
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayAligned(anchor, day time.Time, length int) Period {
	diff := int(day.Sub(anchor).Hours() / 24)
	k := floorDiv(diff, length)
	start := anchor.AddDate(0, 0, k*length)
	return Period{Start: start, End: start.AddDate(0, 0, length-1)}
}

func monthAligned(anchor, day time.Time, months int) Period {
	mdiff := (day.Year()-anchor.Year())*12 + int(day.Month()) - int(anchor.Month())
	k := floorDiv(mdiff, months)

	start := anchor.AddDate(0, k*months, 0)
	// AddDate normalizes day-of-month overflow (Jan 31 + 1 month lands in
	// March), so correct until the window actually contains the day.
	for start.After(day) {
		k--
		start = anchor.AddDate(0, k*months, 0)
	}
	for !anchor.AddDate(0, (k+1)*months, 0).After(day) {
		k++
		start = anchor.AddDate(0, k*months, 0)
	}
	next := anchor.AddDate(0, (k+1)*months, 0)
	return Period{Start: start, End: next.AddDate(0, 0, -1)}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

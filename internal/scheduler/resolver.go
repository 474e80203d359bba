package scheduler

import (
	"fmt"
	"time"

	"github.com/tazhate/billbot/internal/domain"
	"github.com/teambition/rrule-go"
)

// ShouldFire decides whether the notification offset days ahead of a due day
// fires on today. It returns the target date (today's midnight) when it does.
//
// The due occurrence belonging to today's firing is today+offset, so a lead
// notification can fall into the month before the due date. A due day that
// does not exist in the occurrence's month (31 in April, 30 in February) is
// skipped for that month: it is never clamped to the last day and never rolled
// into the next month.
func ShouldFire(dueDay, offset int, today time.Time) (time.Time, bool) {
	if !domain.ValidDueDay(dueDay) || offset < 0 {
		return time.Time{}, false
	}
	day := dateOf(today)
	due := day.AddDate(0, 0, offset)
	if due.Day() != dueDay {
		return time.Time{}, false
	}
	return day, true
}

// DueOccurrence returns the due date of dueDay in the given month, or false
// when the month has no such day.
func DueOccurrence(year int, month time.Month, dueDay int, loc *time.Location) (time.Time, bool) {
	if !domain.ValidDueDay(dueDay) {
		return time.Time{}, false
	}
	t := time.Date(year, month, dueDay, 0, 0, 0, 0, loc)
	if t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// NextDue returns the first existing due date on or after from's calendar day.
func NextDue(dueDay int, from time.Time) (time.Time, error) {
	if !domain.ValidDueDay(dueDay) {
		return time.Time{}, fmt.Errorf("%w: day %d", domain.ErrInvalidInput, dueDay)
	}
	start := dateOf(from)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:       rrule.MONTHLY,
		Dtstart:    start,
		Bymonthday: []int{dueDay},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("build rrule: %w", err)
	}
	next := rule.After(start, true)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no occurrence of day %d after %s", dueDay, start.Format("2006-01-02"))
	}
	return next.In(from.Location()), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

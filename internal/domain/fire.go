package domain

import (
	"fmt"
	"time"
)

// Period identifies the calendar month a firing belongs to.
type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the "2006-01" form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Index orders periods; consecutive months differ by one.
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

// AddMonths shifts the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	idx := p.Index() + n
	return Period{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

func (p Period) Before(o Period) bool {
	return p.Index() < o.Index()
}

// FireKey identifies one lead-time notification of one reminder in one period.
type FireKey struct {
	ReminderID int64
	Offset     int
	Period     Period
}

func (k FireKey) String() string {
	return fmt.Sprintf("%d_%d_%s", k.ReminderID, k.Offset, k.Period)
}

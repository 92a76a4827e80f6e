package billing

import (
	"fmt"
	"time"
)

// Period is a billing period of whole calendar days. Start and End are both
// inclusive and held as midnight UTC date values.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthPeriod returns the calendar month. Out-of-range months normalize the
// way time.Date does, so month 0 is December of the previous year.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

// PeriodFor returns the month containing ref's calendar date.
func PeriodFor(ref time.Time) Period {
	y, m, _ := ref.Date()
	return MonthPeriod(y, m)
}

// PreviousMonth returns the month before the one containing ref.
func PreviousMonth(ref time.Time) Period {
	y, m, _ := ref.Date()
	return MonthPeriod(y, m-1)
}

// NewPeriod builds an arbitrary period from the calendar dates of start and end.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, fmt.Errorf("%w: start and end are required", ErrInvalidPeriod)
	}
	p := Period{Start: dateOf(start), End: dateOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidPeriod,
			p.End.Format("2006-01-02"), p.Start.Format("2006-01-02"))
	}
	return p, nil
}

// ParsePeriod parses "YYYY-MM" as a month or "YYYY-MM-DD:YYYY-MM-DD" as a range.
func ParsePeriod(s string) (Period, error) {
	if m, err := time.Parse("2006-01", s); err == nil {
		return MonthPeriod(m.Year(), m.Month()), nil
	}
	if len(s) == 21 && s[10] == ':' {
		start, err1 := time.Parse("2006-01-02", s[:10])
		end, err2 := time.Parse("2006-01-02", s[11:])
		if err1 == nil && err2 == nil {
			return NewPeriod(start, end)
		}
	}
	return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Validate reports whether the period is usable.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Bounds returns the half-open instant range [from, to) covering the period's
// days in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(p.Start.Year(), p.Start.Month(), p.Start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(p.End.Year(), p.End.Month(), p.End.Day()+1, 0, 0, 0, 0, loc)
	return from, to
}

// Contains reports whether instant t falls on one of the period's days in loc.
func (p Period) Contains(t time.Time, loc *time.Location) bool {
	from, to := p.Bounds(loc)
	return !t.Before(from) && t.Before(to)
}

// IsMonth reports whether the period is exactly one calendar month.
func (p Period) IsMonth() bool {
	return p.Start.Day() == 1 && p.End.Equal(p.Start.AddDate(0, 1, -1))
}

// Label renders the period for humans, e.g. "January 2026".
func (p Period) Label() string {
	if p.IsMonth() {
		return p.Start.Format("January 2006")
	}
	return fmt.Sprintf("%s to %s", p.Start.Format("2 Jan 2006"), p.End.Format("2 Jan 2006"))
}

// Key is a compact identifier used for locks and idempotency keys.
func (p Period) Key() string {
	return p.Start.Format("2006-01-02") + ":" + p.End.Format("2006-01-02")
}

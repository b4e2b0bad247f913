package domain

import (
	"fmt"
	"time"
)

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// RecurrenceRule is the stored form of a task_recurrence row.
type RecurrenceRule struct {
	Type     RecurrenceType
	Interval int
	EndDate  *time.Time // nullable, inclusive
}

// Recurrence is a validated rule. The set of variants is closed: Daily,
// Weekly and Monthly are the only implementations.
type Recurrence interface {
	// Next returns the due date following due.
	Next(due time.Time) time.Time
	recurrence()
}

type Daily struct{ Every int }

type Weekly struct{ Every int }

// Monthly advances by calendar months. When the target month is shorter than
// the source day, the day is clamped to the target month's last day, so
// Jan 31 + 1 month is Feb 29 in a leap year and Feb 28 otherwise.
type Monthly struct{ Every int }

func (d Daily) Next(due time.Time) time.Time  { return due.AddDate(0, 0, d.Every) }
func (w Weekly) Next(due time.Time) time.Time { return due.AddDate(0, 0, 7*w.Every) }

func (m Monthly) Next(due time.Time) time.Time {
	y, mon, day := due.Date()
	target := time.Date(y, mon+time.Month(m.Every), 1, 0, 0, 0, 0, due.Location())
	if last := daysInMonth(target); day > last {
		day = last
	}
	h, mi, s := due.Clock()
	return time.Date(target.Year(), target.Month(), day, h, mi, s, due.Nanosecond(), due.Location())
}

func (Daily) recurrence()   {}
func (Weekly) recurrence()  {}
func (Monthly) recurrence() {}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// Parse validates the rule and returns its variant. Unknown types wrap
// ErrUnknownRecurrence; there is no fallback unit.
func (r RecurrenceRule) Parse() (Recurrence, error) {
	if r.Interval < 1 {
		return nil, fmt.Errorf("recurrence %q interval %d: %w", r.Type, r.Interval, ErrInvalidInterval)
	}

	switch r.Type {
	case RecurrenceDaily:
		return Daily{Every: r.Interval}, nil
	case RecurrenceWeekly:
		return Weekly{Every: r.Interval}, nil
	case RecurrenceMonthly:
		return Monthly{Every: r.Interval}, nil
	default:
		return nil, fmt.Errorf("recurrence %q: %w", r.Type, ErrUnknownRecurrence)
	}
}

// Ends reports whether next falls after the rule's end date.
func (r RecurrenceRule) Ends(next time.Time) bool {
	return r.EndDate != nil && next.After(*r.EndDate)
}

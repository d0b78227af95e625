package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

type RecurrenceKind string

const (
	RecurrenceDaily      RecurrenceKind = "daily"
	RecurrenceWeekly     RecurrenceKind = "weekly"
	RecurrenceMonthly    RecurrenceKind = "monthly"
	RecurrenceYearly     RecurrenceKind = "yearly"
	RecurrenceCustomDays RecurrenceKind = "custom_days"
)

func (k RecurrenceKind) IsValid() bool {
	switch k {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly, RecurrenceCustomDays:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidRecurrenceKind = errors.New("model: invalid recurrence kind")
	ErrInvalidInterval       = errors.New("model: invalid recurrence interval")
	ErrInvalidDayOfWeek      = errors.New("model: invalid recurrence day of week")
)

// RecurrenceRule is a declarative repeat rule. Kind selects which of the
// per-kind fields are read: DaysOfWeek for weekly, DayOfMonth for monthly,
// Month and DayOfMonth for yearly.
type RecurrenceRule struct {
	Kind            RecurrenceKind `json:"type"`
	Interval        int            `json:"interval"`
	DaysOfWeek      []int          `json:"daysOfWeek,omitempty"` // ISO 1 (Mon) .. 7 (Sun)
	DayOfMonth      int            `json:"dayOfMonth,omitempty"`
	Month           int            `json:"month,omitempty"`
	AfterCompletion bool           `json:"afterCompletion"`
	EndDate         *time.Time     `json:"endDate,omitempty"`
	OccurrenceCount *int           `json:"occurrenceCount,omitempty"`
}

func (r RecurrenceRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrenceKind, r.Kind)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
	}
	if len(r.DaysOfWeek) > 0 {
		s := append([]int(nil), r.DaysOfWeek...)
		sort.Ints(s)
		for i, d := range s {
			if d < 1 || d > 7 {
				return fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, d)
			}
			if i > 0 && s[i] == s[i-1] {
				return errors.New("model: duplicate weekday in recurrence")
			}
		}
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return fmt.Errorf("model: invalid recurrence day of month: %d", r.DayOfMonth)
	}
	if r.Month < 0 || r.Month > 12 {
		return fmt.Errorf("model: invalid recurrence month: %d", r.Month)
	}
	if r.OccurrenceCount != nil && *r.OccurrenceCount < 1 {
		return fmt.Errorf("model: invalid recurrence occurrence count: %d", *r.OccurrenceCount)
	}
	return nil
}

// NextOccurrence returns the occurrence following lastDue. ok is false when
// the rule is exhausted by its occurrence count or end date.
func (r RecurrenceRule) NextOccurrence(lastDue time.Time, completedAt *time.Time, currentCount int) (time.Time, bool) {
	if r.OccurrenceCount != nil && currentCount >= *r.OccurrenceCount {
		return time.Time{}, false
	}
	if r.Interval < 1 {
		return time.Time{}, false
	}

	anchor := lastDue
	if r.AfterCompletion && completedAt != nil && !completedAt.IsZero() {
		anchor = *completedAt
	}

	var next time.Time
	switch r.Kind {
	case RecurrenceDaily, RecurrenceCustomDays:
		next = anchor.AddDate(0, 0, r.Interval)
	case RecurrenceWeekly:
		next = r.nextWeekly(anchor)
	case RecurrenceMonthly:
		next = r.nextMonthly(anchor, lastDue)
	case RecurrenceYearly:
		next = r.nextYearly(anchor, lastDue)
	default:
		return time.Time{}, false
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

func (r RecurrenceRule) nextWeekly(anchor time.Time) time.Time {
	if len(r.DaysOfWeek) == 0 || r.AfterCompletion {
		return anchor.AddDate(0, 0, 7*r.Interval)
	}
	days := r.sortedDays()
	current := ISOWeekday(anchor.Weekday())
	for _, d := range days {
		if d > current {
			return anchor.AddDate(0, 0, d-current)
		}
	}
	weekStart := anchor.AddDate(0, 0, 1-current)
	return weekStart.AddDate(0, 0, 7*r.Interval+days[0]-1)
}

func (r RecurrenceRule) nextMonthly(anchor, lastDue time.Time) time.Time {
	if r.AfterCompletion {
		return addMonthsClamped(anchor, r.Interval)
	}
	y, m, _ := anchor.Date()
	first := time.Date(y, m+time.Month(r.Interval), 1, 0, 0, 0, 0, anchor.Location())
	day := r.DayOfMonth
	if day <= 0 {
		day = lastDue.Day()
	}
	return withAnchorClock(dateClamped(first.Year(), first.Month(), day, anchor.Location()), lastDue)
}

func (r RecurrenceRule) nextYearly(anchor, lastDue time.Time) time.Time {
	if r.AfterCompletion {
		return addMonthsClamped(anchor, 12*r.Interval)
	}
	month := anchor.Month()
	if r.Month > 0 {
		month = time.Month(r.Month)
	}
	day := anchor.Day()
	if r.DayOfMonth > 0 {
		day = r.DayOfMonth
	}
	return withAnchorClock(dateClamped(anchor.Year()+r.Interval, month, day, anchor.Location()), lastDue)
}

// MatchesDay reports whether the calendar day holding day is a valid
// occurrence day for a series that started at start.
func (r RecurrenceRule) MatchesDay(start, day time.Time) bool {
	if r.Interval < 1 {
		return false
	}
	loc := day.Location()
	s := startOfDay(start.In(loc))
	d := startOfDay(day)
	if d.Before(s) {
		return false
	}
	if r.EndDate != nil && d.After(*r.EndDate) {
		return false
	}

	switch r.Kind {
	case RecurrenceDaily, RecurrenceCustomDays:
		return daysBetween(s, d)%r.Interval == 0
	case RecurrenceWeekly:
		weeks := daysBetween(weekStart(s), weekStart(d)) / 7
		if weeks%r.Interval != 0 {
			return false
		}
		days := r.DaysOfWeek
		if len(days) == 0 {
			days = []int{ISOWeekday(s.Weekday())}
		}
		want := ISOWeekday(d.Weekday())
		for _, v := range days {
			if v == want {
				return true
			}
		}
		return false
	case RecurrenceMonthly:
		months := (d.Year()-s.Year())*12 + int(d.Month()) - int(s.Month())
		if months%r.Interval != 0 {
			return false
		}
		want := r.DayOfMonth
		if want <= 0 {
			want = s.Day()
		}
		return d.Day() == min(want, DaysIn(d.Year(), d.Month()))
	case RecurrenceYearly:
		if (d.Year()-s.Year())%r.Interval != 0 {
			return false
		}
		month := s.Month()
		if r.Month > 0 {
			month = time.Month(r.Month)
		}
		if d.Month() != month {
			return false
		}
		want := r.DayOfMonth
		if want <= 0 {
			want = s.Day()
		}
		return d.Day() == min(want, DaysIn(d.Year(), d.Month()))
	default:
		return false
	}
}

func (r RecurrenceRule) sortedDays() []int {
	days := append([]int(nil), r.DaysOfWeek...)
	sort.Ints(days)
	return days
}

// DecodeRecurrence parses a persisted rule. Anything malformed or invalid
// decodes to nil, meaning the reminder does not repeat.
func DecodeRecurrence(raw []byte) *RecurrenceRule {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var rule RecurrenceRule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil
	}
	if rule.Validate() != nil {
		return nil
	}
	return &rule
}

// ISOWeekday maps Go's Sunday-first weekday onto ISO 1 (Mon) .. 7 (Sun).
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// DaysIn returns the number of days in the given month.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateClamped(y int, m time.Month, d int, loc *time.Location) time.Time {
	norm := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	return time.Date(norm.Year(), norm.Month(), min(d, DaysIn(norm.Year(), norm.Month())), 0, 0, 0, 0, loc)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	return withAnchorClock(dateClamped(y, m+time.Month(months), d, t.Location()), t)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func weekStart(day time.Time) time.Time {
	return day.AddDate(0, 0, 1-ISOWeekday(day.Weekday()))
}

// daysBetween counts calendar days, ignoring DST shifts.
func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func withAnchorClock(date time.Time, anchor time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), date.Location())
}

// Preview lists up to n upcoming occurrences after lastDue on the fixed
// schedule, stopping early when the rule is exhausted.
func (r RecurrenceRule) Preview(lastDue time.Time, currentCount, n int) []time.Time {
	out := make([]time.Time, 0, n)
	cursor := lastDue
	count := currentCount
	for len(out) < n {
		next, ok := r.NextOccurrence(cursor, nil, count)
		if !ok {
			break
		}
		out = append(out, next)
		cursor = next
		count++
	}
	return out
}

// Package selector picks the single soonest notification across a set of
// reminders.
package selector

import (
	"fmt"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

// DefaultHorizonDays bounds the day-by-day search for deadline-anchored
// recurring reminders.
const DefaultHorizonDays = 60

type Selector struct {
	// HorizonDays is how many days past today the deadline search may look.
	HorizonDays int
	// Location is the calendar used for day boundaries. Defaults to time.Local.
	Location *time.Location
}

func New(horizonDays int, loc *time.Location) Selector {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if loc == nil {
		loc = time.Local
	}
	return Selector{HorizonDays: horizonDays, Location: loc}
}

// Next returns the candidate with the earliest trigger time. Only ACTIVE and
// SNOOZED reminders contribute. Ties keep the first reminder seen.
func (s Selector) Next(reminders []model.Reminder, now time.Time) (model.Candidate, bool) {
	var (
		best  model.Candidate
		found bool
	)
	for _, r := range reminders {
		c, ok := s.candidateFor(r, now)
		if !ok {
			continue
		}
		if !found || c.TriggerTime.Before(best.TriggerTime) {
			best = c
			found = true
		}
	}
	if found && best.IsPreReminder {
		best = s.upcoming(best, reminders, now)
	}
	return best, found
}

func (s Selector) candidateFor(r model.Reminder, now time.Time) (model.Candidate, bool) {
	switch {
	case r.Status == model.StatusSnoozed:
		if r.SnoozeUntil != nil && r.SnoozeUntil.After(now) {
			return newCandidate(r, *r.SnoozeUntil, false), true
		}
		return model.Candidate{}, false
	case r.Status != model.StatusActive:
		return model.Candidate{}, false
	case r.Deadline != nil && r.Recurrence != nil:
		return s.deadlineSearch(r, now)
	case r.ReminderTime != nil && r.ReminderTime.After(now):
		return newCandidate(r, *r.ReminderTime, true), true
	case r.DueTime.After(now):
		return newCandidate(r, r.DueTime, false), true
	default:
		return model.Candidate{}, false
	}
}

// deadlineSearch walks calendar days from today looking for the first day
// the rule allows whose trigger is still ahead and not past the deadline.
func (s Selector) deadlineSearch(r model.Reminder, now time.Time) (model.Candidate, bool) {
	loc := s.location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	due := r.DueTime.In(loc)
	offset, hasPre := r.PreReminderOffset()
	horizon := s.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}

	for i := 0; i <= horizon; i++ {
		day := today.AddDate(0, 0, i)
		if day.After(*r.Deadline) {
			break
		}
		if !r.Recurrence.MatchesDay(r.DueTime, day) {
			continue
		}

		at := time.Date(day.Year(), day.Month(), day.Day(), due.Hour(), due.Minute(), due.Second(), 0, loc)
		trigger, pre := at, false
		if hasPre {
			if p := at.Add(-offset); p.After(now) {
				trigger, pre = p, true
			}
		}
		if !trigger.After(now) || trigger.After(*r.Deadline) {
			continue
		}
		return newCandidate(r, trigger, pre), true
	}
	return model.Candidate{}, false
}

func (s Selector) upcoming(c model.Candidate, reminders []model.Reminder, now time.Time) model.Candidate {
	due := c.TriggerTime
	for _, r := range reminders {
		if r.ID != c.ReminderID {
			continue
		}
		if off, ok := r.PreReminderOffset(); ok {
			due = c.TriggerTime.Add(off)
		}
		break
	}
	c.Body = fmt.Sprintf("Due %s", HumanTime(due, now, s.location()))
	c.Title = "Upcoming: " + c.Title
	return c
}

func (s Selector) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func newCandidate(r model.Reminder, at time.Time, pre bool) model.Candidate {
	body := r.Description
	if body == "" {
		body = r.Title
	}
	return model.Candidate{
		ReminderID:    r.ID,
		TriggerTime:   at,
		IsPreReminder: pre,
		Title:         r.Title,
		Body:          body,
	}
}

// HumanTime renders t relative to now: "today at 15:04", "tomorrow at
// 15:04", or "Mon Jan 2 at 15:04".
func HumanTime(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	n := now.In(loc)
	ty, tm, td := t.Date()
	ny, nm, nd := n.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	day := time.Date(ty, tm, td, 0, 0, 0, 0, loc)
	switch {
	case day.Equal(today):
		return "today at " + t.Format("15:04")
	case day.Equal(today.AddDate(0, 0, 1)):
		return "tomorrow at " + t.Format("15:04")
	default:
		return t.Format("Mon Jan 2") + " at " + t.Format("15:04")
	}
}

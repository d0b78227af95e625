package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/remindd/internal/model"
)

var now = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) // Tuesday

func ptr(t time.Time) *time.Time { return &t }

func reminder(id string, due time.Time) model.Reminder {
	return model.Reminder{
		ID:       id,
		OwnerID:  "owner-1",
		Title:    "title " + id,
		DueTime:  due,
		Status:   model.StatusActive,
		Priority: model.PriorityMedium,
	}
}

func TestNextPicksEarliestAcrossMixedSet(t *testing.T) {
	snoozed := reminder("snoozed", now.Add(-time.Hour))
	snoozed.Status = model.StatusSnoozed
	snoozed.SnoozeUntil = ptr(now.Add(5 * time.Minute))

	due := reminder("due", now.Add(3*time.Minute))

	pre := reminder("pre", now.Add(30*time.Minute))
	pre.ReminderTime = ptr(now.Add(time.Minute))

	c, ok := New(0, time.UTC).Next([]model.Reminder{snoozed, due, pre}, now)
	require.True(t, ok)
	assert.Equal(t, "pre", c.ReminderID)
	assert.True(t, c.IsPreReminder)
	assert.Equal(t, now.Add(time.Minute), c.TriggerTime)
	assert.Equal(t, "Upcoming: title pre", c.Title)
	assert.Equal(t, "Due today at 12:30", c.Body)
}

func TestNextRulesAreFirstMatch(t *testing.T) {
	// A snoozed reminder never falls through to its due time.
	snoozed := reminder("s", now.Add(time.Minute))
	snoozed.Status = model.StatusSnoozed
	snoozed.SnoozeUntil = ptr(now.Add(-time.Minute))

	_, ok := New(0, time.UTC).Next([]model.Reminder{snoozed}, now)
	assert.False(t, ok)

	// A passed pre-reminder falls through to the due time.
	r := reminder("r", now.Add(time.Hour))
	r.ReminderTime = ptr(now.Add(-time.Minute))
	c, ok := New(0, time.UTC).Next([]model.Reminder{r}, now)
	require.True(t, ok)
	assert.False(t, c.IsPreReminder)
	assert.Equal(t, r.DueTime, c.TriggerTime)
	assert.Equal(t, "title r", c.Title)
}

func TestNextIgnoresTerminalAndPast(t *testing.T) {
	var list []model.Reminder
	for _, st := range []model.Status{model.StatusCompleted, model.StatusDismissed, model.StatusMissed} {
		r := reminder(string(st), now.Add(time.Hour))
		r.Status = st
		list = append(list, r)
	}
	list = append(list, reminder("past", now.Add(-time.Hour)))

	_, ok := New(0, time.UTC).Next(list, now)
	assert.False(t, ok)

	_, ok = New(0, time.UTC).Next(nil, now)
	assert.False(t, ok)
}

func TestDeadlineSearchSkipsPassedTimeToday(t *testing.T) {
	r := reminder("d", time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC))
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1}
	r.Deadline = ptr(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))

	c, ok := New(0, time.UTC).Next([]model.Reminder{r}, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC), c.TriggerTime)
	assert.False(t, c.IsPreReminder)
}

func TestDeadlineSearchMatchesToday(t *testing.T) {
	r := reminder("d", time.Date(2026, 2, 3, 18, 0, 0, 0, time.UTC))
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceWeekly, Interval: 1, DaysOfWeek: []int{2}}
	r.Deadline = ptr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	c, ok := New(0, time.UTC).Next([]model.Reminder{r}, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC), c.TriggerTime)
}

func TestDeadlineSearchPrefersPreReminder(t *testing.T) {
	r := reminder("d", time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC))
	r.ReminderTime = ptr(time.Date(2026, 2, 9, 8, 30, 0, 0, time.UTC))
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1}
	r.Deadline = ptr(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC))

	c, ok := New(0, time.UTC).Next([]model.Reminder{r}, now)
	require.True(t, ok)
	assert.True(t, c.IsPreReminder)
	assert.Equal(t, time.Date(2026, 2, 11, 8, 30, 0, 0, time.UTC), c.TriggerTime)
	assert.Equal(t, "Due tomorrow at 09:00", c.Body)
}

func TestDeadlineSearchStopsAtDeadline(t *testing.T) {
	r := reminder("d", time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC))
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceWeekly, Interval: 1, DaysOfWeek: []int{5}}
	r.Deadline = ptr(time.Date(2026, 2, 12, 18, 0, 0, 0, time.UTC))

	_, ok := New(0, time.UTC).Next([]model.Reminder{r}, now)
	assert.False(t, ok)

	// Same day as the deadline but after it.
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1}
	r.DueTime = time.Date(2026, 2, 6, 19, 0, 0, 0, time.UTC)
	r.Deadline = ptr(time.Date(2026, 2, 10, 18, 30, 0, 0, time.UTC))
	_, ok = New(0, time.UTC).Next([]model.Reminder{r}, now)
	assert.False(t, ok)
}

func TestDeadlineSearchHorizon(t *testing.T) {
	r := reminder("d", time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC))
	r.Recurrence = &model.RecurrenceRule{Kind: model.RecurrenceMonthly, Interval: 1, DayOfMonth: 20}
	r.Deadline = ptr(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))

	_, ok := New(5, time.UTC).Next([]model.Reminder{r}, now)
	assert.False(t, ok, "next valid day is beyond a 5 day horizon")

	c, ok := New(DefaultHorizonDays, time.UTC).Next([]model.Reminder{r}, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC), c.TriggerTime)
}

func TestHumanTime(t *testing.T) {
	assert.Equal(t, "today at 18:05", HumanTime(time.Date(2026, 2, 10, 18, 5, 0, 0, time.UTC), now, time.UTC))
	assert.Equal(t, "tomorrow at 07:00", HumanTime(time.Date(2026, 2, 11, 7, 0, 0, 0, time.UTC), now, time.UTC))
	assert.Equal(t, "Fri Feb 13 at 07:00", HumanTime(time.Date(2026, 2, 13, 7, 0, 0, 0, time.UTC), now, time.UTC))
}

package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/selector"
)

// ShortID is the id prefix shown to users; commands accept it as a target.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

const (
	sectionSnoozed  = "Snoozed"
	sectionOverdue  = "Overdue"
	sectionUpcoming = "Upcoming"
	sectionClosed   = "Closed"
)

// Section buckets a reminder for list rendering.
func Section(r model.Reminder, now time.Time) string {
	switch {
	case !r.Status.Pending():
		return sectionClosed
	case r.Status == model.StatusSnoozed:
		return sectionSnoozed
	case r.DueTime.Before(now):
		return sectionOverdue
	default:
		return sectionUpcoming
	}
}

type ReminderListData struct {
	Items      []model.Reminder
	Now        time.Time
	Location   *time.Location
	SelectedID string
}

// RenderReminderList groups reminders into sections in a fixed order.
// Empty sections are skipped, except that an empty list says so.
func RenderReminderList(data ReminderListData) string {
	groups := map[string][]model.Reminder{}
	for _, r := range data.Items {
		s := Section(r, data.Now)
		groups[s] = append(groups[s], r)
	}

	var b strings.Builder
	for _, title := range []string{sectionOverdue, sectionSnoozed, sectionUpcoming, sectionClosed} {
		items := groups[title]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, r := range items {
			cursor := " "
			if data.SelectedID == r.ID {
				cursor = ">"
			}
			fmt.Fprintf(&b, "%s %s %s %s %s\n", cursor, ShortID(r.ID), Badge(r, data.Now), r.Title,
				dim(selector.HumanTime(r.DueTime, data.Now, data.Location)))
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(no reminders)"
	}
	return strings.TrimSpace(b.String())
}

// Badge marks urgency: overdue or high priority is red, snoozed or a
// pending pre-reminder is yellow.
func Badge(r model.Reminder, now time.Time) string {
	switch {
	case !r.Status.Pending():
		return mutedStyle.Render("[" + string(r.Status) + "]")
	case r.DueTime.Before(now) || r.Priority == model.PriorityHigh:
		return redStyle.Render("[RED]")
	case r.Status == model.StatusSnoozed || r.HasPreReminder():
		return yellowStyle.Render("[YELLOW]")
	default:
		return greenStyle.Render("[GREEN]")
	}
}

// ReminderMarkdown describes one reminder as markdown.
func ReminderMarkdown(r model.Reminder, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Description)
	}
	fmt.Fprintf(&b, "- **id:** `%s`\n", r.ID)
	fmt.Fprintf(&b, "- **status:** %s\n", r.Status)
	fmt.Fprintf(&b, "- **priority:** %s\n", r.Priority)
	fmt.Fprintf(&b, "- **due:** %s\n", selector.HumanTime(r.DueTime, now, loc))
	if r.ReminderTime != nil && r.HasPreReminder() {
		fmt.Fprintf(&b, "- **early notice:** %s\n", selector.HumanTime(*r.ReminderTime, now, loc))
	}
	if r.Deadline != nil {
		fmt.Fprintf(&b, "- **deadline:** %s\n", selector.HumanTime(*r.Deadline, now, loc))
	}
	if r.SnoozeUntil != nil && r.Status == model.StatusSnoozed {
		fmt.Fprintf(&b, "- **snoozed until:** %s\n", selector.HumanTime(*r.SnoozeUntil, now, loc))
	}
	if r.CompletedAt != nil {
		fmt.Fprintf(&b, "- **closed:** %s\n", selector.HumanTime(*r.CompletedAt, now, loc))
	}
	fmt.Fprintf(&b, "- **repeats:** %s\n", model.Describe(r.Recurrence))
	if rule := r.Recurrence; rule != nil && !rule.AfterCompletion {
		next := rule.Preview(r.DueTime.In(loc), r.CurrentOccurrence, 3)
		if len(next) > 0 {
			b.WriteString("\n## Next occurrences\n\n")
			for _, t := range next {
				fmt.Fprintf(&b, "- %s\n", selector.HumanTime(t, now, loc))
			}
		}
	}
	return b.String()
}

func RenderReminderDetail(r model.Reminder, now time.Time, loc *time.Location) string {
	return RenderMarkdown(ReminderMarkdown(r, now, loc))
}

// RenderNext is the one-line summary of the armed alarm.
func RenderNext(c *model.Candidate, now time.Time, loc *time.Location) string {
	if c == nil {
		return "next: nothing scheduled"
	}
	kind := "DUE"
	if c.IsPreReminder {
		kind = "EARLY"
	}
	return fmt.Sprintf("next: [%s] %s %s", kind, c.Title, selector.HumanTime(c.TriggerTime, now, loc))
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderNotification(level string, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("notification: [%s] %s", strings.ToUpper(level), body)
}

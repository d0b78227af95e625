package model

import (
	"fmt"
	"strings"
	"time"
)

var isoDayNames = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Describe renders a short human summary such as "Every 2 weeks on Mon, Wed".
func Describe(rule *RecurrenceRule) string {
	if rule == nil {
		return "Does not repeat"
	}

	var b strings.Builder
	switch rule.Kind {
	case RecurrenceDaily, RecurrenceCustomDays:
		b.WriteString(every(rule.Interval, "day"))
	case RecurrenceWeekly:
		b.WriteString(every(rule.Interval, "week"))
		if len(rule.DaysOfWeek) > 0 && !rule.AfterCompletion {
			names := make([]string, 0, len(rule.DaysOfWeek))
			for _, d := range rule.sortedDays() {
				if d >= 1 && d <= 7 {
					names = append(names, isoDayNames[d])
				}
			}
			b.WriteString(" on " + strings.Join(names, ", "))
		}
	case RecurrenceMonthly:
		b.WriteString(every(rule.Interval, "month"))
		if rule.DayOfMonth > 0 && !rule.AfterCompletion {
			fmt.Fprintf(&b, " on day %d", rule.DayOfMonth)
		}
	case RecurrenceYearly:
		b.WriteString(every(rule.Interval, "year"))
		if rule.Month > 0 && rule.DayOfMonth > 0 && !rule.AfterCompletion {
			fmt.Fprintf(&b, " on %s %d", time.Month(rule.Month).String()[:3], rule.DayOfMonth)
		}
	default:
		return "Does not repeat"
	}

	if rule.AfterCompletion {
		b.WriteString(" after completion")
	}
	if rule.OccurrenceCount != nil {
		fmt.Fprintf(&b, ", %d times", *rule.OccurrenceCount)
	}
	if rule.EndDate != nil {
		b.WriteString(", until " + rule.EndDate.Format("Jan 2, 2006"))
	}
	return b.String()
}

func every(n int, unit string) string {
	if n <= 1 {
		return "Every " + unit
	}
	return fmt.Sprintf("Every %d %ss", n, unit)
}

package commands

import (
	"strconv"
	"strings"
	"time"
)

const defaultClock = 9 * time.Hour

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseWhen reads a time phrase relative to now:
//
//	now | in 90m | +2h | in 3 days | 18:30 | today 18:30 | tomorrow |
//	fri 08:00 | next monday | 2026-03-10 | 2026-03-10 09:15 | RFC3339
//
// A day without a clock means 09:00. A bare clock that already passed
// today means tomorrow.
func ParseWhen(phrase string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	p := strings.ToLower(strings.Join(strings.Fields(phrase), " "))
	if p == "" {
		return time.Time{}, invalidArg("empty time")
	}
	if p == "now" {
		return now, nil
	}
	if rest, ok := strings.CutPrefix(p, "in "); ok {
		d, err := ParseDuration(rest)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if rest, ok := strings.CutPrefix(p, "+"); ok {
		d, err := ParseDuration(rest)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(phrase), loc); err == nil {
			if layout == "2006-01-02" {
				t = t.Add(defaultClock)
			}
			return t, nil
		}
	}

	day, clockPart := splitDay(p)
	clock, hasClock := defaultClock, false
	if clockPart != "" {
		c, err := parseClock(clockPart)
		if err != nil {
			return time.Time{}, err
		}
		clock, hasClock = c, true
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch {
	case day == "" || day == "today":
		t := atClock(midnight, clock)
		if day == "" && hasClock && !t.After(now) {
			t = atClock(midnight.AddDate(0, 0, 1), clock)
		}
		return t, nil
	case day == "tomorrow":
		return atClock(midnight.AddDate(0, 0, 1), clock), nil
	default:
		name := strings.TrimPrefix(day, "next ")
		wd, ok := weekdays[name]
		if !ok {
			return time.Time{}, invalidArg("unrecognised time %q", phrase)
		}
		ahead := (int(wd) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return atClock(midnight.AddDate(0, 0, ahead), clock), nil
	}
}

// splitDay separates a leading day word from a trailing clock.
func splitDay(p string) (day, clock string) {
	fields := strings.Fields(p)
	if n := len(fields); n > 0 && looksLikeClock(fields[n-1]) {
		clock = fields[n-1]
		fields = fields[:n-1]
	}
	if n := len(fields); n > 0 && fields[n-1] == "at" {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " "), clock
}

func looksLikeClock(s string) bool {
	if strings.Contains(s, ":") {
		return true
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "am"), "pm")
	_, err := strconv.Atoi(s)
	return err == nil && s != ""
}

func parseClock(s string) (time.Duration, error) {
	pm := strings.HasSuffix(s, "pm")
	am := strings.HasSuffix(s, "am")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "pm"), "am")
	hh, mm, _ := strings.Cut(s, ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, invalidArg("invalid clock %q", s)
	}
	m := 0
	if mm != "" {
		if m, err = strconv.Atoi(mm); err != nil {
			return 0, invalidArg("invalid clock %q", s)
		}
	}
	if am || pm {
		if h < 1 || h > 12 {
			return 0, invalidArg("invalid clock %q", s)
		}
		h %= 12
		if pm {
			h += 12
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, invalidArg("invalid clock %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func atClock(midnight time.Time, clock time.Duration) time.Time {
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(),
		int(clock/time.Hour), int(clock%time.Hour/time.Minute), 0, 0, midnight.Location())
}

var durationUnits = map[string]time.Duration{
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// ParseDuration accepts "15m", "2h", "3d", "1w", "2 hours", "1h30m". A bare
// number is minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" {
		return 0, invalidArg("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, invalidArg("duration must be positive")
		}
		return time.Duration(n) * time.Minute, nil
	}

	var total time.Duration
	for s != "" {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, invalidArg("invalid duration %q", s)
		}
		n, _ := strconv.Atoi(s[:i])
		s = s[i:]
		j := 0
		for j < len(s) && (s[j] < '0' || s[j] > '9') {
			j++
		}
		unit, ok := durationUnits[s[:j]]
		if !ok {
			return 0, invalidArg("unknown duration unit %q", s[:j])
		}
		total += time.Duration(n) * unit
		s = s[j:]
	}
	if total <= 0 {
		return 0, invalidArg("duration must be positive")
	}
	return total, nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/storage"
)

// Reminders is the repository surface the text commands drive.
type Reminders interface {
	Create(ctx context.Context, in model.Reminder) (model.Reminder, error)
	Complete(ctx context.Context, id string) (model.Reminder, error)
	Snooze(ctx context.Context, id string, minutes int) (model.Reminder, error)
	Dismiss(ctx context.Context, id string) (model.Reminder, error)
	Reschedule(ctx context.Context, id string, due time.Time) (model.Reminder, error)
	Get(ctx context.Context, id string) (model.Reminder, error)
	List(ctx context.Context, filter storage.ReminderFilter) ([]model.Reminder, error)
	Sync(ctx context.Context) (int, error)
	NextNotification(ctx context.Context) (model.Candidate, bool, error)
}

type Lister[T any] interface {
	List(ctx context.Context) ([]T, error)
}

// Env is what Bind needs to turn parsed commands into repository calls.
// Groups and Tags may be nil; group: and tag: options then fail.
type Env struct {
	Reminders Reminders
	Groups    Lister[model.Group]
	Tags      Lister[model.Tag]
	Now       func() time.Time
	Location  *time.Location
}

// Bind returns handlers that run every command against env.
func Bind(ctx context.Context, env Env) Handlers {
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Location == nil {
		env.Location = time.Local
	}
	b := binder{ctx: ctx, env: env}
	return Handlers{
		Add:        b.add,
		Snooze:     b.snooze,
		Complete:   b.complete,
		Dismiss:    b.dismiss,
		Show:       b.show,
		Reschedule: b.reschedule,
		Sync:       b.sync,
	}
}

type binder struct {
	ctx context.Context
	env Env
}

func (b binder) add(a AddArgs) (Result, error) {
	now := b.env.Now()
	when := a.When
	if when == "" {
		when = "in 1h"
	}
	due, err := ParseWhen(when, now, b.env.Location)
	if err != nil {
		return Result{}, err
	}

	in := model.Reminder{Title: a.Title, DueTime: due}
	if a.Priority != "" {
		in.Priority = model.Priority(strings.ToUpper(a.Priority))
		if !in.Priority.IsValid() {
			return Result{}, invalidArg("unknown priority %q", a.Priority)
		}
	}
	if a.Before != "" {
		d, err := ParseDuration(a.Before)
		if err != nil {
			return Result{}, err
		}
		at := due.Add(-d)
		in.ReminderTime = &at
	}
	if a.Deadline != "" {
		dl, err := ParseWhen(a.Deadline, now, b.env.Location)
		if err != nil {
			return Result{}, err
		}
		in.Deadline = &dl
	}
	if a.Every != "" {
		rule, err := ParseRecurrence(a.Every)
		if err != nil {
			return Result{}, err
		}
		in.Recurrence = &rule
	}
	if a.Group != "" {
		if in.GroupID, err = b.groupID(a.Group); err != nil {
			return Result{}, err
		}
	}
	for _, name := range a.Tags {
		id, err := b.tagID(name)
		if err != nil {
			return Result{}, err
		}
		in.TagIDs = append(in.TagIDs, id)
	}

	out, err := b.env.Reminders.Create(b.ctx, in)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message:   fmt.Sprintf("added %q due %s", out.Title, out.DueTime.In(b.env.Location).Format("Mon Jan 2 15:04")),
		Reminders: []model.Reminder{out},
	}, nil
}

func (b binder) snooze(s SnoozeArgs) (Result, error) {
	d, err := ParseDuration(s.For)
	if err != nil {
		return Result{}, err
	}
	minutes := int(d / time.Minute)
	if minutes < 1 {
		return Result{}, invalidArg("snooze must be at least one minute")
	}
	return b.onTarget(s.Target, "snoozed", func(id string) (model.Reminder, error) {
		return b.env.Reminders.Snooze(b.ctx, id, minutes)
	})
}

func (b binder) complete(t TargetArgs) (Result, error) {
	return b.onTarget(t.Target, "completed", func(id string) (model.Reminder, error) {
		return b.env.Reminders.Complete(b.ctx, id)
	})
}

func (b binder) dismiss(t TargetArgs) (Result, error) {
	return b.onTarget(t.Target, "dismissed", func(id string) (model.Reminder, error) {
		return b.env.Reminders.Dismiss(b.ctx, id)
	})
}

func (b binder) reschedule(r RescheduleArgs) (Result, error) {
	due, err := ParseWhen(r.When, b.env.Now(), b.env.Location)
	if err != nil {
		return Result{}, err
	}
	return b.onTarget(r.Target, "rescheduled", func(id string) (model.Reminder, error) {
		return b.env.Reminders.Reschedule(b.ctx, id, due)
	})
}

func (b binder) show(s ShowArgs) (Result, error) {
	if s.Subject == "next" {
		c, ok, err := b.env.Reminders.NextNotification(b.ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Message: "nothing scheduled"}, nil
		}
		return Result{Message: fmt.Sprintf("next: %s at %s", c.Title, c.TriggerTime.In(b.env.Location).Format("Mon Jan 2 15:04")), Next: &c}, nil
	}

	var filter storage.ReminderFilter
	switch s.Subject {
	case "all":
	case "active":
		filter.Statuses = []model.Status{model.StatusActive, model.StatusSnoozed}
	default:
		filter.Statuses = []model.Status{model.Status(strings.ToUpper(s.Subject))}
	}
	var err error
	if s.Group != "" {
		if filter.GroupID, err = b.groupID(s.Group); err != nil {
			return Result{}, err
		}
	}
	if s.Tag != "" {
		if filter.TagID, err = b.tagID(s.Tag); err != nil {
			return Result{}, err
		}
	}
	items, err := b.env.Reminders.List(b.ctx, filter)
	if err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("%d %s reminder(s)", len(items), s.Subject), Reminders: items}, nil
}

func (b binder) sync() (Result, error) {
	n, err := b.env.Reminders.Sync(b.ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sync pushed %d before failing: %w", n, err)
	}
	return Result{Message: fmt.Sprintf("pushed %d reminder(s)", n)}, nil
}

func (b binder) onTarget(target, verb string, do func(id string) (model.Reminder, error)) (Result, error) {
	id, err := b.resolve(target)
	if err != nil {
		return Result{}, err
	}
	out, err := do(id)
	if err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("%s %q", verb, out.Title), Reminders: []model.Reminder{out}}, nil
}

// resolve maps a target to a reminder id. Targets are "next", a full id,
// a unique id prefix, or the title of a pending reminder.
func (b binder) resolve(target string) (string, error) {
	if target == "next" {
		c, ok, err := b.env.Reminders.NextNotification(b.ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &CommandError{Code: ErrCodeNoMatch, Message: "nothing scheduled"}
		}
		return c.ReminderID, nil
	}
	if _, err := b.env.Reminders.Get(b.ctx, target); err == nil {
		return target, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	all, err := b.env.Reminders.List(b.ctx, storage.ReminderFilter{})
	if err != nil {
		return "", err
	}
	var byPrefix, byTitle []string
	for _, r := range all {
		if strings.HasPrefix(strings.ToLower(r.ID), target) {
			byPrefix = append(byPrefix, r.ID)
		}
		if r.Status.Pending() && strings.EqualFold(r.Title, target) {
			byTitle = append(byTitle, r.ID)
		}
	}
	for _, ids := range [][]string{byPrefix, byTitle} {
		switch len(ids) {
		case 0:
			continue
		case 1:
			return ids[0], nil
		default:
			return "", &CommandError{Code: ErrCodeAmbiguous, Message: fmt.Sprintf("%q matches %d reminders", target, len(ids))}
		}
	}
	return "", &CommandError{Code: ErrCodeNoMatch, Message: fmt.Sprintf("no reminder matches %q", target)}
}

func (b binder) groupID(name string) (string, error) {
	if b.env.Groups == nil {
		return "", &CommandError{Code: ErrCodeHandlerMissing, Message: "groups are not available"}
	}
	groups, err := b.env.Groups.List(b.ctx)
	if err != nil {
		return "", err
	}
	for _, g := range groups {
		if g.ID == name || strings.EqualFold(g.Name, name) {
			return g.ID, nil
		}
	}
	return "", &CommandError{Code: ErrCodeNoMatch, Message: fmt.Sprintf("no group named %q", name)}
}

func (b binder) tagID(name string) (string, error) {
	if b.env.Tags == nil {
		return "", &CommandError{Code: ErrCodeHandlerMissing, Message: "tags are not available"}
	}
	tags, err := b.env.Tags.List(b.ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tags {
		if t.ID == name || strings.EqualFold(t.Name, name) {
			return t.ID, nil
		}
	}
	return "", &CommandError{Code: ErrCodeNoMatch, Message: fmt.Sprintf("no tag named %q", name)}
}

var isoDays = map[string]int{"mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6, "sun": 7}

// ParseRecurrence reads "daily", "weekly/2", "monthly", "yearly",
// "weekdays" or a day list such as "mon,wed,fri". A "+done" suffix
// repeats from the completion instant instead of the calendar.
func ParseRecurrence(spec string) (model.RecurrenceRule, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	rule := model.RecurrenceRule{Interval: 1}
	if rest, ok := strings.CutSuffix(s, "+done"); ok {
		rule.AfterCompletion = true
		s = rest
	}
	if kind, n, ok := strings.Cut(s, "/"); ok {
		interval, err := strconv.Atoi(n)
		if err != nil || interval < 1 {
			return model.RecurrenceRule{}, invalidArg("invalid repeat interval %q", n)
		}
		rule.Interval = interval
		s = kind
	}

	switch s {
	case "daily", "day":
		rule.Kind = model.RecurrenceDaily
	case "weekly", "week":
		rule.Kind = model.RecurrenceWeekly
	case "monthly", "month":
		rule.Kind = model.RecurrenceMonthly
	case "yearly", "year":
		rule.Kind = model.RecurrenceYearly
	case "weekdays":
		rule.Kind = model.RecurrenceWeekly
		rule.DaysOfWeek = []int{1, 2, 3, 4, 5}
	default:
		rule.Kind = model.RecurrenceWeekly
		for _, name := range strings.Split(s, ",") {
			d, ok := isoDays[name]
			if !ok {
				return model.RecurrenceRule{}, invalidArg("unknown repeat %q", spec)
			}
			rule.DaysOfWeek = append(rule.DaysOfWeek, d)
		}
	}
	if err := rule.Validate(); err != nil {
		return model.RecurrenceRule{}, invalidArg("%v", err)
	}
	return rule, nil
}

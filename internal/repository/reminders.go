package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/storage"
)

// ReminderStore is the local reminder table.
type ReminderStore interface {
	storage.Collection[model.Reminder]
	Find(ctx context.Context, filter storage.ReminderFilter) ([]model.Reminder, error)
	Pending(ctx context.Context, ownerID string) ([]model.Reminder, error)
	ObserveFiltered(ctx context.Context, filter storage.ReminderFilter) (<-chan []model.Reminder, error)
}

var _ ReminderStore = (*storage.ReminderTable)(nil)

type ReminderRepository struct {
	store    ReminderStore
	sync     Pusher[model.Reminder]
	rearmer  Rearmer
	identity Identity
	opts     options
}

func NewReminderRepository(store ReminderStore, sync Pusher[model.Reminder], rearmer Rearmer, identity Identity, opts ...Option) *ReminderRepository {
	return &ReminderRepository{
		store:    store,
		sync:     sync,
		rearmer:  rearmer,
		identity: identity,
		opts:     buildOptions(opts),
	}
}

// Create inserts a new ACTIVE reminder owned by the signed-in account.
func (r *ReminderRepository) Create(ctx context.Context, in model.Reminder) (model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return model.Reminder{}, err
	}
	now := r.opts.now()
	if in.ID == "" {
		in.ID = r.opts.newID()
	}
	in.OwnerID = owner
	in.Status = model.StatusActive
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if in.Recurrence != nil && in.CurrentOccurrence == 0 {
		in.CurrentOccurrence = 1
	}
	in.SnoozeUntil = nil
	in.CompletedAt = nil
	in.CreatedAt = now
	in = in.Touch(now)
	if err := in.Validate(); err != nil {
		return model.Reminder{}, invalid(err)
	}
	if err := r.commit(ctx, in); err != nil {
		return model.Reminder{}, err
	}
	return in, nil
}

// Update replaces the editable fields of an existing reminder. Owner and
// creation time are kept; a status change must be a valid transition.
func (r *ReminderRepository) Update(ctx context.Context, in model.Reminder) (model.Reminder, error) {
	cur, err := r.load(ctx, in.ID)
	if err != nil {
		return model.Reminder{}, err
	}
	if in.Status == "" {
		in.Status = cur.Status
	}
	// Keeping a closed status edits fields only; it is not a transition.
	if in.Status != cur.Status && !CanTransition(cur.Status, in.Status) {
		return model.Reminder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, in.Status)
	}
	in.OwnerID = cur.OwnerID
	in.CreatedAt = cur.CreatedAt
	in = in.Touch(r.opts.now())
	if err := in.Validate(); err != nil {
		return model.Reminder{}, invalid(err)
	}
	if err := r.commit(ctx, in); err != nil {
		return model.Reminder{}, err
	}
	return in, nil
}

// Complete closes the reminder. A rule that repeats after completion
// spawns the next instance anchored at the completion instant.
func (r *ReminderRepository) Complete(ctx context.Context, id string) (model.Reminder, error) {
	now := r.opts.now()
	done, err := r.transition(ctx, id, model.StatusCompleted, now, func(rem *model.Reminder) {
		rem.CompletedAt = &now
		rem.SnoozeUntil = nil
	})
	if err != nil {
		return model.Reminder{}, err
	}

	rows := []model.Reminder{done}
	if rule := done.Recurrence; rule != nil && rule.AfterCompletion {
		if next, ok := r.successor(ctx, done, &now, now); ok {
			rows = append(rows, next)
		}
	}
	if err := r.commit(ctx, rows...); err != nil {
		return model.Reminder{}, err
	}
	return done, nil
}

func (r *ReminderRepository) Snooze(ctx context.Context, id string, minutes int) (model.Reminder, error) {
	if minutes <= 0 {
		return model.Reminder{}, fmt.Errorf("%w: %d", ErrInvalidSnooze, minutes)
	}
	now := r.opts.now()
	until := now.Add(time.Duration(minutes) * time.Minute)
	return r.apply(ctx, id, model.StatusSnoozed, now, func(rem *model.Reminder) {
		rem.SnoozeUntil = &until
	})
}

func (r *ReminderRepository) Dismiss(ctx context.Context, id string) (model.Reminder, error) {
	return r.apply(ctx, id, model.StatusDismissed, r.opts.now(), func(rem *model.Reminder) {
		rem.SnoozeUntil = nil
	})
}

// Reschedule moves the due time and shifts the pre-reminder with it. The
// reminder becomes ACTIVE again and any snooze is dropped.
func (r *ReminderRepository) Reschedule(ctx context.Context, id string, due time.Time) (model.Reminder, error) {
	if due.IsZero() {
		return model.Reminder{}, invalid(fmt.Errorf("%w: empty due time", model.ErrInvalidSchedule))
	}
	return r.apply(ctx, id, model.StatusActive, r.opts.now(), func(rem *model.Reminder) {
		if off, ok := rem.PreReminderOffset(); ok {
			rt := due.Add(-off)
			rem.ReminderTime = &rt
		} else if rem.ReminderTime != nil {
			rt := due
			rem.ReminderTime = &rt
		}
		rem.DueTime = due
		rem.SnoozeUntil = nil
	})
}

func (r *ReminderRepository) Delete(ctx context.Context, id string) error {
	cur, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.rearmer.Rearm(ctx)
	if err := r.sync.Remove(ctx, cur.OwnerID, id); err != nil {
		r.opts.log.Warn("remote delete deferred", zap.String("reminder_id", id), zap.Error(err))
	}
	return nil
}

func (r *ReminderRepository) Get(ctx context.Context, id string) (model.Reminder, error) {
	return r.load(ctx, id)
}

// List returns the signed-in owner's reminders matching filter. The
// filter's owner is always overridden.
func (r *ReminderRepository) List(ctx context.Context, filter storage.ReminderFilter) ([]model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return nil, err
	}
	filter.OwnerID = owner
	return r.store.Find(ctx, filter)
}

// Active lists reminders that can still notify.
func (r *ReminderRepository) Active(ctx context.Context) ([]model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return nil, err
	}
	return r.store.Pending(ctx, owner)
}

func (r *ReminderRepository) ObserveAll(ctx context.Context) (<-chan []model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return nil, err
	}
	return r.store.Observe(ctx, owner)
}

func (r *ReminderRepository) ObserveActive(ctx context.Context) (<-chan []model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return nil, err
	}
	return r.store.ObserveFiltered(ctx, storage.ReminderFilter{
		OwnerID:  owner,
		Statuses: []model.Status{model.StatusActive, model.StatusSnoozed},
	})
}

// ObserveByID emits the reminder after every change to the owner's
// reminders, or nil once it no longer exists.
func (r *ReminderRepository) ObserveByID(ctx context.Context, id string) (<-chan *model.Reminder, error) {
	lists, err := r.ObserveAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan *model.Reminder, 1)
	go func() {
		defer close(out)
		for list := range lists {
			var found *model.Reminder
			for i := range list {
				if list[i].ID == id {
					found = &list[i]
					break
				}
			}
			select {
			case <-out:
			default:
			}
			out <- found
		}
	}()
	return out, nil
}

// Sync pushes every unsynced reminder and rearms once.
func (r *ReminderRepository) Sync(ctx context.Context) (int, error) {
	owner, err := r.owner()
	if err != nil {
		return 0, err
	}
	pushed, err := r.sync.SyncAll(ctx, owner)
	r.rearmer.Rearm(ctx)
	return pushed, err
}

// NextNotification is the alarm that should be armed right now.
func (r *ReminderRepository) NextNotification(ctx context.Context) (model.Candidate, bool, error) {
	pending, err := r.Active(ctx)
	if err != nil {
		return model.Candidate{}, false, err
	}
	c, ok := r.opts.selector.Next(pending, r.opts.now())
	return c, ok, nil
}

// HandleNotificationDelivered reacts to a fired alarm. Recurring reminders
// that repeat on a fixed schedule spawn their next instance here.
func (r *ReminderRepository) HandleNotificationDelivered(ctx context.Context, id string, isPreReminder bool) error {
	r.SweepMissed(ctx)
	if isPreReminder {
		return nil
	}

	cur, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	log := r.opts.log.With(zap.String("reminder_id", id))

	switch {
	case cur.Status == model.StatusSnoozed:
		_, err := r.apply(ctx, id, model.StatusActive, r.opts.now(), func(rem *model.Reminder) {
			rem.SnoozeUntil = nil
		})
		return err
	case cur.Deadline != nil:
		return nil
	case cur.Recurrence == nil || cur.Recurrence.AfterCompletion || cur.Status != model.StatusActive:
		return nil
	}

	now := r.opts.now()
	next, ok := r.successor(ctx, cur, nil, now)
	if !ok {
		log.Debug("no further occurrence")
		return nil
	}
	return r.commit(ctx, next)
}

// SweepMissed marks every overdue ACTIVE reminder MISSED and rearms once.
// Failures are logged; the sweep never stops early.
func (r *ReminderRepository) SweepMissed(ctx context.Context) int {
	defer r.rearmer.Rearm(ctx)

	owner, err := r.owner()
	if err != nil {
		return 0
	}
	rows, err := r.store.Find(ctx, storage.ReminderFilter{OwnerID: owner, Statuses: []model.Status{model.StatusActive}})
	if err != nil {
		r.opts.log.Error("missed sweep: list reminders", zap.Error(err))
		return 0
	}

	now := r.opts.now()
	today := dayOf(now, r.opts.loc)
	missed := 0
	for _, rem := range rows {
		var overdue bool
		if rem.Deadline != nil {
			overdue = now.After(*rem.Deadline)
		} else {
			overdue = dayOf(rem.DueTime, r.opts.loc).Before(today)
		}
		if !overdue {
			continue
		}
		rem.Status = model.StatusMissed
		rem.CompletedAt = &now
		rem = rem.Touch(now)
		if err := r.store.Upsert(ctx, rem); err != nil {
			r.opts.log.Error("missed sweep: write", zap.String("reminder_id", rem.ID), zap.Error(err))
			continue
		}
		r.push(ctx, rem)
		missed++
	}
	if missed > 0 {
		r.opts.log.Info("reminders missed", zap.Int("count", missed))
	}
	return missed
}

// apply runs one status transition and commits it.
func (r *ReminderRepository) apply(ctx context.Context, id string, to model.Status, now time.Time, edit func(*model.Reminder)) (model.Reminder, error) {
	out, err := r.transition(ctx, id, to, now, edit)
	if err != nil {
		return model.Reminder{}, err
	}
	if err := r.commit(ctx, out); err != nil {
		return model.Reminder{}, err
	}
	return out, nil
}

func (r *ReminderRepository) transition(ctx context.Context, id string, to model.Status, now time.Time, edit func(*model.Reminder)) (model.Reminder, error) {
	cur, err := r.load(ctx, id)
	if err != nil {
		return model.Reminder{}, err
	}
	if !CanTransition(cur.Status, to) {
		return model.Reminder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}
	cur.Status = to
	edit(&cur)
	cur = cur.Touch(now)
	if err := cur.Validate(); err != nil {
		return model.Reminder{}, invalid(err)
	}
	return cur, nil
}

// successor builds the next instance of a recurring reminder, or reports
// false when the lineage is exhausted or the instance already exists.
func (r *ReminderRepository) successor(ctx context.Context, parent model.Reminder, completedAt *time.Time, now time.Time) (model.Reminder, bool) {
	rule := parent.Recurrence
	if rule == nil {
		return model.Reminder{}, false
	}
	if t := parent.TargetOccurrences; t != nil && parent.CurrentOccurrence >= *t {
		return model.Reminder{}, false
	}
	// Stored times come back in UTC; weekdays, month days and the clock
	// reading belong to the user's calendar.
	lastDue := parent.DueTime.In(r.opts.loc)
	var anchor *time.Time
	if completedAt != nil {
		c := completedAt.In(r.opts.loc)
		anchor = &c
	}
	due, ok := rule.NextOccurrence(lastDue, anchor, parent.CurrentOccurrence)
	if !ok {
		return model.Reminder{}, false
	}
	id := SuccessorID(parent.ID, parent.CurrentOccurrence+1)
	if _, err := r.store.Get(ctx, id); err == nil {
		r.opts.log.Debug("successor already spawned", zap.String("reminder_id", parent.ID), zap.String("successor_id", id))
		return model.Reminder{}, false
	} else if !errors.Is(err, storage.ErrNotFound) {
		r.opts.log.Error("look up successor", zap.String("successor_id", id), zap.Error(err))
		return model.Reminder{}, false
	}
	next := parent.NextInstance(id, due, now)
	r.opts.log.Info("next occurrence spawned",
		zap.String("reminder_id", parent.ID),
		zap.String("successor_id", id),
		zap.Time("due_time", due),
		zap.Int("occurrence", next.CurrentOccurrence),
	)
	return next, true
}

// commit writes rows locally, rearms once, then pushes each row.
func (r *ReminderRepository) commit(ctx context.Context, rows ...model.Reminder) error {
	for _, row := range rows {
		if err := r.store.Upsert(ctx, row); err != nil {
			return fmt.Errorf("repository: save reminder %s: %w", row.ID, err)
		}
	}
	r.rearmer.Rearm(ctx)
	for _, row := range rows {
		r.push(ctx, row)
	}
	return nil
}

func (r *ReminderRepository) push(ctx context.Context, row model.Reminder) {
	if err := r.sync.Push(ctx, row); err != nil {
		r.opts.log.Warn("push deferred", zap.String("reminder_id", row.ID), zap.Error(err))
	}
}

func (r *ReminderRepository) load(ctx context.Context, id string) (model.Reminder, error) {
	owner, err := r.owner()
	if err != nil {
		return model.Reminder{}, err
	}
	rem, err := r.store.Get(ctx, id)
	if err != nil {
		return model.Reminder{}, err
	}
	if rem.OwnerID != owner {
		return model.Reminder{}, storage.ErrNotFound
	}
	return rem, nil
}

func (r *ReminderRepository) owner() (string, error) {
	owner := r.identity.OwnerID()
	if owner == "" {
		return "", ErrSignedOut
	}
	return owner, nil
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

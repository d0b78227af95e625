package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/selector"
	"github.com/sandeepkv93/remindd/internal/storage"
)

const testOwner = "owner-1"

type countingRearmer struct {
	mu        sync.Mutex
	rearms    int
	cancelled []string
}

func (c *countingRearmer) Rearm(context.Context) {
	c.mu.Lock()
	c.rearms++
	c.mu.Unlock()
}

func (c *countingRearmer) CancelFor(_ context.Context, id string) {
	c.mu.Lock()
	c.cancelled = append(c.cancelled, id)
	c.mu.Unlock()
}

func (c *countingRearmer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rearms
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Each reading moves forward so successive edits get distinct versions.
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	store   *storage.SQLiteStore
	remote  *remote.Memory
	rearmer *countingRearmer
	clock   *testClock
	repo    *ReminderRepository
	groups  *GroupRepository
	tags    *TagRepository
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	return newFixtureIn(t, now, time.UTC)
}

func newFixtureIn(t *testing.T, now time.Time, loc *time.Location) *fixture {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:   store,
		remote:  remote.NewMemory(),
		rearmer: &countingRearmer{},
		clock:   &testClock{now: now},
	}
	opts := []Option{
		WithClock(f.clock.Now),
		WithLocation(loc),
		WithSelector(selector.New(selector.DefaultHorizonDays, loc)),
	}
	reminders := reconcile.New(reconcile.Config[model.Reminder]{
		Collection: remote.CollectionReminders, Local: store.Reminders(), Remote: f.remote,
	})
	groups := reconcile.New(reconcile.Config[model.Group]{
		Collection: remote.CollectionGroups, Local: store.Groups(), Remote: f.remote,
	})
	tags := reconcile.New(reconcile.Config[model.Tag]{
		Collection: remote.CollectionTags, Local: store.Tags(), Remote: f.remote,
	})
	identity := StaticIdentity(testOwner)
	f.repo = NewReminderRepository(store.Reminders(), reminders, f.rearmer, identity, opts...)
	f.groups = NewGroupRepository(store.Groups(), groups, identity, opts...)
	f.tags = NewTagRepository(store.Tags(), tags, identity, opts...)
	return f
}

func (f *fixture) all(t *testing.T) []model.Reminder {
	t.Helper()
	rows, err := f.repo.List(context.Background(), storage.ReminderFilter{})
	require.NoError(t, err)
	return rows
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 10, hh, mm, 0, 0, time.UTC)
}

func TestPreReminderThenDueDeliveryCreatesNothing(t *testing.T) {
	now := at(8, 0)
	f := newFixture(t, now)
	ctx := context.Background()

	due := now.Add(time.Hour)
	pre := due.Add(-10 * time.Minute)
	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Stand-up", DueTime: due, ReminderTime: &pre})
	require.NoError(t, err)

	c, ok, err := f.repo.NextNotification(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c.IsPreReminder)
	assert.True(t, c.TriggerTime.Equal(pre))
	assert.Equal(t, "Upcoming: Stand-up", c.Title)

	f.clock.Set(pre)
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, true))
	rows := f.all(t)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusActive, rows[0].Status)

	f.clock.Set(due)
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))
	rows = f.all(t)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusActive, rows[0].Status)
}

func TestFixedScheduleDeliverySpawnsExactlyOneSuccessor(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{
		Title:             "Vitamins",
		DueTime:           at(9, 0),
		Recurrence:        &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1},
		CurrentOccurrence: 1,
	})
	require.NoError(t, err)

	f.clock.Set(at(9, 0))
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))
	// A second delivery of the same alarm must not spawn another row.
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))

	rows := f.all(t)
	require.Len(t, rows, 2)

	original, err := f.repo.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, original.Status)
	assert.Equal(t, 1, original.CurrentOccurrence)

	next, err := f.repo.Get(ctx, SuccessorID(rem.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, next.Status)
	assert.Equal(t, 2, next.CurrentOccurrence)
	assert.True(t, next.DueTime.Equal(at(9, 0).AddDate(0, 0, 1)), "got %s", next.DueTime)

	_, pushed := f.remote.Get(remote.CollectionReminders, testOwner, next.ID)
	assert.True(t, pushed)
}

func TestDeadlineReminderDeliveryDoesNotSpawn(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	deadline := at(9, 0).AddDate(0, 0, 14)
	rem, err := f.repo.Create(ctx, model.Reminder{
		Title:      "Water plants",
		DueTime:    at(9, 0),
		Deadline:   &deadline,
		Recurrence: &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 2},
	})
	require.NoError(t, err)

	f.clock.Set(at(9, 0))
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))
	assert.Len(t, f.all(t), 1)
}

func TestCompleteAfterCompletionAnchorsAtCompletion(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{
		Title:      "Change filter",
		DueTime:    at(9, 0),
		Recurrence: &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 3, AfterCompletion: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rem.CurrentOccurrence)

	completedAt := at(14, 30)
	f.clock.Set(completedAt)
	done, err := f.repo.Complete(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	next, err := f.repo.Get(ctx, SuccessorID(rem.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, next.Status)
	assert.Nil(t, next.CompletedAt)
	assert.True(t, next.DueTime.Equal(done.CompletedAt.AddDate(0, 0, 3)), "got %s", next.DueTime)
}

func TestCompleteStopsAtOccurrenceCount(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	count := 1
	rem, err := f.repo.Create(ctx, model.Reminder{
		Title:      "Once more",
		DueTime:    at(9, 0),
		Recurrence: &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1, AfterCompletion: true, OccurrenceCount: &count},
	})
	require.NoError(t, err)

	_, err = f.repo.Complete(ctx, rem.ID)
	require.NoError(t, err)
	assert.Len(t, f.all(t), 1)
}

func TestSnoozeDeliveryReactivates(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Call back", DueTime: at(9, 0)})
	require.NoError(t, err)

	snoozed, err := f.repo.Snooze(ctx, rem.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSnoozed, snoozed.Status)
	require.NotNil(t, snoozed.SnoozeUntil)

	c, ok, err := f.repo.NextNotification(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, c.TriggerTime.Equal(*snoozed.SnoozeUntil))

	f.clock.Set(*snoozed.SnoozeUntil)
	require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))
	got, err := f.repo.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Nil(t, got.SnoozeUntil)

	_, err = f.repo.Snooze(ctx, rem.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidSnooze)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Pay rent", DueTime: at(9, 0)})
	require.NoError(t, err)
	_, err = f.repo.Dismiss(ctx, rem.ID)
	require.NoError(t, err)

	_, err = f.repo.Snooze(ctx, rem.ID, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.repo.Complete(ctx, rem.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.repo.Reschedule(ctx, rem.ID, at(10, 0))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.True(t, CanTransition(model.StatusSnoozed, model.StatusActive))
	assert.True(t, CanTransition(model.StatusActive, model.StatusMissed))
	assert.False(t, CanTransition(model.StatusMissed, model.StatusActive))
	assert.False(t, CanTransition(model.StatusCompleted, model.StatusDismissed))
}

func TestClosedRemindersAreTerminal(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{
		Title:      "Change filter",
		DueTime:    at(9, 0),
		Recurrence: &model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1, AfterCompletion: true},
	})
	require.NoError(t, err)

	f.clock.Set(at(9, 0))
	done, err := f.repo.Complete(ctx, rem.ID)
	require.NoError(t, err)
	successor := SuccessorID(rem.ID, 2)
	require.NoError(t, f.repo.Delete(ctx, successor))

	f.clock.Set(at(15, 0))
	_, err = f.repo.Complete(ctx, rem.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.repo.Get(ctx, successor)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a deleted successor must stay deleted")

	stored, err := f.repo.Get(ctx, rem.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(*done.CompletedAt), "completion time moved to %s", stored.CompletedAt)

	other, err := f.repo.Create(ctx, model.Reminder{Title: "Call back", DueTime: at(16, 0)})
	require.NoError(t, err)
	_, err = f.repo.Dismiss(ctx, other.ID)
	require.NoError(t, err)
	_, err = f.repo.Dismiss(ctx, other.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, s := range []model.Status{model.StatusCompleted, model.StatusDismissed, model.StatusMissed} {
		assert.False(t, CanTransition(s, s), "%s must be terminal", s)
	}
	assert.True(t, CanTransition(model.StatusActive, model.StatusActive))
	assert.True(t, CanTransition(model.StatusSnoozed, model.StatusSnoozed))
}

func TestUpdateKeepsClosedStatusForFieldEdits(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Pay rent", DueTime: at(9, 0)})
	require.NoError(t, err)
	done, err := f.repo.Complete(ctx, rem.ID)
	require.NoError(t, err)

	done.Title = "Pay rent (March)"
	edited, err := f.repo.Update(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, edited.Status)
	assert.Equal(t, "Pay rent (March)", edited.Title)

	done.Status = model.StatusActive
	_, err = f.repo.Update(ctx, done)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSuccessorFollowsLocalCalendarAcrossDST(t *testing.T) {
	cases := []struct {
		name string
		zone string
		due  func(*time.Location) time.Time
		rule model.RecurrenceRule
		want func(*time.Location) time.Time
	}{
		{
			// Thursday 18:00 PST is Friday in UTC.
			name: "weekly thursday into daylight time",
			zone: "America/Los_Angeles",
			due:  func(l *time.Location) time.Time { return time.Date(2026, 3, 5, 18, 0, 0, 0, l) },
			rule: model.RecurrenceRule{Kind: model.RecurrenceWeekly, Interval: 1, DaysOfWeek: []int{4}},
			want: func(l *time.Location) time.Time { return time.Date(2026, 3, 12, 18, 0, 0, 0, l) },
		},
		{
			name: "daily 09:00 out of daylight time",
			zone: "America/New_York",
			due:  func(l *time.Location) time.Time { return time.Date(2026, 10, 31, 9, 0, 0, 0, l) },
			rule: model.RecurrenceRule{Kind: model.RecurrenceDaily, Interval: 1},
			want: func(l *time.Location) time.Time { return time.Date(2026, 11, 1, 9, 0, 0, 0, l) },
		},
		{
			// 08:00 on the 31st in Tokyo is still the 30th in UTC.
			name: "monthly end of month in a positive offset",
			zone: "Asia/Tokyo",
			due:  func(l *time.Location) time.Time { return time.Date(2026, 1, 31, 8, 0, 0, 0, l) },
			rule: model.RecurrenceRule{Kind: model.RecurrenceMonthly, Interval: 1, DayOfMonth: 31},
			want: func(l *time.Location) time.Time { return time.Date(2026, 2, 28, 8, 0, 0, 0, l) },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := time.LoadLocation(tc.zone)
			require.NoError(t, err)
			due := tc.due(loc)
			f := newFixtureIn(t, due.Add(-time.Hour), loc)
			ctx := context.Background()

			rule := tc.rule
			rem, err := f.repo.Create(ctx, model.Reminder{Title: "Standup", DueTime: due, Recurrence: &rule, CurrentOccurrence: 1})
			require.NoError(t, err)

			f.clock.Set(due)
			require.NoError(t, f.repo.HandleNotificationDelivered(ctx, rem.ID, false))

			next, err := f.repo.Get(ctx, SuccessorID(rem.ID, 2))
			require.NoError(t, err)
			want := tc.want(loc)
			assert.True(t, next.DueTime.Equal(want), "got %s, want %s", next.DueTime.In(loc), want)
		})
	}
}

func TestRescheduleShiftsPreReminder(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	pre := at(8, 45)
	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Dentist", DueTime: at(9, 0), ReminderTime: &pre})
	require.NoError(t, err)
	_, err = f.repo.Snooze(ctx, rem.ID, 10)
	require.NoError(t, err)

	moved, err := f.repo.Reschedule(ctx, rem.ID, at(16, 0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, moved.Status)
	assert.Nil(t, moved.SnoozeUntil)
	require.NotNil(t, moved.ReminderTime)
	assert.True(t, moved.ReminderTime.Equal(at(15, 45)))
}

func TestSweepMissed(t *testing.T) {
	f := newFixture(t, at(8, 0).AddDate(0, 0, -2))
	ctx := context.Background()

	yesterday, err := f.repo.Create(ctx, model.Reminder{Title: "yesterday", DueTime: at(9, 0).AddDate(0, 0, -1)})
	require.NoError(t, err)
	deadline := at(7, 0)
	pastDeadline, err := f.repo.Create(ctx, model.Reminder{Title: "past deadline", DueTime: at(6, 0), Deadline: &deadline})
	require.NoError(t, err)
	earlierToday, err := f.repo.Create(ctx, model.Reminder{Title: "earlier today", DueTime: at(6, 0)})
	require.NoError(t, err)

	f.clock.Set(at(8, 0))
	before := f.rearmer.count()
	assert.Equal(t, 2, f.repo.SweepMissed(ctx))
	assert.Equal(t, before+1, f.rearmer.count())

	for id, want := range map[string]model.Status{
		yesterday.ID:    model.StatusMissed,
		pastDeadline.ID: model.StatusMissed,
		earlierToday.ID: model.StatusActive,
	} {
		got, err := f.repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, got.Title)
		if want == model.StatusMissed {
			assert.NotNil(t, got.CompletedAt)
		}
	}
}

func TestPushFailureKeepsMutationAndSyncRetries(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	f.remote.SetFailure(remote.ErrUnavailable)
	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Offline", DueTime: at(9, 0)})
	require.NoError(t, err)

	got, err := f.repo.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.False(t, got.IsSynced)

	f.remote.SetFailure(nil)
	pushed, err := f.repo.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)

	got, err = f.repo.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
}

func TestDeleteRemovesRemoteCopy(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx := context.Background()

	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Temp", DueTime: at(9, 0)})
	require.NoError(t, err)
	require.NoError(t, f.repo.Delete(ctx, rem.ID))

	_, err = f.repo.Get(ctx, rem.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, ok := f.remote.Get(remote.CollectionReminders, testOwner, rem.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, f.remote.Deletes())
}

func TestSignedOutIsRejected(t *testing.T) {
	f := newFixture(t, at(8, 0))
	repo := NewReminderRepository(f.store.Reminders(), reconcile.New(reconcile.Config[model.Reminder]{
		Collection: remote.CollectionReminders, Local: f.store.Reminders(), Remote: f.remote,
	}), f.rearmer, StaticIdentity(""))

	_, err := repo.Create(context.Background(), model.Reminder{Title: "x", DueTime: at(9, 0)})
	assert.True(t, errors.Is(err, ErrSignedOut))
}

func TestObserveByIDFollowsChanges(t *testing.T) {
	f := newFixture(t, at(8, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rem, err := f.repo.Create(ctx, model.Reminder{Title: "Watch me", DueTime: at(9, 0)})
	require.NoError(t, err)

	stream, err := f.repo.ObserveByID(ctx, rem.ID)
	require.NoError(t, err)
	first := <-stream
	require.NotNil(t, first)
	assert.Equal(t, model.StatusActive, first.Status)

	_, err = f.repo.Complete(ctx, rem.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case got := <-stream:
			return got != nil && got.Status == model.StatusCompleted
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnapshotHooksCancelClosedReminders(t *testing.T) {
	r := &countingRearmer{}
	hooks := SnapshotHooks(r)
	ctx := context.Background()

	hooks.AfterOverwrite(ctx, model.Reminder{ID: "a", Status: model.StatusActive}, model.Reminder{ID: "a", Status: model.StatusCompleted})
	hooks.AfterOverwrite(ctx, model.Reminder{ID: "b", Status: model.StatusActive}, model.Reminder{ID: "b", Status: model.StatusActive})
	hooks.AfterOverwrite(ctx, model.Reminder{ID: "c", Status: model.StatusSnoozed}, model.Reminder{ID: "c", Status: model.StatusDismissed})
	hooks.AfterSnapshot(ctx)

	assert.Equal(t, []string{"a", "c"}, r.cancelled)
	assert.Equal(t, 1, r.count())
}

func TestSuccessorIDIsDeterministic(t *testing.T) {
	assert.Equal(t, SuccessorID("parent", 2), SuccessorID("parent", 2))
	assert.NotEqual(t, SuccessorID("parent", 2), SuccessorID("parent", 3))
	assert.NotEqual(t, SuccessorID("parent", 2), SuccessorID("other", 2))
}

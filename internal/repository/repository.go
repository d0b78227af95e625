// Package repository sequences every user-facing mutation: write locally,
// rearm the alarm, then push to the remote store on a best-effort basis.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/selector"
)

var (
	ErrInvalidTransition = errors.New("repository: invalid status transition")
	ErrSignedOut         = errors.New("repository: no signed-in owner")
	ErrInvalidSnooze     = errors.New("repository: snooze minutes must be positive")
	// ErrInvalid wraps every validation failure of an entity being saved.
	ErrInvalid = errors.New("repository: invalid entity")
)

// Rearmer recomputes and arms the single pending alarm.
type Rearmer interface {
	Rearm(ctx context.Context)
	CancelFor(ctx context.Context, reminderID string)
}

// Identity reports the signed-in account; "" means signed out.
type Identity interface {
	OwnerID() string
}

// StaticIdentity is a fixed account, used by the CLI and tests.
type StaticIdentity string

func (s StaticIdentity) OwnerID() string { return string(s) }

// Pusher is the push half of a reconciler.
type Pusher[T any] interface {
	Push(ctx context.Context, item T) error
	Remove(ctx context.Context, ownerID, id string) error
	SyncAll(ctx context.Context, ownerID string) (int, error)
}

var _ Pusher[model.Reminder] = (*reconcile.Reconciler[model.Reminder])(nil)

type options struct {
	now      func() time.Time
	newID    func() string
	loc      *time.Location
	log      *zap.Logger
	selector *selector.Selector
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithLocation sets the calendar used for "today" in the missed sweep.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithSelector(sel selector.Selector) Option {
	return func(o *options) { o.selector = &sel }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString, loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.OrNop(o.log)
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.selector == nil {
		sel := selector.New(selector.DefaultHorizonDays, o.loc)
		o.selector = &sel
	}
	return o
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}

var successorSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://remindd.dev/successor"))

// SuccessorID is the id of the instance that follows parentID as
// occurrence number occurrence. Spawning the same successor twice yields
// the same row.
func SuccessorID(parentID string, occurrence int) string {
	return uuid.NewSHA1(successorSpace, []byte(fmt.Sprintf("%s#%d", parentID, occurrence))).String()
}

// CanTransition reports whether a reminder may move from one status to
// another. COMPLETED, DISMISSED and MISSED are terminal, including for a
// repeat of the same status; ACTIVE and SNOOZED may be re-entered.
func CanTransition(from, to model.Status) bool {
	if from == to {
		return from.Pending()
	}
	switch from {
	case model.StatusActive:
		return to != model.StatusActive
	case model.StatusSnoozed:
		return to == model.StatusActive || to == model.StatusCompleted ||
			to == model.StatusDismissed || to == model.StatusMissed
	default:
		return false
	}
}

// SnapshotHooks wires inbound remote changes to the alarm: a reminder
// closed on another device loses its alarm at once, and every processed
// snapshot ends with one rearm.
func SnapshotHooks(r Rearmer) reconcile.Hooks[model.Reminder] {
	return reconcile.Hooks[model.Reminder]{
		AfterOverwrite: func(ctx context.Context, old, updated model.Reminder) {
			if old.Status == updated.Status {
				return
			}
			if updated.Status == model.StatusCompleted || updated.Status == model.StatusDismissed {
				r.CancelFor(ctx, updated.ID)
			}
		},
		AfterSnapshot: func(ctx context.Context) { r.Rearm(ctx) },
	}
}

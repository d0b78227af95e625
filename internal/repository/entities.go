package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/storage"
)

type entity[T any] interface {
	reconcile.Entity[T]
	Validate() error
	Touch(now time.Time) T
}

// stamp assigns the identity fields a caller may not choose.
type stamp[T any] func(in T, id, ownerID string, createdAt time.Time) T

// EntityRepository is the create/update/delete surface shared by groups
// and tags. They sync like reminders but never touch the alarm.
type EntityRepository[T entity[T]] struct {
	kind     string
	store    storage.Collection[T]
	sync     Pusher[T]
	identity Identity
	stamp    stamp[T]
	created  func(T) time.Time
	opts     options
}

type (
	GroupRepository = EntityRepository[model.Group]
	TagRepository   = EntityRepository[model.Tag]
)

func NewGroupRepository(store storage.Collection[model.Group], sync Pusher[model.Group], identity Identity, opts ...Option) *GroupRepository {
	return &EntityRepository[model.Group]{
		kind:     "group",
		store:    store,
		sync:     sync,
		identity: identity,
		stamp: func(g model.Group, id, owner string, created time.Time) model.Group {
			g.ID, g.OwnerID, g.CreatedAt = id, owner, created
			return g
		},
		created: func(g model.Group) time.Time { return g.CreatedAt },
		opts:    buildOptions(opts),
	}
}

func NewTagRepository(store storage.Collection[model.Tag], sync Pusher[model.Tag], identity Identity, opts ...Option) *TagRepository {
	return &EntityRepository[model.Tag]{
		kind:     "tag",
		store:    store,
		sync:     sync,
		identity: identity,
		stamp: func(t model.Tag, id, owner string, created time.Time) model.Tag {
			t.ID, t.OwnerID, t.CreatedAt = id, owner, created
			return t
		},
		created: func(t model.Tag) time.Time { return t.CreatedAt },
		opts:    buildOptions(opts),
	}
}

func (e *EntityRepository[T]) Create(ctx context.Context, in T) (T, error) {
	var zero T
	owner, err := e.owner()
	if err != nil {
		return zero, err
	}
	now := e.opts.now()
	id := in.Key()
	if id == "" {
		id = e.opts.newID()
	}
	out := e.stamp(in, id, owner, now).Touch(now)
	return e.save(ctx, out)
}

func (e *EntityRepository[T]) Update(ctx context.Context, in T) (T, error) {
	var zero T
	cur, err := e.Get(ctx, in.Key())
	if err != nil {
		return zero, err
	}
	out := e.stamp(in, cur.Key(), cur.Owner(), e.created(cur)).Touch(e.opts.now())
	return e.save(ctx, out)
}

func (e *EntityRepository[T]) Delete(ctx context.Context, id string) error {
	cur, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.sync.Remove(ctx, cur.Owner(), id); err != nil {
		e.opts.log.Warn("remote delete deferred", zap.String("kind", e.kind), zap.String("id", id), zap.Error(err))
	}
	return nil
}

func (e *EntityRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	owner, err := e.owner()
	if err != nil {
		return zero, err
	}
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if item.Owner() != owner {
		return zero, storage.ErrNotFound
	}
	return item, nil
}

func (e *EntityRepository[T]) List(ctx context.Context) ([]T, error) {
	owner, err := e.owner()
	if err != nil {
		return nil, err
	}
	return e.store.List(ctx, owner)
}

func (e *EntityRepository[T]) ObserveAll(ctx context.Context) (<-chan []T, error) {
	owner, err := e.owner()
	if err != nil {
		return nil, err
	}
	return e.store.Observe(ctx, owner)
}

func (e *EntityRepository[T]) Sync(ctx context.Context) (int, error) {
	owner, err := e.owner()
	if err != nil {
		return 0, err
	}
	return e.sync.SyncAll(ctx, owner)
}

func (e *EntityRepository[T]) save(ctx context.Context, item T) (T, error) {
	var zero T
	if err := item.Validate(); err != nil {
		return zero, invalid(err)
	}
	if err := e.store.Upsert(ctx, item); err != nil {
		return zero, fmt.Errorf("repository: save %s %s: %w", e.kind, item.Key(), err)
	}
	if err := e.sync.Push(ctx, item); err != nil {
		e.opts.log.Warn("push deferred", zap.String("kind", e.kind), zap.String("id", item.Key()), zap.Error(err))
	}
	return item, nil
}

func (e *EntityRepository[T]) owner() (string, error) {
	owner := e.identity.OwnerID()
	if owner == "" {
		return "", ErrSignedOut
	}
	return owner, nil
}

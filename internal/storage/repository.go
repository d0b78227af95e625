package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// Entity is a row keyed by id and partitioned by owner.
type Entity interface {
	Key() string
	Owner() string
}

// Collection is the per-entity local store contract.
type Collection[T Entity] interface {
	Get(ctx context.Context, id string) (T, error)
	Upsert(ctx context.Context, in T) error
	Delete(ctx context.Context, id string) error
	// MarkSynced flags the row as synced only while its last_modified still
	// equals version. It reports whether the row was updated.
	MarkSynced(ctx context.Context, id string, version time.Time) (bool, error)
	Unsynced(ctx context.Context, ownerID string) ([]T, error)
	List(ctx context.Context, ownerID string) ([]T, error)
	Observe(ctx context.Context, ownerID string) (<-chan []T, error)
}

type ReminderFilter struct {
	OwnerID  string
	Statuses []model.Status
	GroupID  string
	TagID    string
	Limit    int
	Offset   int
}

var (
	_ Collection[model.Reminder] = (*ReminderTable)(nil)
	_ Collection[model.Group]    = (*Table[model.Group])(nil)
	_ Collection[model.Tag]      = (*Table[model.Tag])(nil)
)

// Package reconcile merges local rows with remote documents using
// last-write-wins on the modification timestamp.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/storage"
)

var ErrMalformedDocument = errors.New("reconcile: malformed document")

// Entity is a syncable row.
type Entity[T any] interface {
	Key() string
	Owner() string
	Modified() time.Time
	Synced() bool
	WithSynced(bool) T
}

// LocalStore is the subset of a storage collection the reconciler needs.
// Get must return storage.ErrNotFound for unknown ids.
type LocalStore[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Upsert(ctx context.Context, in T) error
	MarkSynced(ctx context.Context, id string, version time.Time) (bool, error)
	Unsynced(ctx context.Context, ownerID string) ([]T, error)
}

type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec encodes with encoding/json. Decoded values that have a
// Validate method must pass it.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(data []byte) (T, error) {
			var out T
			if err := json.Unmarshal(data, &out); err != nil {
				return out, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
			}
			if v, ok := any(out).(interface{ Validate() error }); ok {
				if err := v.Validate(); err != nil {
					return out, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
				}
			}
			return out, nil
		},
	}
}

type Hooks[T any] struct {
	// AfterOverwrite runs after a newer remote copy replaced a local row.
	AfterOverwrite func(ctx context.Context, old, new T)
	// AfterSnapshot runs once per processed snapshot.
	AfterSnapshot func(ctx context.Context)
}

type Config[T any] struct {
	Collection string
	Local      LocalStore[T]
	Remote     remote.Store
	Codec      Codec[T]
	Hooks      Hooks[T]
	Logger     *zap.Logger
	// RetryDelay is the pause before resubscribing after the stream failed.
	RetryDelay time.Duration
}

// Result counts what a snapshot did.
type Result struct {
	Inserted int
	Updated  int
	Pushed   int
	Skipped  int
	Failed   int
}

type Reconciler[T Entity[T]] struct {
	collection string
	local      LocalStore[T]
	remote     remote.Store
	codec      Codec[T]
	hooks      Hooks[T]
	log        *zap.Logger
	retryDelay time.Duration
}

func New[T Entity[T]](cfg Config[T]) *Reconciler[T] {
	if cfg.Codec.Encode == nil || cfg.Codec.Decode == nil {
		cfg.Codec = JSONCodec[T]()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Reconciler[T]{
		collection: cfg.Collection,
		local:      cfg.Local,
		remote:     cfg.Remote,
		codec:      cfg.Codec,
		hooks:      cfg.Hooks,
		log:        logging.OrNop(cfg.Logger).With(zap.String("collection", cfg.Collection)),
		retryDelay: cfg.RetryDelay,
	}
}

func (r *Reconciler[T]) Collection() string { return r.collection }

// ApplySnapshot merges one full remote snapshot into the local store.
// Unsynced local rows are pushed before any remote copy is considered.
func (r *Reconciler[T]) ApplySnapshot(ctx context.Context, ownerID string, docs []remote.Document) Result {
	var res Result
	pushed, err := r.SyncAll(ctx, ownerID)
	res.Pushed += pushed
	if err != nil {
		r.log.Warn("push before snapshot incomplete", zap.Error(err))
	}

	for _, doc := range docs {
		incoming, err := r.codec.Decode(doc.Data)
		if err == nil && (incoming.Key() != doc.ID || incoming.Owner() != ownerID) {
			err = fmt.Errorf("%w: identity mismatch", ErrMalformedDocument)
		}
		if err != nil {
			res.Skipped++
			r.log.Warn("skipping remote document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}

		current, err := r.local.Get(ctx, incoming.Key())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if err := r.local.Upsert(ctx, incoming.WithSynced(true)); err != nil {
				res.Failed++
				r.log.Error("insert remote row", zap.String("id", doc.ID), zap.Error(err))
				continue
			}
			res.Inserted++
		case err != nil:
			res.Failed++
			r.log.Error("load local row", zap.String("id", doc.ID), zap.Error(err))
		case incoming.Modified().After(current.Modified()):
			if err := r.local.Upsert(ctx, incoming.WithSynced(true)); err != nil {
				res.Failed++
				r.log.Error("overwrite local row", zap.String("id", doc.ID), zap.Error(err))
				continue
			}
			res.Updated++
			if r.hooks.AfterOverwrite != nil {
				r.hooks.AfterOverwrite(ctx, current, incoming)
			}
		case current.Modified().After(incoming.Modified()) && !current.Synced():
			if err := r.Push(ctx, current); err != nil {
				res.Failed++
				continue
			}
			res.Pushed++
		}
	}

	if r.hooks.AfterSnapshot != nil {
		r.hooks.AfterSnapshot(ctx)
	}
	r.log.Debug("snapshot applied",
		zap.Int("documents", len(docs)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("pushed", res.Pushed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res
}

// Push writes item to the remote store and marks the local row synced if
// it has not been modified since item was read. Failures leave the row
// unsynced for a later sweep.
func (r *Reconciler[T]) Push(ctx context.Context, item T) error {
	data, err := r.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("reconcile: encode %s: %w", item.Key(), err)
	}
	doc := remote.Document{
		Collection: r.collection,
		OwnerID:    item.Owner(),
		ID:         item.Key(),
		Data:       data,
	}
	if err := r.remote.Put(ctx, doc); err != nil {
		r.log.Warn("push failed", zap.String("id", item.Key()), zap.Error(err))
		return err
	}
	marked, err := r.local.MarkSynced(ctx, item.Key(), item.Modified())
	if err != nil {
		r.log.Error("mark synced", zap.String("id", item.Key()), zap.Error(err))
		return err
	}
	if !marked {
		r.log.Debug("row changed during push", zap.String("id", item.Key()))
	}
	return nil
}

// Remove deletes the remote copy.
func (r *Reconciler[T]) Remove(ctx context.Context, ownerID, id string) error {
	if err := r.remote.Delete(ctx, r.collection, ownerID, id); err != nil {
		r.log.Warn("remote delete failed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// SyncAll pushes every unsynced row for ownerID and reports how many went
// through.
func (r *Reconciler[T]) SyncAll(ctx context.Context, ownerID string) (int, error) {
	rows, err := r.local.Unsynced(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list unsynced: %w", err)
	}
	var (
		pushed int
		errs   []error
	)
	for _, row := range rows {
		if err := r.Push(ctx, row); err != nil {
			errs = append(errs, err)
			continue
		}
		pushed++
	}
	return pushed, errors.Join(errs...)
}

// Run follows the owner's remote collection until ctx is done. A failed
// or closed subscription is retried after RetryDelay.
func (r *Reconciler[T]) Run(ctx context.Context, ownerID string) error {
	for {
		stream, err := r.remote.Subscribe(ctx, r.collection, ownerID)
		if err != nil {
			r.log.Warn("subscribe failed", zap.Error(err))
		} else {
			r.consume(ctx, ownerID, stream)
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Reconciler[T]) consume(ctx context.Context, ownerID string, stream <-chan []remote.Document) {
	for {
		select {
		case <-ctx.Done():
			return
		case docs, ok := <-stream:
			if !ok {
				if ctx.Err() == nil {
					r.log.Warn("remote stream closed")
				}
				return
			}
			r.ApplySnapshot(ctx, ownerID, docs)
		}
	}
}

// Package remote holds the cloud side of sync: one JSON document per
// entity, partitioned by collection and owner.
package remote

import (
	"context"
	"errors"
	"sort"
	"time"
)

var ErrUnavailable = errors.New("remote: unavailable")

const (
	CollectionReminders = "reminders"
	CollectionGroups    = "groups"
	CollectionTags      = "tags"
)

type Document struct {
	Collection string    `json:"collection"`
	OwnerID    string    `json:"ownerId"`
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store is the remote document store. Subscribe streams full snapshots of
// one owner's collection until ctx is done, then closes the channel. A
// reader that falls behind only sees the newest snapshot.
type Store interface {
	Subscribe(ctx context.Context, collection, ownerID string) (<-chan []Document, error)
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, collection, ownerID, id string) error
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

// offer replaces any unread snapshot in ch with docs. Only the producer
// may call it.
func offer(ch chan []Document, docs []Document) {
	select {
	case <-ch:
	default:
	}
	ch <- docs
}

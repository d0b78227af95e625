package remote

import (
	"context"
	"sync"
	"time"
)

type docKey struct {
	collection string
	owner      string
	id         string
}

type streamKey struct {
	collection string
	owner      string
}

// Memory is an in-process Store, used offline and in tests.
type Memory struct {
	mu      sync.Mutex
	docs    map[docKey]Document
	subs    map[streamKey]map[int]chan []Document
	next    int
	failure error
	puts    int
	deletes int
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[docKey]Document),
		subs: make(map[streamKey]map[int]chan []Document),
		now:  time.Now,
	}
}

func (m *Memory) Subscribe(ctx context.Context, collection, ownerID string) (<-chan []Document, error) {
	m.mu.Lock()
	if m.failure != nil {
		err := m.failure
		m.mu.Unlock()
		return nil, err
	}
	sk := streamKey{collection: collection, owner: ownerID}
	id := m.next
	m.next++
	ch := make(chan []Document, 1)
	if m.subs[sk] == nil {
		m.subs[sk] = make(map[int]chan []Document)
	}
	m.subs[sk][id] = ch
	ch <- m.snapshotLocked(sk)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[sk], id)
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.puts++
	m.storeLocked(doc)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.deletes++
	delete(m.docs, docKey{collection: collection, owner: ownerID, id: id})
	m.broadcastLocked(streamKey{collection: collection, owner: ownerID})
	return nil
}

// Seed writes a document as another device would, bypassing failure
// injection and the put counter.
func (m *Memory) Seed(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(doc)
}

// Republish resends the current snapshot to every subscriber of the stream.
func (m *Memory) Republish(collection, ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastLocked(streamKey{collection: collection, owner: ownerID})
}

// SetFailure makes every Put, Delete and Subscribe return err until it is
// reset with nil.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

func (m *Memory) Get(collection, ownerID, id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey{collection: collection, owner: ownerID, id: id}]
	return doc, ok
}

func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *Memory) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

func (m *Memory) storeLocked(doc Document) {
	doc.Data = append([]byte(nil), doc.Data...)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = m.now()
	}
	m.docs[docKey{collection: doc.Collection, owner: doc.OwnerID, id: doc.ID}] = doc
	m.broadcastLocked(streamKey{collection: doc.Collection, owner: doc.OwnerID})
}

func (m *Memory) broadcastLocked(sk streamKey) {
	subs := m.subs[sk]
	if len(subs) == 0 {
		return
	}
	snap := m.snapshotLocked(sk)
	for _, ch := range subs {
		offer(ch, snap)
	}
}

func (m *Memory) snapshotLocked(sk streamKey) []Document {
	out := make([]Document, 0)
	for k, doc := range m.docs {
		if k.collection == sk.collection && k.owner == sk.owner {
			out = append(out, doc)
		}
	}
	sortDocuments(out)
	return out
}

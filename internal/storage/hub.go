package storage

import "sync"

// hub wakes observers after a write. Signals coalesce: an observer that is
// busy re-querying sees one pending wakeup no matter how many writes landed.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan struct{})}
}

func (h *hub) subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan struct{}, 1)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

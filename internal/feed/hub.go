package feed

import "sync"

// Hub fans follow-graph change signals out to subscribed trackers.
//
// It is the in-process rendering of a store-side real-time listener: the
// worker consuming follow events from the stream calls Invalidate, and every
// tracker subscribed for that viewer gets poked to recompute its follow set.
// Signals are coalesced; a slow tracker sees at most one pending signal.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan struct{}]struct{})}
}

// Changes registers a change-signal subscription for viewerID.
// The returned cancel func must be called to release the subscription;
// teardown is explicit, never left to garbage collection.
func (h *Hub) Changes(viewerID int64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[viewerID] == nil {
		h.subs[viewerID] = make(map[chan struct{}]struct{})
	}
	h.subs[viewerID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[viewerID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, viewerID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Invalidate signals every subscription for viewerID. Non-blocking: if a
// signal is already pending on a subscription, the two coalesce.
func (h *Hub) Invalidate(viewerID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[viewerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

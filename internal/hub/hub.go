package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Default sizes.
const (
	DefaultHistorySize = 500
	DefaultBacklog     = 256
)

// Subscription is one subscriber's bounded queue.
type Subscription struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the receive side of the queue. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// deliver enqueues ev without blocking. When the queue is full the oldest
// queued event is discarded to make room.
// It returns the number of events discarded.
func (s *Subscription) deliver(ev Event) uint64 {
	var dropped uint64
	for {
		select {
		case s.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped++
		default:
		}
	}
}

// Hub fans events out to subscribers. Publish never blocks on a slow subscriber.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	backlog int
	closed  bool

	seq          atomic.Uint64
	totalDropped atomic.Uint64
	published    atomic.Uint64

	history *History
	stats   atomic.Pointer[StatsSnapshot]
}

// New creates a hub keeping historySize reading/alert events and giving each
// subscriber a queue of backlog events.
func New(historySize, backlog int) *Hub {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		backlog: backlog,
		history: NewHistory(historySize),
	}
}

// Subscribe registers a new subscriber. After Close it returns a subscription
// whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		id: uuid.NewString(),
		ch: make(chan Event, h.backlog),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s.id] = s
	return s
}

// Unsubscribe removes the subscriber and closes its channel.
// It reports whether the subscription was registered.
func (h *Hub) Unsubscribe(s *Subscription) bool {
	if s == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.id]; !ok {
		return false
	}
	delete(h.subs, s.id)
	close(s.ch)
	return true
}

// Publish stamps ev with the next sequence number and broadcasts it.
// Reading and alert events are also stored in the history; the latest stats
// snapshot replaces the previous one.
func (h *Hub) Publish(ev Event) Event {
	ev.Seq = h.seq.Add(1)

	switch ev.Kind {
	case KindStats:
		if ev.Stats != nil {
			h.stats.Store(ev.Stats)
		}
	default:
		h.history.Add(ev)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ev
	}
	for _, s := range h.subs {
		if n := s.deliver(ev); n > 0 {
			h.totalDropped.Add(n)
		}
	}
	h.published.Add(1)
	return ev
}

// History returns the rolling history buffer.
func (h *Hub) History() *History {
	return h.history
}

// LatestStats returns the most recently published stats snapshot.
func (h *Hub) LatestStats() (StatsSnapshot, bool) {
	s := h.stats.Load()
	if s == nil {
		return StatsSnapshot{}, false
	}
	return *s, true
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of events evicted from subscriber queues,
// summed over all subscribers past and present.
func (h *Hub) Dropped() uint64 {
	return h.totalDropped.Load()
}

// Published returns the number of events broadcast.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// LastSeq returns the sequence number of the last published event.
func (h *Hub) LastSeq() uint64 {
	return h.seq.Load()
}

// Reset clears history and the latest stats snapshot. Subscribers are kept.
func (h *Hub) Reset() {
	h.history.Clear()
	h.stats.Store(nil)
}

// Close unsubscribes everyone. Later publishes are recorded but not delivered.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

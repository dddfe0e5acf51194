package hub

import "sync"

// History holds the most recent events in a fixed-capacity ring buffer.
type History struct {
	mu     sync.RWMutex
	events []Event
	start  int // index of the oldest event
	count  int
}

// NewHistory creates a history keeping at most size events.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{events: make([]Event, size)}
}

// Add appends an event, evicting the oldest when full.
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := len(h.events)
	if h.count < size {
		h.events[(h.start+h.count)%size] = ev
		h.count++
		return
	}
	h.events[h.start] = ev
	h.start = (h.start + 1) % size
}

// at returns the i-th newest event (0 is the newest). Caller holds the lock.
func (h *History) at(i int) Event {
	return h.events[(h.start+h.count-1-i)%len(h.events)]
}

// All returns every stored event, newest first.
func (h *History) All() []Event {
	return h.Last(h.Cap())
}

// Last returns up to n events, newest first.
func (h *History) Last(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.count {
		n = h.count
	}
	if n < 0 {
		n = 0
	}
	result := make([]Event, n)
	for i := 0; i < n; i++ {
		result[i] = h.at(i)
	}
	return result
}

// Since returns events with Seq greater than seq, newest first.
func (h *History) Since(seq uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []Event
	for i := 0; i < h.count; i++ {
		ev := h.at(i)
		if ev.Seq <= seq {
			break
		}
		result = append(result, ev)
	}
	return result
}

// Len returns the number of stored events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return len(h.events)
}

// LastSeq returns the sequence number of the newest stored event, or 0.
func (h *History) LastSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.at(0).Seq
}

// Clear drops every stored event.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.events {
		h.events[i] = Event{}
	}
	h.start, h.count = 0, 0
}

// Package events keeps an in-memory audit log of control actions: who
// started or stopped the simulation, changed optimization settings or
// toggled a plugin.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of control action
type EventType string

const (
	// Simulation lifecycle
	EventSimulationStart EventType = "simulation_start"
	EventSimulationStop  EventType = "simulation_stop"

	// Settings
	EventOptimizationUpdate EventType = "optimization_update"
	EventConfigReload       EventType = "config_reload"

	// Plugins
	EventPluginEnable  EventType = "plugin_enable"
	EventPluginDisable EventType = "plugin_disable"
)

// Event represents one recorded action
type Event struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
}

// Store is a fixed-capacity ring of the most recent actions.
type Store struct {
	mu    sync.RWMutex
	ring  []Event
	head  int // index of the next write
	size  int
	seq   int64
	clock func() time.Time
}

// NewStore creates a store keeping the last capacity actions (100 when
// capacity is not positive).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 100
	}
	return &Store{ring: make([]Event, capacity), clock: time.Now}
}

// Add records an action and returns it with its ID assigned.
func (s *Store) Add(t EventType, ip string, success bool, details string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ev := Event{ID: s.seq, Type: t, Timestamp: s.clock(), IP: ip, Success: success, Details: details}
	s.ring[s.head] = ev
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	return ev
}

// walk visits retained events newest first until fn returns false.
// Callers hold the read lock.
func (s *Store) walk(fn func(Event) bool) {
	for i := 1; i <= s.size; i++ {
		if !fn(s.ring[(s.head-i+len(s.ring))%len(s.ring)]) {
			return
		}
	}
}

// GetLast returns up to n events, newest first. n <= 0 returns all.
func (s *Store) GetLast(n int) []Event {
	return s.Filter("", n)
}

// Filter returns up to n events of type t, newest first. An empty t
// matches every type and n <= 0 means no limit.
func (s *Store) Filter(t EventType, n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, s.size)
	s.walk(func(ev Event) bool {
		if t == "" || ev.Type == t {
			out = append(out, ev)
		}
		return n <= 0 || len(out) < n
	})
	return out
}

// GetSince returns events with an ID above lastID, newest first.
func (s *Store) GetSince(lastID int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Event{}
	s.walk(func(ev Event) bool {
		if ev.ID <= lastID {
			return false
		}
		out = append(out, ev)
		return true
	})
	return out
}

// Count returns the number of retained events.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// LastID returns the ID of the most recent event, 0 when none.
func (s *Store) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

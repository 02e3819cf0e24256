// Package netmon tracks connectivity to the remote backend and triggers
// queue drains when the device comes back online.
package netmon

import (
	"sync"
	"time"
)

// subscriberBuffer is the number of transitions a slow subscriber may lag
// behind before further transitions are dropped for it.
const subscriberBuffer = 16

// Transition is an edge in connectivity state.
type Transition struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Monitor holds the current connectivity state.
type Monitor struct {
	mu         sync.Mutex
	online     bool
	wasOffline bool
	subs       map[uint64]chan Transition
	nextID     uint64
	now        func() time.Time
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[uint64]chan Transition),
		now:    time.Now,
	}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a new state. Subscribers are told only about changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	if online {
		m.wasOffline = true
	}

	t := Transition{Online: online, At: m.now()}
	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// WasOffline reports whether the monitor has gone from offline to online
// since the last call, and clears the flag.
func (m *Monitor) WasOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.wasOffline
	m.wasOffline = false
	return was
}

// Subscribe returns a channel of transitions and a function that closes it.
// Calling cancel more than once is harmless.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	ch := make(chan Transition, subscriberBuffer)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

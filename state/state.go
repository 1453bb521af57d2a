// Package state implements the Communication Manager's operating-state
// machine (spec §4.6): the Initial→Starting→Online→Stopping→Offline
// cycle, with strictly monotone notification of every registered
// observer in the order transitions occur.
package state

import (
	"fmt"
	"sync"
)

// State is one point in the operating-state cycle.
type State int

const (
	Initial State = iota
	Starting
	Online
	Stopping
	Offline
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Starting:
		return "Starting"
	case Online:
		return "Online"
	case Stopping:
		return "Stopping"
	case Offline:
		return "Offline"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validTransitions encodes the cycle in spec §4.6: Initial and Offline
// both lead to Starting; Starting leads to Online (or Stopping, on an
// unrecoverable connect failure that the caller chooses to treat as a
// stop); Online leads to Stopping (graceful) or directly to Offline
// (broker disconnect, skipping Stopping); Stopping leads to Offline.
var validTransitions = map[State]map[State]bool{
	Initial:  {Starting: true},
	Starting: {Online: true, Stopping: true},
	Online:   {Stopping: true, Offline: true},
	Stopping: {Offline: true},
	Offline:  {Starting: true},
}

// Observer is notified of every state transition, in order, on a
// single logical goroutine per Machine (spec §5 "single-threaded
// cooperative" scheduling — no two notifications for the same Machine
// ever run concurrently or out of order).
type Observer func(State)

// Machine tracks one communication manager's operating state and
// delivers a strictly monotone sequence of transitions to every
// observer registered at the time a transition occurs.
type Machine struct {
	mu        sync.Mutex
	current   State
	observers []Observer
}

// New creates a Machine in the Initial state.
func New() *Machine {
	return &Machine{current: Initial}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Observe registers o to receive every future transition. It is not
// replayed the current state; callers that need it should call Current
// first.
func (m *Machine) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Transition moves the machine to next, rejecting any move not allowed
// by the state cycle, then synchronously notifies every observer
// registered at call time in registration order. Transition must not
// be called concurrently with itself on the same Machine — the
// Communication Manager's single dispatch context is the only caller
// (spec §5).
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	if !validTransitions[m.current][next] {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("state: illegal transition %s -> %s", from, next)
	}
	m.current = next
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o(next)
	}
	return nil
}

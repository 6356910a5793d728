// Package lifecycle provides a standalone lifecycle owner for components that
// need one before, or apart from, the application's own start-up.
package lifecycle

import (
	"log"
	"sync"
)

// State is a lifecycle state.
type State int

const (
	Created State = iota
	Resumed
	Paused
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Resumed:
		return "resumed"
	case Paused:
		return "paused"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Observer is notified of state transitions.
type Observer interface {
	OnStateChange(state State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(state State)

// OnStateChange calls f(state).
func (f ObserverFunc) OnStateChange(state State) {
	f(state)
}

// Shim is a minimal lifecycle owner. It starts in Created and only moves
// when its owner calls AdvanceToResumed, Pause or Destroy.
type Shim struct {
	mu        sync.Mutex
	state     State
	observers []Observer
}

// New creates a Shim in the Created state.
func New() *Shim {
	return &Shim{state: Created}
}

// State returns the current state.
func (s *Shim) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Observe registers an observer. Observers are notified synchronously in
// registration order.
func (s *Shim) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// AdvanceToResumed moves Created or Paused to Resumed. It returns false and
// does nothing when already Resumed or Destroyed.
// Dependents react synchronously, so call it after they are constructed.
func (s *Shim) AdvanceToResumed() bool {
	return s.transition(Resumed, Created, Paused)
}

// Pause moves Resumed to Paused. It returns false in any other state.
func (s *Shim) Pause() bool {
	return s.transition(Paused, Resumed)
}

// Destroy moves any non-destroyed state to Destroyed. Observers see a Paused
// transition first when the shim was Resumed.
func (s *Shim) Destroy() bool {
	if s.State() == Resumed {
		s.Pause()
	}
	return s.transition(Destroyed, Created, Paused)
}

func (s *Shim) transition(to State, from ...State) bool {
	s.mu.Lock()
	allowed := false
	for _, f := range from {
		if s.state == f {
			allowed = true
			break
		}
	}
	if !allowed {
		cur := s.state
		s.mu.Unlock()
		if cur != to {
			log.Printf("Lifecycle: ignoring %s -> %s", cur, to)
		}
		return false
	}

	s.state = to
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	// Notify outside the lock so observers may query State.
	for _, o := range observers {
		o.OnStateChange(to)
	}
	return true
}

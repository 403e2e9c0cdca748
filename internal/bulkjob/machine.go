// Package bulkjob submits long-running batch jobs to the backend, polls them
// to a terminal state and reconciles the affected records.
package bulkjob

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle position of the runner's current job.
type State string

// State values
const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends a job.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Event drives a State transition.
type Event string

// Event values
const (
	EventSubmit    Event = "submit"
	EventAccepted  Event = "accepted"
	EventRejected  Event = "rejected"
	EventProgress  Event = "progress"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
	EventTimeout   Event = "timeout"
	EventCancel    Event = "cancel"
	EventReset     Event = "reset"
)

// ErrIllegalTransition is returned for an event the current state does not accept.
var ErrIllegalTransition = errors.New("illegal transition")

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSubmit: StateSubmitting,
	},
	StateSubmitting: {
		EventAccepted:  StatePolling,
		EventCompleted: StateCompleted,
		EventRejected:  StateFailed,
		EventCancel:    StateFailed,
	},
	StatePolling: {
		EventProgress:  StatePolling,
		EventCompleted: StateCompleted,
		EventFailed:    StateFailed,
		EventTimeout:   StateFailed,
		EventCancel:    StateFailed,
	},
	StateCompleted: {
		EventSubmit: StateSubmitting,
		EventReset:  StateIdle,
	},
	StateFailed: {
		EventSubmit: StateSubmitting,
		EventReset:  StateIdle,
	},
}

// Machine is the job state machine. The zero value is Idle.
type Machine struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

func (m *Machine) current() State {
	if m.state == "" {
		return StateIdle
	}
	return m.state
}

// Apply moves the machine by ev and returns the new state.
func (m *Machine) Apply(ev Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current()
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, from, ev)
	}
	m.state = to
	return to, nil
}

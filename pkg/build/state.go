package build

import (
	"fmt"
	"sync"
)

// State is a stage boundary of a build run.
type State int

const (
	Pending State = iota
	DepsInstalled
	SourceAcquired
	Configured
	Compiled
	Installed
	PostConfigured
	Done
	Failed
)

var stateNames = [...]string{
	Pending:        "pending",
	DepsInstalled:  "deps-installed",
	SourceAcquired: "source-acquired",
	Configured:     "configured",
	Compiled:       "compiled",
	Installed:      "installed",
	PostConfigured: "post-configured",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Stage names the work that leads into s, as reported in errors and hooks.
func (s State) Stage() string {
	switch s {
	case DepsInstalled:
		return "dependencies"
	case SourceAcquired:
		return "source"
	case Configured:
		return "configure"
	case Compiled:
		return "compile"
	case Installed:
		return "install"
	case PostConfigured:
		return "post-configure"
	}
	return ""
}

// TransitionError reports an attempt to move a Machine anywhere but one
// step forward.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal build transition %s -> %s", e.From, e.To)
}

// Machine tracks the state of one run. Transitions are strictly forward, one
// step at a time; Fail freezes it. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    State
	failedAt State
	cause    error
}

// NewMachine returns a Machine in Pending.
func NewMachine() *Machine { return &Machine{} }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Advance moves to the next state. to must be the direct successor of the
// current state.
func (m *Machine) Advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Failed || m.state == Done || to != m.state+1 || to == Failed {
		return &TransitionError{From: m.state, To: to}
	}
	m.state = to
	return nil
}

// Fail moves the machine to Failed, recording the state it was in and the
// cause. Failing a finished or already failed machine is a no-op.
func (m *Machine) Fail(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Failed || m.state == Done {
		return
	}
	m.failedAt, m.cause = m.state, cause
	m.state = Failed
}

// Failure returns the state the run failed in and the cause. ok is false
// unless the machine is Failed.
func (m *Machine) Failure() (at State, cause error, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedAt, m.cause, m.state == Failed
}

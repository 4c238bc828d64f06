// Package fsm implements the Workflow state machine: the three-state
// program lifecycle (Idle/Running/Paused) that a Controller drives as
// it streams a loaded program. It is a direct generalization of a
// generic transition-table FSM: same table-driven Fire() shape, cut
// down to the states and events the streaming protocol actually needs,
// plus a Stop event that is legal from any state.
package fsm

import (
	"fmt"
	"sync"

	"github.com/cheton/cnc/internal/types"
)

// Event names a Workflow transition trigger.
type Event string

const (
	EventStart  Event = "start"
	EventPause  Event = "pause"
	EventResume Event = "resume"
	EventStop   Event = "stop"
)

// Callback runs after a transition lands on a state. reason is only
// meaningful for the Paused state; it is the zero value otherwise.
type Callback func(ident string, reason types.HoldReason)

// Workflow is the Idle/Running/Paused state machine described in
// spec.md §4.5. Stop is legal from any state and always lands on Idle;
// all other transitions follow a fixed table.
type Workflow struct {
	mu      sync.Mutex
	current types.WorkflowState
	ident   string

	transitions map[types.WorkflowState]map[Event]types.WorkflowState
	callbacks   map[types.WorkflowState]Callback

	reason types.HoldReason
}

// New creates a Workflow in the Idle state for the given connection ident.
func New(ident string) *Workflow {
	w := &Workflow{
		current:     types.WorkflowIdle,
		ident:       ident,
		transitions: make(map[types.WorkflowState]map[Event]types.WorkflowState),
		callbacks:   make(map[types.WorkflowState]Callback),
	}
	w.addTransition(types.WorkflowIdle, EventStart, types.WorkflowRunning)
	w.addTransition(types.WorkflowRunning, EventPause, types.WorkflowPaused)
	w.addTransition(types.WorkflowPaused, EventResume, types.WorkflowRunning)
	return w
}

func (w *Workflow) addTransition(from types.WorkflowState, event Event, to types.WorkflowState) {
	if _, ok := w.transitions[from]; !ok {
		w.transitions[from] = make(map[Event]types.WorkflowState)
	}
	w.transitions[from][event] = to
}

// RegisterCallback runs cb every time the machine lands on state.
func (w *Workflow) RegisterCallback(state types.WorkflowState, cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks[state] = cb
}

// State returns the current state.
func (w *Workflow) State() types.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reason returns the hold reason recorded by the most recent pause.
func (w *Workflow) Reason() types.HoldReason {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reason
}

// Fire triggers event, optionally carrying a pause reason. Callers
// should not call Fire again from inside a registered callback; that
// would deadlock on w.mu.
func (w *Workflow) Fire(event Event, reason types.HoldReason) error {
	w.mu.Lock()

	var next types.WorkflowState
	if event == EventStop {
		next = types.WorkflowIdle
	} else {
		n, ok := w.transitions[w.current][event]
		if !ok {
			w.mu.Unlock()
			return fmt.Errorf("workflow %s: cannot fire %s from state %s", w.ident, event, w.current)
		}
		next = n
	}

	w.current = next
	if next == types.WorkflowPaused {
		w.reason = reason
	} else {
		w.reason = types.HoldReason{}
	}
	cb := w.callbacks[next]
	w.mu.Unlock()

	if cb != nil {
		cb(w.ident, reason)
	}
	return nil
}

func (w *Workflow) Start() error                     { return w.Fire(EventStart, types.HoldReason{}) }
func (w *Workflow) Pause(reason types.HoldReason) error { return w.Fire(EventPause, reason) }
func (w *Workflow) Resume() error                    { return w.Fire(EventResume, types.HoldReason{}) }
func (w *Workflow) Stop() error                      { return w.Fire(EventStop, types.HoldReason{}) }

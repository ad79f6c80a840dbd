package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	Participant string
	FromState   State
	ToState     State
	Timestamp   time.Time
	Reason      string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(event StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

var validTransitions = map[State][]State{
	StateIdle:       {StateActivated},
	StateActivated:  {StateGenerating, StateIdle},
	StateGenerating: {StateSpeaking, StateIdle},
	StateSpeaking:   {StateIdle},
}

// stateMachine tracks one participant's position in the turn cycle.
type stateMachine struct {
	participant  string
	currentState State
	enteredAt    time.Time
	mu           sync.RWMutex

	listeners func() []StateListener
}

func newStateMachine(participant string, listeners func() []StateListener) *stateMachine {
	return &stateMachine{
		participant:  participant,
		currentState: StateIdle,
		enteredAt:    time.Now(),
		listeners:    listeners,
	}
}

// State returns the current state.
func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// Since reports how long the participant has been in its current state.
func (sm *stateMachine) Since() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.enteredAt)
}

// transitionValid reports whether from may move to to.
func transitionValid(from, to State) bool {
	if from == StateTerminated {
		return false
	}
	// every live state may retire
	if to == StateTerminated {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (sm *stateMachine) Transition(state State, reason string) error {
	sm.mu.Lock()
	if !transitionValid(sm.currentState, state) {
		from := sm.currentState
		sm.mu.Unlock()
		return &InvalidTransitionError{Participant: sm.participant, From: from, To: state}
	}
	event := StateChange{
		Participant: sm.participant,
		FromState:   sm.currentState,
		ToState:     state,
		Timestamp:   time.Now(),
		Reason:      reason,
	}
	sm.currentState = state
	sm.enteredAt = event.Timestamp
	sm.mu.Unlock()

	// Listeners run without the lock so they may query state.
	if sm.listeners == nil {
		return nil
	}
	for _, listener := range sm.listeners() {
		listener.OnStateChange(event)
	}
	return nil
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	Participant string
	From        State
	To          State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition for " + e.Participant + " from " + e.From.String() + " to " + e.To.String()
}

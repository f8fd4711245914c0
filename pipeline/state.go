package pipeline

import "sync"

// PlaybackState is the session state.
type PlaybackState int

const (
	// StateIdle indicates the session has not started.
	StateIdle PlaybackState = iota
	// StateFetching indicates content is being read and chunked.
	StateFetching
	// StateBuffering indicates playback is waiting for audio.
	StateBuffering
	// StatePlaying indicates audio is actively playing.
	StatePlaying
	// StatePaused indicates playback is suspended mid-chunk.
	StatePaused
	// StateCompleted indicates the source played through to the end.
	StateCompleted
	// StateStopped indicates the user stopped the session.
	StateStopped
	// StateFailed indicates the session ended with no forward progress
	// possible.
	StateFailed
)

// String returns the string representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session.
func (s PlaybackState) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

// stateTransitions is the set of valid transitions. Terminal states
// have no exits.
var stateTransitions = map[PlaybackState][]PlaybackState{
	StateIdle:      {StateFetching, StateStopped},
	StateFetching:  {StateBuffering, StateStopped, StateFailed},
	StateBuffering: {StatePlaying, StateCompleted, StateStopped, StateFailed},
	StatePlaying:   {StatePaused, StateBuffering, StateCompleted, StateStopped, StateFailed},
	StatePaused:    {StatePlaying, StateBuffering, StateStopped, StateFailed},
}

// StateMachine guards session state transitions. It is safe for
// concurrent use; the notify callback runs outside the lock.
type StateMachine struct {
	mu      sync.Mutex
	current PlaybackState
	notify  func(PlaybackState)
}

// NewStateMachine creates a state machine in StateIdle. notify, when
// non-nil, is invoked after every successful transition.
func NewStateMachine(notify func(PlaybackState)) *StateMachine {
	return &StateMachine{current: StateIdle, notify: notify}
}

// Transition attempts to move to the specified state and reports
// whether the transition was valid.
func (sm *StateMachine) Transition(to PlaybackState) bool {
	sm.mu.Lock()
	if sm.current == to {
		sm.mu.Unlock()
		return true
	}

	valid := false
	for _, s := range stateTransitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		sm.mu.Unlock()
		return false
	}

	sm.current = to
	notify := sm.notify
	sm.mu.Unlock()

	if notify != nil {
		notify(to)
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() PlaybackState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

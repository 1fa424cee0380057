package lensplay

// PlayerState is the state of a
// playback session.
type PlayerState int

const (
	StateNone PlayerState = iota
	StateBuffering
	StateReadyToPlay
	StatePlaying
	StateSuspended
	StateFinished
	StateFailed
)

// String returns the name of the state.
func (state PlayerState) String() string {
	switch state {
	case StateNone:
		return "none"
	case StateBuffering:
		return "buffering"
	case StateReadyToPlay:
		return "readyToPlay"
	case StatePlaying:
		return "playing"
	case StateSuspended:
		return "suspended"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a session
// is running in the state.
func (state PlayerState) Active() bool {
	switch state {
	case StateBuffering, StateReadyToPlay, StatePlaying, StateSuspended, StateFinished:
		return true
	default:
		return false
	}
}

var stateTransitions = map[PlayerState][]PlayerState{
	StateNone:        {StateBuffering, StateFailed},
	StateBuffering:   {StateReadyToPlay, StatePlaying, StateSuspended, StateFinished, StateFailed, StateNone},
	StateReadyToPlay: {StatePlaying, StateSuspended, StateBuffering, StateFinished, StateFailed, StateNone},
	StatePlaying:     {StateBuffering, StateSuspended, StateFinished, StateFailed, StateNone},
	StateSuspended:   {StatePlaying, StateBuffering, StateReadyToPlay, StateFailed, StateNone},
	StateFinished:    {StateBuffering, StateFailed, StateNone},
	StateFailed:      {StateNone},
}

// CanTransition reports whether the state
// machine allows going from one state to another.
func (state PlayerState) CanTransition(to PlayerState) bool {
	for _, allowed := range stateTransitions[state] {
		if allowed == to {
			return true
		}
	}

	return false
}

// StateChangeCallback is called after
// every state transition.
type StateChangeCallback func(from, to PlayerState)

// ErrorCallback is called when the
// session fails.
type ErrorCallback func(err error)

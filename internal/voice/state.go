package voice

import "time"

// State is the externally visible pipeline state.
type State int

const (
	StateIdle State = iota
	StateWakeWordArmed
	StateListening
	StateStreaming
	StateAwaitingReply
	StatePlaying
	StateDucked
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWakeWordArmed:
		return "wake_word_armed"
	case StateListening:
		return "listening"
	case StateStreaming:
		return "streaming"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePlaying:
		return "playing"
	case StateDucked:
		return "ducked"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// resting reports whether s is one of the between-session states.
func (s State) resting() bool {
	return s == StateIdle || s == StateWakeWordArmed
}

// Transition is published on every state change.
type Transition struct {
	From      State
	To        State
	SessionID string
	At        time.Time
}

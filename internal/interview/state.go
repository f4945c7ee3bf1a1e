package interview

// State is the turn-taking state of a [Session].
type State int

const (
	// StateListening accepts candidate input.
	StateListening State = iota

	// StateThinking processes a completed turn.
	StateThinking

	// StateSpeaking delivers the interviewer's reply.
	StateSpeaking

	// StateDisposed is terminal.
	StateDisposed
)

// String returns the state name used on the wire.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// canTransition reports whether from -> to is legal. Any live state may move
// to disposed; otherwise the cycle is listening, thinking, speaking.
func canTransition(from, to State) bool {
	if from == StateDisposed {
		return false
	}
	switch to {
	case StateDisposed:
		return true
	case StateThinking:
		return from == StateListening
	case StateSpeaking:
		return from == StateThinking
	case StateListening:
		return from == StateSpeaking
	}
	return false
}

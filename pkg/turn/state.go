package turn

type State int

const (
	StateIdle State = iota
	StateActivated
	StateGenerating
	StateSpeaking
	StateTerminated
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActivated:
		return "ACTIVATED"
	case StateGenerating:
		return "GENERATING"
	case StateSpeaking:
		return "SPEAKING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

package session

// State is the recorder lifecycle. StateFailed is held only while a failure
// is being reported; the recorder then returns to StateIdle.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateStreaming
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsRecording reports whether capture resources are held in this state.
func (s State) IsRecording() bool {
	return s == StateAcquiring || s == StateStreaming || s == StateStopping
}

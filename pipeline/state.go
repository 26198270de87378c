package pipeline

// State is the step the scheduler is currently in.
type State int32

// The scheduler moves IDLE -> DRAINING -> PROCESSING -> PUBLISHING -> IDLE, returning to IDLE
// straight from DRAINING when no frame is waiting.
const (
	StateIdle State = iota
	StateDraining
	StateProcessing
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDraining:
		return "DRAINING"
	case StateProcessing:
		return "PROCESSING"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

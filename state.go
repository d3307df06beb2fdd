package barcodescan

// State is the lifecycle state of a capture session or scan state machine.
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateRunning
	StateCompleting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateCompleting:
		return "completing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

package process

// State is the lifecycle state of a Supervisor.
//
//	NotStarted -> Starting -> Running -> Stopping -> Stopped
//	              Starting -> Failed
//	NotStarted -> Running (Attach)
//	NotStarted -> Stopped (Stop before Start)
type State int

const (
	// StateNotStarted is the initial state.
	StateNotStarted State = iota

	// StateStarting means the config is written and the process is within
	// its startup grace period.
	StateStarting

	// StateRunning means the process survived the grace period.
	StateRunning

	// StateStopping means termination is in progress.
	StateStopping

	// StateStopped is terminal: the process is gone and its config removed.
	StateStopped

	// StateFailed is terminal: the process never reached Running.
	StateFailed
)

// String returns a human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

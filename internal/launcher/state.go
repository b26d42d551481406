// Package launcher starts runtime server processes and tears them down.
package launcher

// State is the lifecycle state of a spawned runtime process.
type State int

const (
	// StateStarting is set at spawn, before readiness is confirmed.
	StateStarting State = iota

	// StateReady means the server accepted a TCP connection on its port.
	StateReady

	// StateRunning means the load tool is driving the server.
	StateRunning

	// StateTerminated means the harness stopped the process.
	StateTerminated

	// StateFailed means the process exited on its own.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsAlive returns true while the process may still be running.
func (s State) IsAlive() bool {
	return s == StateStarting || s == StateReady || s == StateRunning
}

// IsTerminal returns true once the process is gone.
func (s State) IsTerminal() bool {
	return s == StateTerminated || s == StateFailed
}

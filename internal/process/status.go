package process

// Status represents the lifecycle state of a child handle.
type Status int

const (
	// StatusPending indicates the process has not been started.
	StatusPending Status = iota
	// StatusRunning indicates the process is running.
	StatusRunning
	// StatusExited indicates the process exited on its own (any exit code).
	StatusExited
	// StatusSignaled indicates the process was terminated by a signal.
	StatusSignaled
)

// String returns a human-readable string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the process is no longer running.
func (s Status) IsTerminal() bool {
	return s == StatusExited || s == StatusSignaled
}

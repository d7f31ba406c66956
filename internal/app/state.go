package app

// UIState is the host-side process state shown in the status label. The
// controller moves it to StateFinished through the completion callback.
type UIState int

const (
	// StateNoFolder means no CVR folder has been chosen yet.
	StateNoFolder UIState = iota
	StateReady
	StateStarted
	StateCancelling
	StateFinished
)

func (s UIState) String() string {
	switch s {
	case StateNoFolder:
		return "no-folder"
	case StateReady:
		return "ready"
	case StateStarted:
		return "started"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// StatusText is the text after "Process Status: ".
func (s UIState) StatusText() string {
	switch s {
	case StateStarted:
		return "Running"
	case StateCancelling:
		return "Cancelling..."
	case StateFinished:
		return "Finished"
	default:
		return "Not Started"
	}
}

// Controls says which actions are enabled.
type Controls struct {
	Process      bool
	TestRun      bool
	Cancel       bool
	ChooseFolder bool
}

// Controls returns the enabled actions for s. Ready and Finished allow a
// new run, Started only allows cancelling, Cancelling allows nothing.
func (s UIState) Controls() Controls {
	switch s {
	case StateReady, StateFinished:
		return Controls{Process: true, TestRun: true, ChooseFolder: true}
	case StateStarted:
		return Controls{Cancel: true}
	case StateCancelling:
		return Controls{}
	default:
		return Controls{ChooseFolder: true}
	}
}

// Running reports whether a child is live from the host's point of view.
func (s UIState) Running() bool {
	return s == StateStarted || s == StateCancelling
}

package lifecycle

// State is the lifecycle state of a Controller.
//
//	Created -> Initializing -> Ready | InitFailed
//	Ready <-> Playing <-> Paused
//	any -> Disposing -> Disposed
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateInitFailed
	StatePlaying
	StatePaused
	StateDisposing
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateInitFailed:
		return "init_failed"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// initialized reports whether the state follows a successful Initialize.
func (s State) initialized() bool {
	return s == StateReady || s == StatePlaying || s == StatePaused
}

// terminal reports whether disposal has started.
func (s State) terminal() bool {
	return s == StateDisposing || s == StateDisposed
}

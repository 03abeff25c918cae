package feed

// Status is the overall state of a run as shown to the user.
type Status int

const (
	// StatusIdle means no run has been started.
	StatusIdle Status = iota
	// StatusLoading means at least one stream is still producing text.
	StatusLoading
	// StatusDone means every stream finished and the last words were queued.
	StatusDone
	// StatusError means a stream failed. It stays set for the rest of the run.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// statusMachine guards status transitions for one run. onEnter runs after
// every accepted transition.
type statusMachine struct {
	current     Status
	transitions map[Status][]Status
	onEnter     func(prev, to Status, err error)
}

func newStatusMachine(onEnter func(prev, to Status, err error)) *statusMachine {
	return &statusMachine{
		current: StatusIdle,
		transitions: map[Status][]Status{
			StatusIdle:    {StatusLoading},
			StatusLoading: {StatusDone, StatusError},
			StatusDone:    {},
			StatusError:   {},
		},
		onEnter: onEnter,
	}
}

// Transition moves to the given status if the move is allowed and reports
// whether it happened. err is handed to onEnter as the cause.
func (sm *statusMachine) Transition(to Status, err error) bool {
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	prev := sm.current
	sm.current = to
	if sm.onEnter != nil {
		sm.onEnter(prev, to, err)
	}
	return true
}

// Current returns the current status.
func (sm *statusMachine) Current() Status {
	return sm.current
}

// DisplayState is the scheduler's state.
type DisplayState int

const (
	// DisplayIdle means no block is on screen.
	DisplayIdle DisplayState = iota
	// DisplayShowing means a block is on screen or being spoken.
	DisplayShowing
)

// String returns the string representation of the display state.
func (s DisplayState) String() string {
	if s == DisplayShowing {
		return "showing"
	}
	return "idle"
}

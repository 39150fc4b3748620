package dispatcher

import "fmt"

// Status is the state of the dispatch state machine.
type Status uint8

const (
	// StatusReady accepts new commands.
	StatusReady Status = iota
	// StatusRunning is handling a command; handlers may dispatch nested
	// commands.
	StatusRunning
	// StatusRunningCore is replaying commands to the core handlers.
	StatusRunningCore
	// StatusFinalizing is calling Finalize on every handler. No dispatch
	// is allowed.
	StatusFinalizing
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusRunningCore:
		return "running-core"
	case StatusFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Event drives a Status transition.
type Event uint8

const (
	// EventStart begins the handling of an outermost command.
	EventStart Event = iota
	// EventReplay enters core replay.
	EventReplay
	// EventFinalize begins the finalize pass.
	EventFinalize
	// EventFinish ends the finalize pass.
	EventFinish
	// EventAbort abandons a command rolled back after a handler panic.
	EventAbort
)

// String returns a string representation of the event.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventReplay:
		return "replay"
	case EventFinalize:
		return "finalize"
	case EventFinish:
		return "finish"
	case EventAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// TransitionError reports an event not accepted in a status.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("dispatcher: invalid transition %s on %s", e.From, e.Event)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Fatal is true: a broken status machine cannot be recovered from.
func (e *TransitionError) Fatal() bool { return true }

// Next returns the status following s on ev. Leaving core replay is not a
// transition: the dispatcher restores the status it replayed from.
func (s Status) Next(ev Event) (Status, error) {
	switch {
	case ev == EventStart && s == StatusReady:
		return StatusRunning, nil
	case ev == EventReplay && s != StatusFinalizing:
		return StatusRunningCore, nil
	case ev == EventFinalize && (s == StatusRunning || s == StatusReady):
		return StatusFinalizing, nil
	case ev == EventFinish && s == StatusFinalizing:
		return StatusReady, nil
	case ev == EventAbort && s != StatusReady:
		return StatusReady, nil
	}
	return s, &TransitionError{From: s, Event: ev}
}

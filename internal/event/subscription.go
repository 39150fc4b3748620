package event

import "sync/atomic"

// State is the lifecycle state of a subscription.
type State int32

const (
	Active State = iota
	Paused
	Cancelled
)

var stateNames = [...]string{"active", "paused", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Priority orders the listeners of one emitter. Lower values run first.
type Priority int

const (
	PriorityHigh   Priority = -100
	PriorityNormal Priority = 0
	PriorityLow    Priority = 100
)

// Subscription controls one listener.
type Subscription interface {
	ID() uint64 // unique per emitter
	State() State
	IsActive() bool
	Pause()
	Resume()
	// Cancel removes the listener for good. Cancelling twice does nothing.
	Cancel()
}

type options[T any] struct {
	priority Priority
	filter   func(T) bool
	once     bool
}

// Option configures a subscription.
type Option[T any] func(*options[T])

// WithPriority places the listener among the others of its emitter.
func WithPriority[T any](p Priority) Option[T] {
	return func(o *options[T]) { o.priority = p }
}

// WithFilter skips the payloads keep rejects.
func WithFilter[T any](keep func(T) bool) Option[T] {
	return func(o *options[T]) { o.filter = keep }
}

// WithOnce cancels the subscription before its first delivery.
func WithOnce[T any]() Option[T] {
	return func(o *options[T]) { o.once = true }
}

type subscription[T any] struct {
	id    uint64
	fn    func(T)
	opts  options[T]
	state atomic.Int32
	owner *Emitter[T]
}

func (s *subscription[T]) ID() uint64     { return s.id }
func (s *subscription[T]) State() State   { return State(s.state.Load()) }
func (s *subscription[T]) IsActive() bool { return s.State() == Active }

func (s *subscription[T]) Pause() {
	s.state.CompareAndSwap(int32(Active), int32(Paused))
}

func (s *subscription[T]) Resume() {
	s.state.CompareAndSwap(int32(Paused), int32(Active))
}

func (s *subscription[T]) Cancel() {
	if State(s.state.Swap(int32(Cancelled))) != Cancelled {
		s.owner.remove(s.id)
	}
}

func (s *subscription[T]) deliver(v T) {
	if !s.IsActive() || (s.opts.filter != nil && !s.opts.filter(v)) {
		return
	}
	if s.opts.once {
		s.Cancel()
	}
	s.fn(v)
}

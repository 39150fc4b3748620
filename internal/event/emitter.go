package event

import (
	"errors"
	"slices"
	"sync"
)

// ErrNilHandler is the value Subscribe panics with when given a nil
// function.
var ErrNilHandler = errors.New("event: nil handler")

// Emitter delivers payloads of type T to its listeners. The zero value is
// ready to use. Emitters are safe for concurrent use.
type Emitter[T any] struct {
	mu     sync.Mutex
	subs   []*subscription[T]
	nextID uint64
}

// Subscribe registers fn. It panics if fn is nil.
func (e *Emitter[T]) Subscribe(fn func(T), opts ...Option[T]) Subscription {
	if fn == nil {
		panic(ErrNilHandler)
	}
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	s := &subscription[T]{id: e.nextID, fn: fn, opts: o, owner: e}

	i, _ := slices.BinarySearchFunc(e.subs, s, func(a, b *subscription[T]) int {
		if a.opts.priority != b.opts.priority {
			return int(a.opts.priority - b.opts.priority)
		}
		return int(a.id) - int(b.id)
	})
	e.subs = slices.Insert(e.subs, i, s)
	return s
}

// Emit delivers v to every active listener on the calling goroutine.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	subs := slices.Clone(e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		s.deliver(v)
	}
}

// Len returns the number of subscriptions not cancelled.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Clear cancels every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	for _, s := range subs {
		s.state.Store(int32(Cancelled))
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = slices.DeleteFunc(e.subs, func(s *subscription[T]) bool { return s.id == id })
}

package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/gridsync/internal/session"
)

// LocalTransport is an in-process session.Transport backed by a Relay.
// Hold and Release delay the messages sent in between, which lets tests
// issue concurrent revisions deterministically.
type LocalTransport struct {
	relay *Relay

	mu     sync.Mutex
	held   bool
	queue  []session.Message
	closed bool
}

// NewLocalTransport creates a transport for r.
func NewLocalTransport(r *Relay) *LocalTransport {
	return &LocalTransport{relay: r}
}

// NewLocal creates an in-memory relay for docID and its transport.
func NewLocal(docID string) *LocalTransport {
	r, err := Open(context.Background(), docID, nil, nil)
	if err != nil {
		// The memory store cannot fail.
		panic(err)
	}
	return NewLocalTransport(r)
}

// Send implements session.Transport. Messages rejected by the relay are
// dropped, as a network relay would.
func (t *LocalTransport) Send(msg session.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return session.ErrClosed
	}
	if t.held {
		t.queue = append(t.queue, msg)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.forward(msg)
}

func (t *LocalTransport) forward(msg session.Message) error {
	err := t.relay.Accept(context.Background(), msg)
	if errors.Is(err, ErrRejected) {
		return nil
	}
	return err
}

// OnMessage implements session.Transport.
func (t *LocalTransport) OnMessage(clientID string, fn func(session.Message)) func() {
	return t.relay.Subscribe(clientID, fn)
}

// Leave implements session.Transport.
func (t *LocalTransport) Leave(clientID string) {
	t.relay.Leave(clientID)
}

// Hold queues every message sent until Release.
func (t *LocalTransport) Hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held = true
}

// Release forwards the queued messages in order and stops holding.
func (t *LocalTransport) Release() error {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.held = false
	t.mu.Unlock()

	var errs []error
	for _, msg := range queue {
		if err := t.forward(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay returns the underlying relay.
func (t *LocalTransport) Relay() *Relay {
	return t.relay
}

// Close makes every later Send fail.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/gridsync/internal/session"
)

// SendTimeout bounds the Accept call behind Connection.Send.
const SendTimeout = 10 * time.Second

// Connection is a session.Transport attached to a Document for one client.
//
// The subscription starts at Connect, together with the backlog, so that
// nothing is missed between reading the backlog and joining the session:
// messages delivered before OnMessage is called are buffered and handed to
// the handler first.
type Connection struct {
	doc      Document
	clientID string

	deliverMu sync.Mutex // held while calling handler
	mu        sync.Mutex
	handler   func(session.Message)
	buffer    []session.Message
	started   bool
	detach    func()
	closed    bool
}

// Connect attaches clientID to doc.
func Connect(ctx context.Context, doc Document, clientID string) (*Connection, *Backlog, error) {
	c := &Connection{doc: doc, clientID: clientID}
	b, detach, err := doc.Attach(ctx, clientID, c.deliver)
	if err != nil {
		return nil, nil, err
	}
	c.detach = detach
	return c, b, nil
}

func (c *Connection) deliver(msg session.Message) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	h := c.handler
	if h == nil && !c.started && !c.closed {
		c.buffer = append(c.buffer, msg)
	}
	c.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Send implements session.Transport. Rejected messages are dropped.
func (c *Connection) Send(msg session.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return session.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
	defer cancel()
	err := c.doc.Accept(ctx, msg)
	if errors.Is(err, ErrRejected) {
		return nil
	}
	return err
}

// OnMessage implements session.Transport. The buffered messages are
// delivered to fn before it returns.
func (c *Connection) OnMessage(_ string, fn func(session.Message)) func() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.handler = fn
	c.started = true
	buffer := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	for _, msg := range buffer {
		fn(msg)
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handler = nil
	}
}

// Leave implements session.Transport. The connection stops delivering.
func (c *Connection) Leave(string) {
	c.Close()
}

// Close detaches from the document. Later sends fail with
// session.ErrClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handler = nil
	c.buffer = nil
	detach := c.detach
	c.mu.Unlock()
	detach()
	return nil
}

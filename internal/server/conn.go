package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
	wsframe "github.com/dshills/gridsync/internal/transport/websocket"
)

// conn is a websocket attached to a document. Frames are written by a single
// goroutine from the send queue; deliveries never block the document.
type conn struct {
	s        *Server
	ws       *websocket.Conn
	docID    string
	clientID string
	doc      relay.Document

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Messages delivered before the INIT frame is queued wait in early.
	mu    sync.Mutex
	ready bool
	early [][]byte

	// Presence seen from the client, read goroutine only.
	joined, left bool
}

func newConn(s *Server, ws *websocket.Conn, docID, clientID string, doc relay.Document) *conn {
	return &conn{
		s:        s,
		ws:       ws,
		docID:    docID,
		clientID: clientID,
		doc:      doc,
		send:     make(chan []byte, s.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *conn) serve(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	logger := c.s.logger

	backlog, detach, err := c.doc.Attach(ctx, c.clientID, c.deliver)
	if err != nil {
		logger.Error("attach", "doc", c.docID, "client", c.clientID, "error", err)
		c.closeWith(websocket.CloseInternalServerErr, "attach failed")
		return
	}
	frame, err := wsframe.EncodeInit(backlog)
	if err != nil {
		detach()
		logger.Error("init frame", "doc", c.docID, "error", err)
		c.closeWith(websocket.CloseInternalServerErr, "init failed")
		return
	}
	c.mu.Lock()
	c.enqueue(frame)
	for _, data := range c.early {
		c.enqueue(data)
	}
	c.early = nil
	c.ready = true
	c.mu.Unlock()

	logger.Info("client connected", "doc", c.docID, "client", c.clientID, "backlog", len(backlog.Messages))
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeLoop()
	}()
	c.readLoop(ctx)
	c.close()
	<-writeDone
	detach()

	if c.joined && !c.left {
		c.accept(ctx, session.Message{
			Type:     session.MessageClientLeft,
			Version:  session.MessageVersion,
			ClientID: c.clientID,
		})
	}
	logger.Info("client disconnected", "doc", c.docID, "client", c.clientID)
}

// deliver queues msg for the client.
func (c *conn) deliver(msg session.Message) {
	data, err := msg.Encode()
	if err != nil {
		c.s.logger.Error("deliver", "doc", c.docID, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		c.early = append(c.early, data)
		return
	}
	c.enqueue(data)
}

// enqueue requires c.mu.
func (c *conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.s.logger.Warn("client too slow, disconnecting", "doc", c.docID, "client", c.clientID)
		c.close()
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.s.cfg.WriteTimeout))
	_ = c.ws.Close()
}

func (c *conn) writeLoop() {
	defer c.ws.Close()
	var ping <-chan time.Time
	if c.s.cfg.PingInterval > 0 {
		t := time.NewTicker(c.s.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.s.logger.Debug("websocket write", "client", c.clientID, "error", err)
				c.close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.s.cfg.WriteTimeout)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.s.cfg.WriteTimeout))
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) {
	if c.s.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.s.cfg.MaxMessageSize)
	}
	if wait := 2 * c.s.cfg.PingInterval; wait > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.s.logger.Debug("websocket read", "client", c.clientID, "error", err)
			}
			return
		}
		msg, err := session.DecodeMessage(data)
		if err != nil {
			c.s.logger.Warn("invalid message", "doc", c.docID, "client", c.clientID, "type", session.PeekType(data), "error", err)
			continue
		}
		if msg.ClientID == "" {
			msg.ClientID = c.clientID
		}
		switch msg.Type {
		case session.MessageClientJoined:
			c.joined = true
		case session.MessageClientLeft:
			c.left = true
		}
		c.accept(ctx, msg)
	}
}

func (c *conn) accept(ctx context.Context, msg session.Message) {
	ctx, cancel := context.WithTimeout(ctx, relay.SendTimeout)
	defer cancel()
	err := c.doc.Accept(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrRejected):
		c.s.logger.Debug("message rejected", "doc", c.docID, "client", c.clientID, "type", msg.Type)
	default:
		c.s.logger.Error("accept", "doc", c.docID, "client", c.clientID, "type", msg.Type, "error", err)
	}
}

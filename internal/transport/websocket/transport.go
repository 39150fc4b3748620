package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
)

// ErrHandshake indicates a server that did not start with an INIT frame.
var ErrHandshake = errors.New("websocket: handshake failed")

// Logger is the logging interface used by the transport.
type Logger = session.Logger

// Options configures a Transport.
type Options struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with every connection request.
	Header http.Header

	// ReconnectTimeout bounds the reconnection attempts after the
	// connection drops. Zero retries until Close.
	ReconnectTimeout time.Duration

	// WriteTimeout bounds every write.
	WriteTimeout time.Duration

	// OnReconnect is called with the backlog received after each
	// reconnection, before it is delivered.
	OnReconnect func(*relay.Backlog)

	// OnDisconnect is called when reconnecting gave up.
	OnDisconnect func(error)

	Logger Logger
}

// Transport is a session.Transport over a websocket to a gridsync server.
//
// Messages received before the first OnMessage are buffered. When the
// connection drops, the transport reconnects with exponential backoff and
// delivers the backlog sent by the server again; the session drops the
// messages it already processed. Revisions sent while disconnected are
// written after reconnecting and the presence of the client is announced
// again.
type Transport struct {
	url      string
	clientID string
	opts     Options
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// deliverMu serializes deliveries.
	deliverMu sync.Mutex

	mu       sync.Mutex
	ws       *websocket.Conn
	handler  func(session.Message)
	started  bool
	buffer   []session.Message
	queue    []session.Message
	presence []session.Message
	closed   bool
}

// URL returns the websocket endpoint of docID on the server at base, an
// http(s) or ws(s) URL.
func URL(base, docID, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/docs/" + url.PathEscape(docID) + "/ws"
	u.RawQuery = url.Values{"client": {clientID}}.Encode()
	return u.String(), nil
}

// Dial connects clientID to docID on the server at base and returns the
// transport with the backlog the model is created from.
func Dial(ctx context.Context, base, docID, clientID string, opts Options) (*Transport, *relay.Backlog, error) {
	endpoint, err := URL(base, docID, clientID)
	if err != nil {
		return nil, nil, err
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	t := &Transport{
		url:      endpoint,
		clientID: clientID,
		opts:     opts,
		logger:   opts.Logger,
	}
	ws, backlog, err := t.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.ws = ws
	t.wg.Add(1)
	go t.run(ws)
	return t, backlog, nil
}

// connect dials and reads the INIT frame.
func (t *Transport) connect(ctx context.Context) (*websocket.Conn, *relay.Backlog, error) {
	ws, resp, err := t.opts.Dialer.DialContext(ctx, t.url, t.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("dial %s: %s: %w", t.url, resp.Status, err)
		}
		return nil, nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	backlog, err := DecodeInit(data)
	if err != nil {
		ws.Close()
		return nil, nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})
	return ws, backlog, nil
}

// run reads ws until it fails, then reconnects.
func (t *Transport) run(ws *websocket.Conn) {
	defer t.wg.Done()
	for {
		t.read(ws)
		if t.isClosed() {
			return
		}
		t.logger.Warn("connection lost, reconnecting", "url", t.url)
		next, err := t.reconnect()
		if err != nil {
			if !t.isClosed() {
				t.logger.Error("reconnect failed", "url", t.url, "error", err)
				t.shutdown()
				if t.opts.OnDisconnect != nil {
					t.opts.OnDisconnect(err)
				}
			}
			return
		}
		ws = next
	}
}

func (t *Transport) read(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.ws == ws {
				t.ws = nil
			}
			t.mu.Unlock()
			ws.Close()
			return
		}
		msg, err := session.DecodeMessage(data)
		if err != nil {
			t.logger.Warn("invalid message", "type", session.PeekType(data), "error", err)
			continue
		}
		t.deliver(msg)
	}
}

func (t *Transport) reconnect() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = t.opts.ReconnectTimeout

	var ws *websocket.Conn
	var backlog *relay.Backlog
	err := backoff.RetryNotify(func() error {
		if t.isClosed() {
			return backoff.Permanent(session.ErrClosed)
		}
		ctx, cancel := context.WithTimeout(t.ctx, t.opts.WriteTimeout)
		defer cancel()
		var err error
		ws, backlog, err = t.connect(ctx)
		return err
	}, backoff.WithContext(b, t.ctx), func(err error, next time.Duration) {
		t.logger.Debug("reconnect attempt failed", "error", err, "retry", next)
	})
	if err != nil {
		return nil, err
	}

	if t.opts.OnReconnect != nil {
		t.opts.OnReconnect(backlog)
	}
	for _, msg := range backlog.Messages {
		t.deliver(msg)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		ws.Close()
		return nil, session.ErrClosed
	}
	t.ws = ws
	pending := append(append([]session.Message(nil), t.presence...), t.queue...)
	t.queue = nil
	for i, msg := range pending {
		if err := t.write(ws, msg); err != nil {
			// The read loop notices the broken connection and reconnects.
			t.queue = append(t.queue, pending[max(i, len(t.presence)):]...)
			break
		}
	}
	t.logger.Info("reconnected", "url", t.url, "backlog", len(backlog.Messages))
	return ws, nil
}

// deliver hands msg to the handler, or buffers it until OnMessage.
func (t *Transport) deliver(msg session.Message) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	t.mu.Lock()
	fn := t.handler
	if fn == nil {
		if !t.started && !t.closed {
			t.buffer = append(t.buffer, msg)
		}
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(msg)
}

// Send implements session.Transport. While disconnected, revisions are
// queued and presence is remembered.
func (t *Transport) Send(msg session.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return session.ErrClosed
	}
	t.remember(msg)
	if t.ws == nil {
		if msg.IsOrdered() {
			t.queue = append(t.queue, msg)
		}
		return nil
	}
	if err := t.write(t.ws, msg); err != nil {
		if msg.IsOrdered() {
			t.queue = append(t.queue, msg)
		}
		t.logger.Debug("write failed, queued", "type", msg.Type, "error", err)
	}
	return nil
}

// remember keeps the last presence messages of the client, announced again
// after reconnecting.
func (t *Transport) remember(msg session.Message) {
	switch msg.Type {
	case session.MessageClientJoined:
		t.presence = []session.Message{msg}
	case session.MessageClientMoved:
		if len(t.presence) > 0 {
			t.presence = append(t.presence[:1], msg)
		}
	case session.MessageClientLeft:
		t.presence = nil
	}
}

// write requires t.mu.
func (t *Transport) write(ws *websocket.Conn, msg session.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// OnMessage implements session.Transport. Buffered messages are delivered
// before it returns.
func (t *Transport) OnMessage(_ string, fn func(session.Message)) func() {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	t.handler = fn
	t.started = true
	buffered := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	for _, msg := range buffered {
		fn(msg)
	}
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.handler = nil
	}
}

// Leave implements session.Transport.
func (t *Transport) Leave(string) {
	t.Close()
}

// Connected reports whether the websocket is up.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ws != nil
}

// Close closes the connection and stops reconnecting.
func (t *Transport) Close() error {
	ws := t.shutdown()
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.opts.WriteTimeout))
		ws.Close()
	}
	t.wg.Wait()
	return nil
}

func (t *Transport) shutdown() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.cancel()
	ws := t.ws
	t.ws = nil
	t.handler = nil
	t.buffer = nil
	return ws
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

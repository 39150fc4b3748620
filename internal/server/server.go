// Package server exposes collaborative documents over HTTP and websocket.
//
// Routes:
//
//	GET /healthz                     liveness
//	GET /docs/{doc}/snapshot         last snapshot of the document
//	GET /docs/{doc}/revisions        messages accepted since the snapshot
//	GET /docs/{doc}/stats            connections and relay counters
//	GET /docs/{doc}/ws?client={id}   websocket session
//
// A websocket connection first receives an INIT frame with the backlog of
// the document, then every message broadcast to it. Messages written by the
// client are submitted to the document; rejected revisions are dropped and
// the client resends them on top of the revision that won.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

// Logger is the logging interface used by the server.
type Logger = session.Logger

// Config configures a Server.
type Config struct {
	// AllowedOrigins lists the origins allowed to open websockets. Requests
	// without an Origin header are always allowed. "*" allows every origin;
	// an empty list allows the host of the request only.
	AllowedOrigins []string

	// WriteTimeout bounds every websocket write.
	WriteTimeout time.Duration

	// PingInterval is the period of websocket pings. Zero disables them.
	PingInterval time.Duration

	// MaxMessageSize bounds the messages read from clients.
	MaxMessageSize int64

	// SendBuffer is the number of frames queued per connection. A client
	// that falls further behind is disconnected.
	SendBuffer int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1 << 20,
		SendBuffer:     256,
	}
}

// Server serves the documents of a hub.
type Server struct {
	hub      *Hub
	cfg      Config
	logger   Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// New creates a server.
func New(hub *Hub, cfg Config, logger Logger) *Server {
	if logger == nil {
		logger = nopLogger{}
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	s := &Server{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	docs := r.PathPrefix("/docs/{doc:[A-Za-z0-9_.-]+}").Subrouter()
	docs.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	docs.HandleFunc("/revisions", s.handleRevisions).Methods(http.MethodGet)
	docs.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	docs.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Use adds middleware to every route.
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// Handle serves path with h, next to the document routes.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h).Methods(http.MethodGet)
}

// Hub returns the hub of the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Connections returns the number of open websockets.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every websocket and waits for their goroutines. Later
// websocket requests are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	s.wg.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return true
	case len(s.cfg.AllowedOrigins) == 0:
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"documents":   len(s.hub.Documents()),
		"connections": s.Connections(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	snap, err := doc.Snapshot(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no snapshot")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	msgs, err := doc.Messages(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Stats describes a document.
type Stats struct {
	Doc     string       `json:"doc"`
	Clients int          `json:"clients"`
	Relay   *relay.Stats `json:"relay,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	docID := mux.Vars(r)["doc"]
	st := Stats{Doc: docID, Clients: s.hub.Clients(docID)}
	if rs, ok := doc.(interface{ Stats() relay.Stats }); ok {
		v := rs.Stats()
		st.Relay = &v
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "missing client")
		return
	}
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has written the response.
		s.logger.Debug("websocket upgrade", "error", err)
		return
	}

	c := newConn(s, ws, mux.Vars(r)["doc"], clientID, doc)
	if !s.register(c) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = ws.Close()
		return
	}
	defer s.unregister(c)
	c.serve(r.Context())
}

func (s *Server) register(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.hub.connected(c.docID)
	return true
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.hub.disconnected(c.docID)
	s.wg.Done()
}

func (s *Server) document(w http.ResponseWriter, r *http.Request) (relay.Document, bool) {
	doc, err := s.hub.Document(r.Context(), mux.Vars(r)["doc"])
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	return doc, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
	wsframe "github.com/dshills/gridsync/internal/transport/websocket"
)

func revision(server, next string) session.Message {
	return session.Message{
		Type:             session.MessageRemoteRevision,
		Version:          session.MessageVersion,
		ServerRevisionID: server,
		NextRevisionID:   next,
		ClientID:         "alice",
		Commands:         command.List{command.UpdateCell{SheetID: "s1", Col: 1, Row: 1, Content: "x"}},
	}
}

// relays opens one in-memory relay per document.
type relays struct {
	mu     sync.Mutex
	docs   map[string]*relay.Relay
	opened int
}

func (rs *relays) open(ctx context.Context, docID string) (relay.Document, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.docs == nil {
		rs.docs = make(map[string]*relay.Relay)
	}
	rs.opened++
	r, err := relay.Open(ctx, docID, nil, nil)
	if err != nil {
		return nil, err
	}
	rs.docs[docID] = r
	return r, nil
}

func (rs *relays) get(t *testing.T, docID string) *relay.Relay {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.docs[docID]
	if !ok {
		t.Fatalf("document %s not opened", docID)
	}
	return r
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *relays) {
	t.Helper()
	rs := &relays{}
	cfg := DefaultConfig()
	cfg.PingInterval = 0
	s := New(NewHub(rs.open, nil), cfg, nil)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts, rs
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func dial(t *testing.T, ts *httptest.Server, docID, clientID string) (*websocket.Conn, *relay.Backlog) {
	t.Helper()
	url, err := wsframe.URL(ts.URL, docID, clientID)
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read init: %v", err)
	}
	b, err := wsframe.DecodeInit(data)
	if err != nil {
		t.Fatalf("DecodeInit: %v", err)
	}
	return ws, b
}

func readMessage(t *testing.T, ws *websocket.Conn) session.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := session.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msg session.Message) {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)
	var body map[string]any
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	_, ts, rs := newTestServer(t)
	base := ts.URL + "/docs/doc"

	var errBody map[string]string
	if code := getJSON(t, base+"/snapshot", &errBody); code != http.StatusNotFound {
		t.Errorf("snapshot of new document: status = %d, want 404", code)
	}
	var msgs []session.Message
	if code := getJSON(t, base+"/revisions", &msgs); code != http.StatusOK || len(msgs) != 0 {
		t.Errorf("revisions = %d %v, want 200 []", code, msgs)
	}

	r := rs.get(t, "doc")
	ctx := t.Context()
	for _, m := range []session.Message{
		revision(session.DefaultRevisionID, "r1"),
		{Type: session.MessageSnapshot, ServerRevisionID: "r1", NextRevisionID: "snap", Data: map[string]any{"n": 1}},
		revision("snap", "r2"),
	} {
		if err := r.Accept(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	var snap struct {
		RevisionID string         `json:"revisionId"`
		Data       map[string]any `json:"data"`
	}
	if code := getJSON(t, base+"/snapshot", &snap); code != http.StatusOK {
		t.Fatalf("snapshot status = %d", code)
	}
	if snap.RevisionID != "snap" || snap.Data["n"] != float64(1) {
		t.Errorf("snapshot = %+v", snap)
	}
	if getJSON(t, base+"/revisions", &msgs); len(msgs) != 1 || msgs[0].NextRevisionID != "r2" {
		t.Errorf("revisions = %+v, want [r2]", msgs)
	}

	var stats Stats
	getJSON(t, base+"/stats", &stats)
	if stats.Doc != "doc" || stats.Relay == nil || stats.Relay.Accepted != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if rs.opened != 1 {
		t.Errorf("opened %d relays, want 1", rs.opened)
	}
}

func TestRoutes(t *testing.T) {
	_, ts, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound},
		{"invalid document id", http.MethodGet, "/docs/a%20b/revisions", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/docs/doc/revisions", http.StatusMethodNotAllowed},
		{"missing client", http.MethodGet, "/docs/doc/ws", http.StatusBadRequest},
		{"not a websocket", http.MethodGet, "/docs/doc/ws?client=alice", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestWebsocketSession(t *testing.T) {
	s, ts, rs := newTestServer(t)

	alice, b := dial(t, ts, "doc", "alice")
	if len(b.Messages) != 0 || b.Snapshot != nil {
		t.Errorf("backlog of new document = %+v", b)
	}
	writeMessage(t, alice, revision(session.DefaultRevisionID, "r1"))
	if got := readMessage(t, alice); got.NextRevisionID != "r1" || len(got.Commands) != 1 {
		t.Errorf("broadcast = %+v, want r1", got)
	}

	bob, b := dial(t, ts, "doc", "bob")
	if len(b.Messages) != 1 || b.Messages[0].NextRevisionID != "r1" {
		t.Errorf("backlog = %+v, want [r1]", b.Messages)
	}

	// A stale revision is dropped; the next one reaches both clients.
	writeMessage(t, bob, revision(session.DefaultRevisionID, "stale"))
	writeMessage(t, bob, revision("r1", "r2"))
	for name, ws := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		if got := readMessage(t, ws); got.NextRevisionID != "r2" {
			t.Errorf("%s received %s, want r2", name, got.NextRevisionID)
		}
	}
	if head := rs.get(t, "doc").Head(); head != "r2" {
		t.Errorf("Head = %q, want r2", head)
	}
	if n := s.Hub().Clients("doc"); n != 2 {
		t.Errorf("Clients = %d, want 2", n)
	}
}

func TestAbruptDisconnectAnnouncesLeave(t *testing.T) {
	s, ts, _ := newTestServer(t)
	bob, _ := dial(t, ts, "doc", "bob")
	alice, _ := dial(t, ts, "doc", "alice")

	writeMessage(t, alice, session.Message{
		Type:     session.MessageClientJoined,
		ClientID: "alice",
		Client:   &session.Client{ID: "alice", Name: "Alice"},
	})
	if got := readMessage(t, bob); got.Type != session.MessageClientJoined {
		t.Fatalf("received %s, want CLIENT_JOINED", got.Type)
	}

	alice.Close()
	got := readMessage(t, bob)
	if got.Type != session.MessageClientLeft || got.ClientID != "alice" {
		t.Errorf("received %+v, want CLIENT_LEFT from alice", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Hub().Clients("doc") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.Hub().Clients("doc"); n != 1 {
		t.Errorf("Clients = %d after disconnect, want 1", n)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	s, ts, _ := newTestServer(t)
	ws, _ := dial(t, ts, "doc", "alice")

	s.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after Close = %v, want normal closure", err)
	}
	if n := s.Connections(); n != 0 {
		t.Errorf("Connections = %d after Close", n)
	}

	url, _ := wsframe.URL(ts.URL, "doc", "bob")
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer late.Close()
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read on closed server = %v, want going away", err)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://example.com", true},
		{"other host", nil, "http://evil.com", false},
		{"listed", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"not listed", []string{"https://app.example.com"}, "https://example.com", false},
		{"wildcard", []string{"*"}, "https://anything.net", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AllowedOrigins = tt.allowed
			s := New(NewHub(nil, nil), cfg, nil)
			r := httptest.NewRequest(http.MethodGet, "http://example.com/docs/doc/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

type closingDoc struct {
	relay.Document
	closed bool
	err    error
}

func (d *closingDoc) Close() error {
	d.closed = true
	return d.err
}

func TestHub(t *testing.T) {
	var docs []*closingDoc
	hub := NewHub(func(ctx context.Context, docID string) (relay.Document, error) {
		if strings.HasPrefix(docID, "bad") {
			return nil, errors.New("cannot open")
		}
		r, err := relay.Open(ctx, docID, nil, nil)
		if err != nil {
			return nil, err
		}
		d := &closingDoc{Document: r}
		if docID == "b" {
			d.err = errors.New("close failed")
		}
		docs = append(docs, d)
		return d, nil
	}, nil)

	ctx := t.Context()
	for _, id := range []string{"b", "a", "b"} {
		if _, err := hub.Document(ctx, id); err != nil {
			t.Fatalf("Document(%s): %v", id, err)
		}
	}
	if _, err := hub.Document(ctx, "bad"); err == nil {
		t.Error("Document(bad) succeeded")
	}
	if got := hub.Documents(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Documents = %v, want [a b]", got)
	}

	if err := hub.Close(); err == nil || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("Close = %v, want close failed", err)
	}
	for _, d := range docs {
		if !d.closed {
			t.Error("document not closed")
		}
	}
	if len(hub.Documents()) != 0 {
		t.Error("documents left after Close")
	}
}

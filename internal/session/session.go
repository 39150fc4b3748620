package session

import (
	"maps"
	"slices"
	"sync"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/event"
)

// Config configures a Session.
type Config struct {
	// Transport carries messages to the relay. Required.
	Transport Transport

	// IDs generates revision ids. Defaults to UUIDGenerator.
	IDs IDGenerator

	// Logger receives protocol warnings. Defaults to a no-op logger.
	Logger Logger
}

// Session keeps a replica in sync with the other clients of a document.
//
// Local revisions are applied optimistically and sent one at a time; each
// waits for the relay to echo it back before the next is sent. Remote
// revisions are inserted after the last acknowledged revision, which
// transforms the pending local ones. Undo and redo are applied only when
// echoed.
//
// Receive and OnIncoming are safe for concurrent use; every other method
// must be called by the owner of the document state.
type Session struct {
	log       *RevisionLog
	transport Transport
	ids       IDGenerator
	logger    Logger

	clients     map[string]*Client
	clientID    string
	unsubscribe func()

	serverRevisionID   string
	pending            []Message
	waitingAck         bool
	waitingUndoRedoAck bool
	processed          map[string]bool
	replayingInitial   bool

	inboxMu sync.Mutex
	inbox   []Message
	wake    func()

	events event.Emitter[Event]
}

// New creates a session over log, whose last server revision is
// serverRevisionID.
func New(log *RevisionLog, serverRevisionID string, cfg Config) *Session {
	if cfg.IDs == nil {
		cfg.IDs = UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if serverRevisionID == "" {
		serverRevisionID = DefaultRevisionID
	}
	return &Session{
		log:              log,
		transport:        cfg.Transport,
		ids:              cfg.IDs,
		logger:           cfg.Logger,
		clients:          make(map[string]*Client),
		clientID:         LocalClientID,
		serverRevisionID: serverRevisionID,
		processed:        make(map[string]bool),
	}
}

// Subscribe registers fn for session events.
func (s *Session) Subscribe(fn func(Event), opts ...event.Option[Event]) event.Subscription {
	return s.events.Subscribe(fn, opts...)
}

// Save records a local revision and sends it. Dispatches without changes
// are not saved. It returns the revision id, or "" if nothing was saved.
func (s *Session) Save(commands []command.Command, changes tracking.Changes) string {
	if len(commands) == 0 || len(changes) == 0 || !s.CanApplyOptimisticUpdate() {
		return ""
	}
	rev := Revision{
		ID:            s.ids.NewID(),
		PredecessorID: s.serverRevisionID,
		ClientID:      s.clientID,
		Commands:      slices.Clone(commands),
		Changes:       changes,
	}
	if err := s.log.Append(rev.ID, rev); err != nil {
		s.logger.Error("save revision", "revision", rev.ID, "error", err)
		return ""
	}
	s.events.Emit(Event{Kind: EventNewLocalStateUpdate, RevisionID: rev.ID, ClientID: s.clientID})
	s.sendUpdate(Message{
		Type:           MessageRemoteRevision,
		NextRevisionID: rev.ID,
		ClientID:       s.clientID,
		Commands:       rev.Commands,
	})
	return rev.ID
}

// Undo requests the cancellation of revisionID. The revision is cancelled
// when the relay echoes the request.
func (s *Session) Undo(revisionID string) {
	s.waitingUndoRedoAck = true
	s.sendUpdate(Message{
		Type:             MessageRevisionUndone,
		NextRevisionID:   s.ids.NewID(),
		ClientID:         s.clientID,
		UndoneRevisionID: revisionID,
	})
}

// Redo requests the restoration of revisionID.
func (s *Session) Redo(revisionID string) {
	s.waitingUndoRedoAck = true
	s.sendUpdate(Message{
		Type:             MessageRevisionRedone,
		NextRevisionID:   s.ids.NewID(),
		ClientID:         s.clientID,
		RedoneRevisionID: revisionID,
	})
}

// Join registers the local client and starts receiving messages. A nil
// client joins anonymously.
func (s *Session) Join(c *Client) {
	if c == nil {
		c = &Client{ID: LocalClientID, Name: LocalClientID}
	}
	own := *c
	s.clients[own.ID] = &own
	s.clientID = own.ID
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = s.transport.OnMessage(own.ID, s.Receive)
	s.send(Message{Type: MessageClientJoined, ClientID: own.ID, Client: &own})
}

// Leave announces the departure of the local client and stops receiving.
func (s *Session) Leave() {
	delete(s.clients, s.clientID)
	s.send(Message{Type: MessageClientLeft, ClientID: s.clientID})
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.transport.Leave(s.clientID)
}

// Move announces the position of the local client.
func (s *Session) Move(pos ClientPosition) {
	c, ok := s.clients[s.clientID]
	if !ok {
		return
	}
	if c.Position != nil && *c.Position == pos {
		return
	}
	c.Position = &pos
	moved := *c
	s.send(Message{Type: MessageClientMoved, ClientID: c.ID, Client: &moved})
}

// Snapshot asks the relay to compact the log around data, a full export of
// the document. Nothing is sent while local messages are pending.
func (s *Session) Snapshot(data map[string]any) bool {
	if len(s.pending) > 0 {
		return false
	}
	id := s.ids.NewID()
	payload := maps.Clone(data)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["revisionId"] = id
	s.send(Message{
		Type:             MessageSnapshot,
		ServerRevisionID: s.serverRevisionID,
		NextRevisionID:   id,
		ClientID:         s.clientID,
		Data:             payload,
	})
	return true
}

// LoadInitialMessages replays a server log received at startup.
func (s *Session) LoadInitialMessages(msgs []Message) {
	s.replayingInitial = true
	defer func() { s.replayingInitial = false }()
	for _, msg := range msgs {
		s.handle(msg)
	}
}

// Receive queues msg for ProcessIncoming. It is safe for concurrent use.
func (s *Session) Receive(msg Message) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, msg)
	wake := s.wake
	s.inboxMu.Unlock()
	if wake != nil {
		wake()
	}
}

// OnIncoming registers fn, called after a message is queued.
func (s *Session) OnIncoming(fn func()) {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	s.wake = fn
}

// ProcessIncoming handles every queued message, including the ones queued
// while processing. It returns the number of messages handled.
func (s *Session) ProcessIncoming() int {
	n := 0
	for {
		s.inboxMu.Lock()
		batch := s.inbox
		s.inbox = nil
		s.inboxMu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, msg := range batch {
			s.handle(msg)
		}
		n += len(batch)
	}
}

// HasIncoming reports whether messages wait for ProcessIncoming.
func (s *Session) HasIncoming() bool {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	return len(s.inbox) > 0
}

// Client returns the local client.
func (s *Session) Client() (Client, error) {
	c, ok := s.clients[s.clientID]
	if !ok {
		return Client{}, ErrNotJoined
	}
	return *c, nil
}

// ClientID returns the id of the local client.
func (s *Session) ClientID() string {
	return s.clientID
}

// Clients returns the connected clients ordered by id.
func (s *Session) Clients() []Client {
	out := make([]Client, 0, len(s.clients))
	for _, id := range slices.Sorted(maps.Keys(s.clients)) {
		out = append(out, *s.clients[id])
	}
	return out
}

// RevisionID returns the last revision acknowledged by the relay.
func (s *Session) RevisionID() string {
	return s.serverRevisionID
}

// IsFullySynchronized reports whether every local message was acknowledged.
func (s *Session) IsFullySynchronized() bool {
	return len(s.pending) == 0
}

// CanApplyOptimisticUpdate reports whether local revisions may be applied,
// which is not the case while an undo or redo waits for its echo.
func (s *Session) CanApplyOptimisticUpdate() bool {
	return !s.waitingUndoRedoAck
}

// Log returns the revision log.
func (s *Session) Log() *RevisionLog {
	return s.log
}

// Close stops receiving messages.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Session) handle(msg Message) {
	// Snapshot requests are answered by the relay with SNAPSHOT_CREATED.
	if msg.Type == MessageSnapshot || s.alreadyProcessed(msg) {
		return
	}
	if msg.IsOrdered() && msg.ServerRevisionID != s.serverRevisionID {
		s.logger.Warn("unexpected revision",
			"type", msg.Type, "expected", s.serverRevisionID, "got", msg.ServerRevisionID)
		m := msg
		s.events.Emit(Event{Kind: EventUnexpectedRevision, RevisionID: msg.NextRevisionID, ClientID: msg.ClientID, Message: &m})
		return
	}

	switch msg.Type {
	case MessageClientJoined:
		s.onClientJoined(msg)
	case MessageClientMoved:
		if msg.Client != nil {
			c := *msg.Client
			s.clients[c.ID] = &c
		}
	case MessageClientLeft:
		delete(s.clients, msg.ClientID)
	case MessageRemoteRevision:
		s.onRemoteRevision(msg)
	case MessageRevisionUndone:
		s.onHistoryChange(msg, msg.UndoneRevisionID, true)
	case MessageRevisionRedone:
		s.onHistoryChange(msg, msg.RedoneRevisionID, false)
	case MessageSnapshotCreated:
		s.onSnapshotCreated(msg)
	}
	s.acknowledge(msg)
	m := msg
	s.events.Emit(Event{Kind: EventCollaborative, ClientID: msg.ClientID, Message: &m})
}

func (s *Session) alreadyProcessed(msg Message) bool {
	switch {
	case msg.Type == MessageClientMoved:
		return msg.Client != nil && msg.Client.ID == s.clientID
	case msg.IsOrdered():
		return s.processed[msg.NextRevisionID]
	}
	return false
}

func (s *Session) onClientJoined(msg Message) {
	if msg.Client == nil {
		return
	}
	c := *msg.Client
	s.clients[c.ID] = &c
	if c.ID == s.clientID || s.replayingInitial {
		return
	}
	// Tell the newcomer where the local client is.
	if own, ok := s.clients[s.clientID]; ok && own.Position != nil {
		moved := *own
		s.send(Message{Type: MessageClientMoved, ClientID: own.ID, Client: &moved})
	}
}

func (s *Session) onRemoteRevision(msg Message) {
	if msg.ClientID == s.clientID {
		return
	}
	rev := Revision{
		ID:            msg.NextRevisionID,
		PredecessorID: msg.ServerRevisionID,
		ClientID:      msg.ClientID,
		Commands:      msg.Commands,
	}
	if err := s.log.Insert(rev.ID, rev, msg.ServerRevisionID); err != nil {
		s.logger.Error("insert remote revision", "revision", rev.ID, "error", err)
		return
	}
	applied, _ := s.log.Get(rev.ID)
	s.events.Emit(Event{
		Kind:       EventRemoteRevisionReceived,
		RevisionID: rev.ID,
		ClientID:   rev.ClientID,
		Commands:   slices.Clone(rev.Commands),
		Changes:    applied.Changes,
	})
}

// onHistoryChange applies a remote undo or redo of target.
//
// Undoing an id the log does not hold would be a contract violation, but a
// snapshot legitimately folds old ids into its base revision, so a missing
// target is logged instead of panicking. Only the marker revision of the
// message is inserted so that later revisions find their predecessor.
func (s *Session) onHistoryChange(msg Message, target string, undo bool) {
	var err error
	if undo {
		err = s.log.Undo(target, msg.NextRevisionID, msg.ServerRevisionID)
	} else {
		err = s.log.Redo(target, msg.NextRevisionID, msg.ServerRevisionID)
	}
	if err != nil {
		s.logger.Warn("history change ignored", "type", msg.Type, "revision", target, "error", err)
		if !s.log.Contains(msg.NextRevisionID) {
			if err := s.log.Insert(msg.NextRevisionID, Revision{ID: msg.NextRevisionID}, msg.ServerRevisionID); err != nil {
				s.logger.Error("insert marker", "revision", msg.NextRevisionID, "error", err)
			}
		}
		return
	}
	kind := EventRevisionRedone
	if undo {
		kind = EventRevisionUndone
	}
	s.events.Emit(Event{Kind: kind, RevisionID: target, ClientID: msg.ClientID})
}

func (s *Session) onSnapshotCreated(msg Message) {
	id := msg.NextRevisionID
	err := s.log.Insert(id, Revision{ID: id, PredecessorID: msg.ServerRevisionID}, msg.ServerRevisionID)
	if err == nil {
		err = s.log.Drop(id)
	}
	if err != nil {
		s.logger.Error("compact revision log", "revision", id, "error", err)
		return
	}
	s.events.Emit(Event{Kind: EventSnapshotCreated, RevisionID: id, ClientID: msg.ClientID})
}

func (s *Session) acknowledge(msg Message) {
	if !msg.IsOrdered() {
		return
	}
	s.pending = slices.DeleteFunc(s.pending, func(p Message) bool {
		return p.NextRevisionID == msg.NextRevisionID
	})
	s.waitingUndoRedoAck = slices.ContainsFunc(s.pending, func(p Message) bool {
		return p.Type == MessageRevisionUndone || p.Type == MessageRevisionRedone
	})
	s.serverRevisionID = msg.NextRevisionID
	s.processed[msg.NextRevisionID] = true
	s.sendPending()
}

func (s *Session) sendUpdate(msg Message) {
	s.pending = append(s.pending, msg)
	if s.waitingAck {
		return
	}
	s.sendPending()
}

// sendPending sends the first pending message on top of the current server
// revision. A local revision transformed into nothing is discarded together
// with every later pending message.
func (s *Session) sendPending() {
	if len(s.pending) == 0 {
		s.waitingAck = false
		return
	}
	msg := s.pending[0]
	if msg.Type == MessageRemoteRevision {
		rev, err := s.log.Get(msg.NextRevisionID)
		if err != nil {
			s.logger.Error("pending revision", "revision", msg.NextRevisionID, "error", err)
			return
		}
		if len(rev.Commands) == 0 {
			s.dropPending(msg.NextRevisionID)
			return
		}
		msg.Commands = rev.Commands
	}
	s.waitingAck = true
	msg.ServerRevisionID = s.serverRevisionID
	s.send(msg)
}

func (s *Session) dropPending(from string) {
	var ids []string
	for _, p := range s.pending {
		if p.Type == MessageRemoteRevision {
			ids = append(ids, p.NextRevisionID)
		}
	}
	if err := s.log.Discard(from); err != nil {
		s.logger.Error("discard pending revisions", "revision", from, "error", err)
	}
	s.pending = nil
	s.waitingAck = false
	s.waitingUndoRedoAck = false
	s.events.Emit(Event{Kind: EventPendingRevisionsDropped, RevisionIDs: ids, ClientID: s.clientID})
}

func (s *Session) send(msg Message) {
	if s.replayingInitial {
		s.logger.Error("send", "type", msg.Type, "error", ErrReplaying)
		return
	}
	msg.Version = MessageVersion
	if err := s.transport.Send(msg); err != nil {
		s.logger.Error("send", "type", msg.Type, "error", err)
	}
}

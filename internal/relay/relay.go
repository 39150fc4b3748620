// Package relay orders the messages of a collaborative document.
//
// A Relay accepts a revision message only if it was issued on top of the
// current head, persists it and broadcasts it to every subscriber, its
// sender included. Rejected messages are dropped silently: their sender
// resends them once it has processed the revision that won the race.
package relay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

// ErrRejected indicates a message issued on top of a stale revision.
var ErrRejected = errors.New("relay: message rejected")

// Logger is the logging interface used by the relay.
type Logger = session.Logger

// Document is the ordering authority of one collaborative document. Relay
// implements it in process; other implementations share a document between
// server instances.
type Document interface {
	// Accept orders msg or returns an error wrapping ErrRejected.
	Accept(ctx context.Context, msg session.Message) error

	// Attach subscribes fn to the messages broadcast from now on and
	// returns the backlog a new replica starts from.
	Attach(ctx context.Context, clientID string, fn func(session.Message)) (*Backlog, func(), error)

	// Leave removes every subscription of clientID.
	Leave(clientID string)

	// Messages returns the log since the last snapshot.
	Messages(ctx context.Context) ([]session.Message, error)

	// Snapshot returns the last snapshot, or store.ErrNotFound.
	Snapshot(ctx context.Context) (*tracking.Snapshot, error)
}

// Backlog is the state of a document when a subscriber attaches: its last
// snapshot, nil for a new document, and the messages accepted since.
// Messages accepted just before the subscription may also be delivered to
// the subscriber; replicas drop the duplicates.
type Backlog struct {
	Snapshot *tracking.Snapshot `json:"snapshot,omitempty"`
	Messages []session.Message  `json:"messages"`
}

// Data returns the document export a replica is created from, or nil.
func (b *Backlog) Data() map[string]any {
	if b == nil || b.Snapshot == nil {
		return nil
	}
	return b.Snapshot.Data
}

// Stats counts the activity of a relay.
type Stats struct {
	Accepted    uint64
	Rejected    uint64
	Broadcasts  uint64
	Subscribers int
}

type subscriber struct {
	clientID string
	fn       func(session.Message)
}

// Relay serializes the messages of one document.
type Relay struct {
	docID  string
	store  store.Store
	logger Logger

	mu         sync.Mutex
	head       string
	subs       map[uint64]subscriber
	nextID     uint64
	outbox     []session.Message
	delivering bool

	accepted   atomic.Uint64
	rejected   atomic.Uint64
	broadcasts atomic.Uint64
}

// Open creates the relay of docID, resuming from the head persisted in st.
func Open(ctx context.Context, docID string, st store.Store, logger Logger) (*Relay, error) {
	if st == nil {
		st = store.NewMemory()
	}
	if logger == nil {
		logger = nopLogger{}
	}
	head, err := store.Head(ctx, st, docID)
	if err != nil {
		return nil, fmt.Errorf("open relay %s: %w", docID, err)
	}
	return &Relay{
		docID:  docID,
		store:  st,
		logger: logger,
		head:   head,
		subs:   make(map[uint64]subscriber),
	}, nil
}

// Accept orders msg. Revision and snapshot messages must be issued on top of
// the head, otherwise ErrRejected is returned. Presence messages are
// broadcast as is.
func (r *Relay) Accept(ctx context.Context, msg session.Message) error {
	r.mu.Lock()
	out, err := r.accept(ctx, msg)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.outbox = append(r.outbox, out)
	r.mu.Unlock()
	r.deliver()
	return nil
}

func (r *Relay) accept(ctx context.Context, msg session.Message) (session.Message, error) {
	if !msg.IsOrdered() {
		return msg, nil
	}
	if msg.ServerRevisionID != r.head {
		r.rejected.Add(1)
		r.logger.Debug("message rejected",
			"doc", r.docID, "type", msg.Type, "head", r.head, "got", msg.ServerRevisionID)
		return msg, fmt.Errorf("%w: %s on %s, head is %s", ErrRejected, msg.Type, msg.ServerRevisionID, r.head)
	}

	if msg.Type == session.MessageSnapshot {
		snap := &tracking.Snapshot{
			RevisionID: msg.NextRevisionID,
			Timestamp:  time.Now(),
			Data:       msg.Data,
		}
		if err := r.store.SaveSnapshot(ctx, r.docID, snap); err != nil {
			return msg, fmt.Errorf("save snapshot: %w", err)
		}
		msg = session.Message{
			Type:             session.MessageSnapshotCreated,
			Version:          session.MessageVersion,
			ServerRevisionID: msg.ServerRevisionID,
			NextRevisionID:   msg.NextRevisionID,
			ClientID:         msg.ClientID,
		}
	} else if err := r.store.Append(ctx, r.docID, msg); err != nil {
		return msg, fmt.Errorf("persist %s: %w", msg.Type, err)
	}
	r.head = msg.NextRevisionID
	r.accepted.Add(1)
	return msg, nil
}

// deliver broadcasts the outbox in order. Only one goroutine delivers at a
// time; messages accepted meanwhile, including from subscribers, are picked
// up by the delivering one.
func (r *Relay) deliver() {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.outbox) > 0 {
		msg := r.outbox[0]
		r.outbox = r.outbox[1:]
		subs := r.subscribers()
		r.mu.Unlock()

		for _, s := range subs {
			s.fn(msg)
		}
		r.broadcasts.Add(1)

		r.mu.Lock()
	}
	r.delivering = false
	r.mu.Unlock()
}

func (r *Relay) subscribers() []subscriber {
	ids := slices.Sorted(maps.Keys(r.subs))
	out := make([]subscriber, len(ids))
	for i, id := range ids {
		out[i] = r.subs[id]
	}
	return out
}

// Subscribe registers fn for every message broadcast from now on. The
// returned function unsubscribes.
func (r *Relay) Subscribe(clientID string, fn func(session.Message)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribe(clientID, fn)
}

func (r *Relay) subscribe(clientID string, fn func(session.Message)) func() {
	r.nextID++
	id := r.nextID
	r.subs[id] = subscriber{clientID: clientID, fn: fn}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Attach implements Document. The backlog is read and fn subscribed while
// no message can be accepted.
func (r *Relay) Attach(ctx context.Context, clientID string, fn func(session.Message)) (*Backlog, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &Backlog{}
	snap, err := r.store.Snapshot(ctx, r.docID)
	switch {
	case err == nil:
		b.Snapshot = snap
	case !errors.Is(err, store.ErrNotFound):
		return nil, nil, fmt.Errorf("attach %s: %w", r.docID, err)
	}
	if b.Messages, err = r.store.Messages(ctx, r.docID); err != nil {
		return nil, nil, fmt.Errorf("attach %s: %w", r.docID, err)
	}
	return b, r.subscribe(clientID, fn), nil
}

// Leave removes every subscription of clientID.
func (r *Relay) Leave(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.DeleteFunc(r.subs, func(_ uint64, s subscriber) bool {
		return s.clientID == clientID
	})
}

// Head returns the id of the last accepted revision.
func (r *Relay) Head() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// DocID returns the document served by the relay.
func (r *Relay) DocID() string {
	return r.docID
}

// Messages returns the log since the last snapshot.
func (r *Relay) Messages(ctx context.Context) ([]session.Message, error) {
	return r.store.Messages(ctx, r.docID)
}

// Snapshot returns the last snapshot, or store.ErrNotFound.
func (r *Relay) Snapshot(ctx context.Context) (*tracking.Snapshot, error) {
	return r.store.Snapshot(ctx, r.docID)
}

// Stats returns the relay counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	n := len(r.subs)
	r.mu.Unlock()
	return Stats{
		Accepted:    r.accepted.Load(),
		Rejected:    r.rejected.Load(),
		Broadcasts:  r.broadcasts.Load(),
		Subscribers: n,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

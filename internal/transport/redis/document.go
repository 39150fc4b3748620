// Package redis shares collaborative documents through Redis, so that
// clients and server instances connected to the same Redis see one relay
// per document.
//
// Redis is the ordering authority: a revision is accepted by a script that
// compares its serverRevisionId with the head key of the document, appends
// it to the log list and publishes it, atomically. Snapshots replace the
// log. Subscribers receive the messages through Pub/Sub; messages published
// while a subscriber is disconnected from Redis are lost to it, and the
// replica behind it reports an unexpected revision.
//
// Keys of document d, with the default prefix:
//
//	gridsync:{d}:head      last accepted revision id
//	gridsync:{d}:log       messages accepted since the snapshot (JSON)
//	gridsync:{d}:snapshot  last snapshot (JSON)
//	gridsync:doc:d         Pub/Sub channel
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

// DefaultPrefix namespaces keys and channels.
const DefaultPrefix = "gridsync"

// acceptScript orders one message.
//
// KEYS: head, log, snapshot.
// ARGV: expected head, next head, broadcast payload, channel, initial head,
// snapshot payload ("" for a revision).
var acceptScript = goredis.NewScript(`
local head = redis.call('GET', KEYS[1])
if not head then head = ARGV[5] end
if head ~= ARGV[1] then return 0 end
if ARGV[6] ~= '' then
	redis.call('SET', KEYS[3], ARGV[6])
	redis.call('DEL', KEYS[2])
else
	redis.call('RPUSH', KEYS[2], ARGV[3])
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('PUBLISH', ARGV[4], ARGV[3])
return 1
`)

// Logger is the logging interface used by documents.
type Logger = session.Logger

type subscriber struct {
	clientID string
	fn       func(session.Message)
}

// Document is a relay.Document stored in Redis.
type Document struct {
	client goredis.UniversalClient
	docID  string
	logger Logger

	headKey, logKey, snapshotKey, channel string

	pubsub *goredis.PubSub
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[uint64]subscriber
	nextID uint64
}

// Option configures a Document.
type Option func(*Document)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(d *Document) {
		d.setKeys(prefix)
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open subscribes to the channel of docID. Close releases the subscription;
// the client stays open.
func Open(ctx context.Context, client goredis.UniversalClient, docID string, opts ...Option) (*Document, error) {
	d := &Document{
		client: client,
		docID:  docID,
		logger: nopLogger{},
		subs:   make(map[uint64]subscriber),
	}
	d.setKeys(DefaultPrefix)
	for _, opt := range opts {
		opt(d)
	}

	d.pubsub = client.Subscribe(ctx, d.channel)
	if _, err := d.pubsub.Receive(ctx); err != nil {
		_ = d.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", d.channel, err)
	}
	d.wg.Add(1)
	go d.receiveLoop(d.pubsub.Channel())
	return d, nil
}

func (d *Document) setKeys(prefix string) {
	// The hash tag keeps the keys of a document on one cluster slot, which
	// the accept script requires.
	base := fmt.Sprintf("%s:{%s}", prefix, d.docID)
	d.headKey = base + ":head"
	d.logKey = base + ":log"
	d.snapshotKey = base + ":snapshot"
	d.channel = fmt.Sprintf("%s:doc:%s", prefix, d.docID)
}

// DocID returns the document id.
func (d *Document) DocID() string {
	return d.docID
}

// receiveLoop delivers the published messages in order.
func (d *Document) receiveLoop(ch <-chan *goredis.Message) {
	defer d.wg.Done()
	for m := range ch {
		msg, err := session.DecodeMessage([]byte(m.Payload))
		if err != nil {
			d.logger.Warn("invalid message", "doc", d.docID, "error", err)
			continue
		}
		d.mu.Lock()
		ids := slices.Sorted(maps.Keys(d.subs))
		subs := make([]subscriber, len(ids))
		for i, id := range ids {
			subs[i] = d.subs[id]
		}
		d.mu.Unlock()
		for _, s := range subs {
			s.fn(msg)
		}
	}
}

// Accept implements relay.Document.
func (d *Document) Accept(ctx context.Context, msg session.Message) error {
	msg.Version = session.MessageVersion
	if !msg.IsOrdered() {
		payload, err := msg.Encode()
		if err != nil {
			return err
		}
		return d.client.Publish(ctx, d.channel, payload).Err()
	}

	var snapshot []byte
	if msg.Type == session.MessageSnapshot {
		var err error
		snapshot, err = json.Marshal(&tracking.Snapshot{
			RevisionID: msg.NextRevisionID,
			Timestamp:  time.Now(),
			Data:       msg.Data,
		})
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		msg = session.Message{
			Type:             session.MessageSnapshotCreated,
			Version:          session.MessageVersion,
			ServerRevisionID: msg.ServerRevisionID,
			NextRevisionID:   msg.NextRevisionID,
			ClientID:         msg.ClientID,
		}
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	ok, err := acceptScript.Run(ctx, d.client,
		[]string{d.headKey, d.logKey, d.snapshotKey},
		msg.ServerRevisionID, msg.NextRevisionID, payload, d.channel,
		session.DefaultRevisionID, snapshot,
	).Int()
	if err != nil {
		return fmt.Errorf("accept %s on %s: %w", msg.Type, d.docID, err)
	}
	if ok == 0 {
		d.logger.Debug("message rejected", "doc", d.docID, "type", msg.Type, "got", msg.ServerRevisionID)
		return fmt.Errorf("%w: %s on %s", relay.ErrRejected, msg.Type, msg.ServerRevisionID)
	}
	return nil
}

// Attach implements relay.Document. The subscription is registered before
// the backlog is read: a message accepted meanwhile is both in the backlog
// and delivered.
func (d *Document) Attach(ctx context.Context, clientID string, fn func(session.Message)) (*relay.Backlog, func(), error) {
	unsubscribe := d.subscribe(clientID, fn)
	b, err := d.backlog(ctx)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}
	return b, unsubscribe, nil
}

func (d *Document) subscribe(clientID string, fn func(session.Message)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.subs[id] = subscriber{clientID: clientID, fn: fn}
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// backlog reads the snapshot and the log in one transaction.
func (d *Document) backlog(ctx context.Context) (*relay.Backlog, error) {
	var snapCmd *goredis.StringCmd
	var logCmd *goredis.StringSliceCmd
	_, err := d.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		snapCmd = pipe.Get(ctx, d.snapshotKey)
		logCmd = pipe.LRange(ctx, d.logKey, 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read %s: %w", d.docID, err)
	}

	b := &relay.Backlog{}
	if b.Snapshot, err = decodeSnapshot(snapCmd); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if b.Messages, err = decodeLog(logCmd); err != nil {
		return nil, err
	}
	return b, nil
}

// Leave implements relay.Document.
func (d *Document) Leave(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.DeleteFunc(d.subs, func(_ uint64, s subscriber) bool {
		return s.clientID == clientID
	})
}

// Messages implements relay.Document.
func (d *Document) Messages(ctx context.Context) ([]session.Message, error) {
	return decodeLog(d.client.LRange(ctx, d.logKey, 0, -1))
}

// Snapshot implements relay.Document.
func (d *Document) Snapshot(ctx context.Context) (*tracking.Snapshot, error) {
	return decodeSnapshot(d.client.Get(ctx, d.snapshotKey))
}

// Head returns the id of the last accepted revision.
func (d *Document) Head(ctx context.Context) (string, error) {
	head, err := d.client.Get(ctx, d.headKey).Result()
	if errors.Is(err, goredis.Nil) {
		return session.DefaultRevisionID, nil
	}
	return head, err
}

// Close stops receiving messages.
func (d *Document) Close() error {
	err := d.pubsub.Close()
	d.wg.Wait()
	return err
}

func decodeSnapshot(cmd *goredis.StringCmd) (*tracking.Snapshot, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap tracking.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func decodeLog(cmd *goredis.StringSliceCmd) ([]session.Message, error) {
	items, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	msgs := make([]session.Message, 0, len(items))
	for _, item := range items {
		msg, err := session.DecodeMessage([]byte(item))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

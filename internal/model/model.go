package model

import (
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/event"
	"github.com/dshills/gridsync/internal/session"
)

// Logger is the logging interface used by the model.
type Logger = session.Logger

// Config configures a Model.
type Config struct {
	// Plugins are instantiated in order. Core plugins should come first so
	// that UI plugins can resolve their getters at construction.
	Plugins []PluginSpec

	// Transport connects the session to a relay. Required.
	Transport session.Transport

	// Client is the local client. Nil joins anonymously.
	Client *session.Client

	// Data is a document export, as returned by Export. Its "revisionId"
	// entry is the revision the export was taken at.
	Data map[string]any

	// Messages is the relay log since Data was exported.
	Messages []session.Message

	// ReadOnly restricts dispatch to the read-only command kinds.
	ReadOnly bool

	// MaxHistorySteps bounds the local undo stack. Defaults to
	// MaxHistorySteps.
	MaxHistorySteps int

	// IDs generates revision ids. Defaults to random UUIDs.
	IDs session.IDGenerator

	// Logger defaults to a no-op logger.
	Logger Logger

	// Dispatcher configures the dispatcher. ReadOnly above takes precedence.
	// Defaults to recovering handler panics and collecting metrics.
	Dispatcher *dispatcher.Config
}

// Model is a replica of a collaborative document.
//
// All methods are safe for concurrent use. Messages received from the
// transport are applied at the end of the public call during which they
// arrive, or immediately when the model is idle.
type Model struct {
	mu sync.Mutex

	state      *tracking.State
	recorder   *tracking.Recorder
	dispatcher *dispatcher.Dispatcher
	session    *session.Session
	history    *LocalHistory
	plugins    []plugin
	getters    getterRegistry
	logger     Logger
}

// New creates a model, replays cfg.Messages, joins the session and
// dispatches START.
func New(cfg Config) (*Model, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("model: transport is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	dcfg := dispatcher.Config{CollectMetrics: true, RecoverPanics: true}
	if cfg.Dispatcher != nil {
		dcfg = *cfg.Dispatcher
	}
	dcfg.ReadOnly = cfg.ReadOnly

	data := maps.Clone(cfg.Data)
	revisionID := session.DefaultRevisionID
	if id, ok := data["revisionId"].(string); ok && id != "" {
		revisionID = id
	}
	delete(data, "revisionId")

	m := &Model{
		state:   tracking.NewState(),
		getters: make(getterRegistry),
		logger:  cfg.Logger,
	}
	m.state.Import(data)
	m.recorder = tracking.NewRecorder(m.state)
	m.dispatcher = dispatcher.New(m.recorder, dcfg)
	trace := dispatcher.NewLoggingHook(cfg.Logger)
	m.dispatcher.RegisterPreHook(trace)
	m.dispatcher.RegisterPostHook(trace)

	log := session.NewRevisionLog(revisionID, m.recorder, m.dispatcher.DispatchCore)
	m.session = session.New(log, revisionID, session.Config{
		Transport: cfg.Transport,
		IDs:       cfg.IDs,
		Logger:    cfg.Logger,
	})
	m.history = NewLocalHistory(m.session, cfg.MaxHistorySteps)

	if err := m.setupPlugins(cfg.Plugins); err != nil {
		return nil, err
	}
	m.dispatcher.Register(handler.LayerHistory, m.history)
	m.dispatcher.OnCommit(m.onCommit)
	m.session.Subscribe(m.onSessionEvent)

	m.mu.Lock()
	m.session.LoadInitialMessages(cfg.Messages)
	m.session.OnIncoming(m.wake)
	m.session.Join(cfg.Client)
	m.dispatcher.Dispatch(command.Start{})
	m.unlock()
	return m, nil
}

func (m *Model) setupPlugins(specs []PluginSpec) error {
	for _, spec := range specs {
		if spec.New == nil {
			return fmt.Errorf("%w: %s has no constructor", ErrInvalidPlugin, spec.Name)
		}
		env := Env{
			State:    m.state,
			Getters:  m.getters,
			Logger:   m.logger,
			Presence: m.session.Move,
			Dispatch: m.dispatcher.Dispatch,
		}
		if spec.Layer == handler.LayerCore {
			env.Dispatch = m.dispatcher.DispatchFromCore
		}
		h, err := spec.New(env)
		if err != nil {
			return fmt.Errorf("create plugin %s: %w", spec.Name, err)
		}
		if err := m.getters.register(spec, h); err != nil {
			return err
		}
		m.dispatcher.Register(spec.Layer, h)
		m.plugins = append(m.plugins, plugin{name: spec.Name, layer: spec.Layer, handler: h})
	}
	return nil
}

// onCommit saves the core commands of a local dispatch as a revision.
func (m *Model) onCommit(_ command.Command, rec tracking.Recording) {
	if id := m.session.Save(rec.Commands, rec.Changes); id != "" {
		m.history.push(id)
	}
}

func (m *Model) onSessionEvent(e session.Event) {
	switch e.Kind {
	case session.EventRemoteRevisionReceived:
		m.dispatcher.NotifyRemote(e.Commands, e.Changes)
	case session.EventRevisionUndone, session.EventRevisionRedone:
		m.dispatcher.NotifyRemote(nil, nil)
	case session.EventPendingRevisionsDropped:
		m.history.forget(e.RevisionIDs...)
		m.dispatcher.NotifyRemote(nil, nil)
	case session.EventSnapshotCreated:
		m.history.prune()
		m.dispatcher.NotifyRemote(nil, nil)
	case session.EventUnexpectedRevision:
		m.logger.Warn("unexpected revision", "revision", e.RevisionID, "client", e.ClientID)
	}
}

// wake is called by the session when a message is queued.
func (m *Model) wake() {
	if m.mu.TryLock() {
		m.unlock()
	}
}

// unlock applies the queued messages and releases the model. Messages
// queued by another goroutine between the last drain and the release are
// picked up by whichever goroutine acquires the model next.
func (m *Model) unlock() {
	for {
		if m.dispatcher.Status() == dispatcher.StatusReady {
			m.session.ProcessIncoming()
		}
		m.mu.Unlock()
		if !m.session.HasIncoming() || !m.mu.TryLock() {
			return
		}
	}
}

// Dispatch dispatches cmd.
func (m *Model) Dispatch(cmd command.Command) handler.Result {
	m.mu.Lock()
	defer m.unlock()
	return m.dispatcher.Dispatch(cmd)
}

// CanUndo reports whether REQUEST_UNDO would be accepted.
func (m *Model) CanUndo() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.session.CanApplyOptimisticUpdate() && m.history.CanUndo()
}

// CanRedo reports whether REQUEST_REDO would be accepted.
func (m *Model) CanRedo() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.session.CanApplyOptimisticUpdate() && m.history.CanRedo()
}

// Getter returns the getter name as a bound method value. Use Lookup for a
// typed result.
func (m *Model) Getter(name string) (any, error) {
	m.mu.Lock()
	defer m.unlock()
	return m.getters.Getter(name)
}

// Export returns a copy of the document tagged with its revision id.
func (m *Model) Export() map[string]any {
	m.mu.Lock()
	defer m.unlock()
	return m.export()
}

func (m *Model) export() map[string]any {
	data := m.state.Export()
	data["revisionId"] = m.session.RevisionID()
	return data
}

// RequestSnapshot asks the relay to compact its log around the current
// document. It returns false while local revisions are unacknowledged.
func (m *Model) RequestSnapshot() bool {
	m.mu.Lock()
	defer m.unlock()
	if !m.session.IsFullySynchronized() {
		return false
	}
	data := m.state.Export()
	return m.session.Snapshot(data)
}

// SetReadOnly switches read-only mode.
func (m *Model) SetReadOnly(readonly bool) {
	m.mu.Lock()
	defer m.unlock()
	m.dispatcher.SetReadOnly(readonly)
}

// ReadOnly reports whether the model is read-only.
func (m *Model) ReadOnly() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.dispatcher.ReadOnly()
}

// OnUpdate registers fn for every document update, local or remote. fn runs
// with the model locked and must not call back into it.
func (m *Model) OnUpdate(fn func(dispatcher.Update), opts ...event.Option[dispatcher.Update]) event.Subscription {
	return m.dispatcher.OnUpdate(fn, opts...)
}

// OnUnexpectedRevision registers fn for revisions issued on top of an
// unknown revision. The document must then be reloaded from the relay.
func (m *Model) OnUnexpectedRevision(fn func(session.Event)) event.Subscription {
	return m.session.Subscribe(fn, session.ForKinds(session.EventUnexpectedRevision))
}

// OnSessionEvent registers fn for session events of the given kinds, or all
// of them.
func (m *Model) OnSessionEvent(fn func(session.Event), kinds ...session.EventKind) event.Subscription {
	if len(kinds) == 0 {
		return m.session.Subscribe(fn)
	}
	return m.session.Subscribe(fn, session.ForKinds(kinds...))
}

// RevisionID returns the last revision acknowledged by the relay.
func (m *Model) RevisionID() string {
	m.mu.Lock()
	defer m.unlock()
	return m.session.RevisionID()
}

// IsFullySynchronized reports whether every local revision was acknowledged.
func (m *Model) IsFullySynchronized() bool {
	m.mu.Lock()
	defer m.unlock()
	return m.session.IsFullySynchronized()
}

// Clients returns the connected clients.
func (m *Model) Clients() []session.Client {
	m.mu.Lock()
	defer m.unlock()
	return m.session.Clients()
}

// Sync applies the messages received so far.
func (m *Model) Sync() {
	m.mu.Lock()
	m.unlock()
}

// Metrics returns the dispatch metrics, nil when disabled in
// Config.Dispatcher.
func (m *Model) Metrics() *dispatcher.Metrics {
	return m.dispatcher.Metrics()
}

// Leave announces that the local client leaves the document.
func (m *Model) Leave() {
	m.mu.Lock()
	defer m.unlock()
	m.session.Leave()
}

// Close stops receiving messages and closes the plugins implementing
// io.Closer.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.OnIncoming(nil)
	m.session.Close()
	for _, p := range m.plugins {
		if c, ok := p.handler.(io.Closer); ok {
			if err := c.Close(); err != nil {
				m.logger.Warn("close plugin", "plugin", p.name, "error", err)
			}
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

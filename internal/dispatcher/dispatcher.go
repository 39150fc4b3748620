package dispatcher

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/event"
)

// Update is published once per successful outermost dispatch and once per
// batch of remote commands.
type Update struct {
	// Command is the dispatched command, nil for remote updates.
	Command command.Command

	// Remote holds the replayed remote commands.
	Remote []command.Command

	// Changes are the state writes of the dispatch.
	Changes tracking.Changes
}

// IsRemote reports whether the update comes from another client.
func (u Update) IsRemote() bool {
	return u.Command == nil
}

// Dispatcher runs commands through the registered handlers and keeps every
// outermost dispatch atomic.
//
// Dispatch is not safe for concurrent use; the owner serializes access.
type Dispatcher struct {
	mu sync.RWMutex

	registry *Registry
	recorder *tracking.Recorder

	config  Config
	metrics *Metrics

	status    Status
	replaying bool

	preHooks  []PreDispatchHook
	postHooks []PostDispatchHook
	commits   []CommitFunc

	updates event.Emitter[Update]
}

// New creates a dispatcher recording through rec.
func New(rec *tracking.Recorder, config Config) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		recorder: rec,
		config:   config,
	}
	if config.CollectMetrics {
		d.metrics = NewMetrics()
	}
	return d
}

// Register adds a handler to a layer.
func (d *Dispatcher) Register(layer handler.Layer, h handler.Handler) {
	d.registry.Register(layer, h)
}

// Dispatch runs cmd.
//
// From Ready it is an outermost dispatch: every handler may refuse cmd, and
// an accepted cmd is handled, finalized, committed and published as one
// Update. From Running it is nested: a core command is validated again and
// recorded. Dispatching while finalizing or replaying panics with a
// *ContractError.
func (d *Dispatcher) Dispatch(cmd command.Command) handler.Result {
	switch d.status {
	case StatusFinalizing, StatusRunningCore:
		panic(&ContractError{Op: "dispatch", Status: d.status, Kind: cmd.Kind()})
	case StatusRunning:
		return d.dispatchNested(cmd)
	}
	return d.dispatchRoot(cmd)
}

// DispatchCore replays cmd to the core handlers only. Nothing is recorded
// as a new command; writes land in the caller's recorder frame, if any.
func (d *Dispatcher) DispatchCore(cmd command.Command) {
	if d.status == StatusFinalizing {
		panic(&ContractError{Op: "replay", Status: d.status, Kind: cmd.Kind()})
	}
	prev, wasReplaying := d.status, d.replaying
	d.transition(EventReplay)
	d.replaying = true
	defer func() {
		d.status, d.replaying = prev, wasReplaying
	}()
	d.handle(d.registry.Core(), cmd)
}

// DispatchFromCore runs a sub-command issued by a core handler. The
// sub-command is not recorded: replaying its parent issues it again. During
// a replay only the core handlers see it.
func (d *Dispatcher) DispatchFromCore(cmd command.Command) handler.Result {
	if d.status == StatusFinalizing {
		panic(&ContractError{Op: "dispatch from core", Status: d.status, Kind: cmd.Kind()})
	}
	prev := d.status
	d.transition(EventReplay)
	defer func() { d.status = prev }()

	handlers := d.registry.All()
	if d.replaying {
		handlers = d.registry.Core()
	}
	d.handle(handlers, cmd)
	return handler.Success()
}

// NotifyRemote lets the UI handlers observe commands replayed from another
// client, then finalizes once and publishes one Update.
func (d *Dispatcher) NotifyRemote(cmds []command.Command, changes tracking.Changes) {
	if d.status != StatusReady {
		kind := command.Kind("")
		if len(cmds) > 0 {
			kind = cmds[0].Kind()
		}
		panic(&ContractError{Op: "notify remote", Status: d.status, Kind: kind})
	}
	d.transition(EventReplay)
	ui := d.registry.UI()
	for _, cmd := range cmds {
		d.handle(ui, cmd)
	}
	d.status = StatusReady
	d.finalize()
	d.updates.Emit(Update{Remote: slices.Clone(cmds), Changes: changes})
}

func (d *Dispatcher) dispatchRoot(cmd command.Command) handler.Result {
	start := time.Now()
	result := d.runRoot(cmd)
	d.runPostHooks(cmd, result)
	if d.metrics != nil {
		d.metrics.record(cmd.Kind(), time.Since(start), result)
	}
	return result
}

func (d *Dispatcher) runRoot(cmd command.Command) handler.Result {
	if d.ReadOnly() && !command.AllowedInReadonly(cmd) {
		return handler.Failure(handler.ReasonReadonly)
	}
	if !d.runPreHooks(cmd) {
		return handler.Failure(handler.ReasonCancelledByHook)
	}
	if reasons := d.allow(cmd); len(reasons) > 0 {
		return handler.Failure(reasons...)
	}

	rec, result := d.execute(cmd)
	if !result.IsSuccessful() {
		return result
	}

	if len(rec.Commands) > 0 {
		d.mu.RLock()
		commits := slices.Clone(d.commits)
		d.mu.RUnlock()
		for _, fn := range commits {
			fn(cmd, rec)
		}
	}
	d.updates.Emit(Update{Command: cmd, Changes: rec.Changes})
	return result
}

// execute handles and finalizes cmd inside a recorder frame. A panicking
// handler leaves no write behind: the frame is reverted and the status
// machine returns to Ready.
func (d *Dispatcher) execute(cmd command.Command) (rec tracking.Recording, result handler.Result) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		d.abort()
		if _, ok := r.(*ContractError); ok || !d.config.RecoverPanics {
			panic(r)
		}

		stack := make([]byte, 4096)
		n := runtime.Stack(stack, false)
		result = handler.Errorf("handler panic for %s: %v\n%s", cmd.Kind(), r, string(stack[:n]))
		if d.metrics != nil {
			d.metrics.recordPanic(cmd.Kind())
		}
	}()

	d.transition(EventStart)
	rec = d.recorder.Record(func() {
		if command.IsCore(cmd) {
			d.recorder.AddCommand(cmd)
		}
		d.handle(d.registry.All(), cmd)
		d.finalize()
	})
	return rec, handler.Success()
}

func (d *Dispatcher) dispatchNested(cmd command.Command) handler.Result {
	if command.IsCore(cmd) {
		if reasons := d.allow(cmd); len(reasons) > 0 {
			return handler.Failure(reasons...)
		}
		d.recorder.AddCommand(cmd)
	}
	d.handle(d.registry.All(), cmd)
	return handler.Success()
}

// allow collects the refusal reasons of every handler, in layer order.
func (d *Dispatcher) allow(cmd command.Command) []handler.Reason {
	var reasons []handler.Reason
	for _, h := range d.registry.All() {
		reasons = append(reasons, h.AllowDispatch(cmd)...)
	}
	return reasons
}

func (d *Dispatcher) handle(handlers []handler.Handler, cmd command.Command) {
	for _, h := range handlers {
		h.BeforeHandle(cmd)
	}
	for _, h := range handlers {
		h.Handle(cmd)
	}
}

func (d *Dispatcher) finalize() {
	d.transition(EventFinalize)
	for _, h := range d.registry.All() {
		h.Finalize()
	}
	d.transition(EventFinish)
}

func (d *Dispatcher) transition(ev Event) {
	next, err := d.status.Next(ev)
	if err != nil {
		panic(err)
	}
	d.status = next
}

func (d *Dispatcher) abort() {
	d.replaying = false
	if next, err := d.status.Next(EventAbort); err == nil {
		d.status = next
	}
}

// Status returns the current dispatch status.
func (d *Dispatcher) Status() Status {
	return d.status
}

// Replaying reports whether core replay is in progress.
func (d *Dispatcher) Replaying() bool {
	return d.replaying
}

// SetReadOnly toggles read-only mode.
func (d *Dispatcher) SetReadOnly(readonly bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.ReadOnly = readonly
}

// ReadOnly reports whether read-only mode is on.
func (d *Dispatcher) ReadOnly() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.ReadOnly
}

// RegisterPreHook registers a pre-dispatch hook.
func (d *Dispatcher) RegisterPreHook(hook PreDispatchHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preHooks = append(d.preHooks, hook)
}

// RegisterPostHook registers a post-dispatch hook.
func (d *Dispatcher) RegisterPostHook(hook PostDispatchHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postHooks = append(d.postHooks, hook)
}

// OnCommit registers a function receiving every non-empty recording.
func (d *Dispatcher) OnCommit(fn CommitFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commits = append(d.commits, fn)
}

// OnUpdate subscribes to published updates.
func (d *Dispatcher) OnUpdate(fn func(Update), opts ...event.Option[Update]) event.Subscription {
	return d.updates.Subscribe(fn, opts...)
}

func (d *Dispatcher) runPreHooks(cmd command.Command) bool {
	d.mu.RLock()
	hooks := slices.Clone(d.preHooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		if !h.PreDispatch(cmd) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) runPostHooks(cmd command.Command, result handler.Result) {
	d.mu.RLock()
	hooks := slices.Clone(d.postHooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		h.PostDispatch(cmd, result)
	}
}

// Metrics returns the dispatch metrics, or nil unless Config.CollectMetrics is set.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

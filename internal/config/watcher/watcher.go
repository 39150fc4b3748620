// Package watcher reports changes to configuration files.
//
// Files are watched through their parent directory with fsnotify, so that
// editors replacing a file by renaming a temporary one are still seen.
// Bursts of events on one file are coalesced: each file has a timer that
// restarts on every event and delivers one Event once the file has been
// quiet for the debounce window.
package watcher

import (
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a change to a watched file.
type Event struct {
	Path string // absolute
	Op   Operation
	Time time.Time // of the last event coalesced into this one
}

// Operation is the kind of change.
type Operation int

const (
	OpWrite Operation = iota
	OpCreate
	OpRemove
	OpRename
)

var opNames = [...]string{"write", "create", "remove", "rename"}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "unknown"
	}
	return opNames[op]
}

// Handler receives the changes of watched files. Handlers run on the
// watcher's goroutines; a panicking handler does not stop the others.
type Handler func(Event)

// Watcher monitors a set of files.
type Watcher struct {
	mu       sync.RWMutex
	fsw      *fsnotify.Watcher
	files    map[string]struct{}
	dirs     map[string]int // watched files per directory
	handlers []Handler
	onError  func(error)
	debounce time.Duration
	wg       sync.WaitGroup
	done     chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*pendingChange
}

type pendingChange struct {
	event Event
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period after which a change is delivered.
// Zero delivers every event as it arrives.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler receives the errors reported by fsnotify.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// New returns a stopped watcher with a 100ms debounce.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		files:    make(map[string]struct{}),
		dirs:     make(map[string]int),
		debounce: 100 * time.Millisecond,
		pending:  make(map[string]*pendingChange),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch adds path to the watched files. The file does not need to exist
// but its directory does once the watcher runs.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 && w.fsw != nil {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = struct{}{}
	return nil
}

// Unwatch removes path from the watched files.
func (w *Watcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; !ok {
		return nil
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	if w.dirs[dir]--; w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Remove(dir)
}

// OnChange registers a handler.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching. Starting a running watcher does nothing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.run(fsw, w.done)
	return nil
}

// Stop ends watching and drops the changes still waiting for their
// debounce window. It waits for the event goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	close(w.done)
	_ = w.fsw.Close()
	w.fsw = nil
	w.mu.Unlock()

	w.wg.Wait()

	w.pendingMu.Lock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()
}

// IsRunning reports whether the watcher has been started and not stopped.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsw != nil
}

// WatchedFiles returns the absolute paths of the watched files, sorted.
func (w *Watcher) WatchedFiles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.files))
}

func (w *Watcher) run(fsw *fsnotify.Watcher, done <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-done:
			return
		case e, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev, ok := w.translate(e); ok {
				w.schedule(ev)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// translate keeps the events of watched files. Attribute changes are
// dropped.
func (w *Watcher) translate(e fsnotify.Event) (Event, bool) {
	path := filepath.Clean(e.Name)
	w.mu.RLock()
	_, watched := w.files[path]
	w.mu.RUnlock()
	if !watched {
		return Event{}, false
	}

	ev := Event{Path: path, Time: time.Now()}
	switch {
	case e.Op.Has(fsnotify.Remove):
		ev.Op = OpRemove
	case e.Op.Has(fsnotify.Rename):
		ev.Op = OpRename
	case e.Op.Has(fsnotify.Create):
		ev.Op = OpCreate
	case e.Op.Has(fsnotify.Write):
		ev.Op = OpWrite
	default:
		return Event{}, false
	}
	return ev, true
}

// schedule delivers ev now, or folds it into the pending change of its
// file and restarts that file's timer.
func (w *Watcher) schedule(ev Event) {
	if w.debounce == 0 {
		w.deliver(ev)
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if p, ok := w.pending[ev.Path]; ok {
		p.event.Op = coalesce(p.event.Op, ev.Op)
		p.event.Time = ev.Time
		p.timer.Reset(w.debounce)
		return
	}
	path := ev.Path
	w.pending[path] = &pendingChange{
		event: ev,
		timer: time.AfterFunc(w.debounce, func() { w.flush(path) }),
	}
}

func (w *Watcher) flush(path string) {
	w.pendingMu.Lock()
	p, ok := w.pending[path]
	delete(w.pending, path)
	w.pendingMu.Unlock()
	if ok {
		w.deliver(p.event)
	}
}

// coalesce merges the operation of a new event into a pending one. A
// removal wins, a creation survives later writes, and a file recreated
// after being removed or renamed away reads as a write.
func coalesce(pending, next Operation) Operation {
	switch next {
	case OpWrite:
		return pending
	case OpCreate:
		if pending == OpRemove || pending == OpRename {
			return OpWrite
		}
	}
	return next
}

func (w *Watcher) deliver(ev Event) {
	w.mu.RLock()
	handlers := slices.Clone(w.handlers)
	w.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(ev)
		}()
	}
}

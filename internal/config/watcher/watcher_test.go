package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	w := New()
	if w.debounce != 100*time.Millisecond {
		t.Errorf("default debounce = %v, want 100ms", w.debounce)
	}

	w = New(WithDebounce(50 * time.Millisecond))
	if w.debounce != 50*time.Millisecond {
		t.Errorf("debounce = %v, want 50ms", w.debounce)
	}
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpWrite, "write"},
		{OpCreate, "create"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestWatcher_WatchUnwatch(t *testing.T) {
	tmpDir := t.TempDir()
	a := filepath.Join(tmpDir, "a.toml")
	b := filepath.Join(tmpDir, "b.toml")

	w := New()
	if err := w.Watch(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(b); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(a); err != nil {
		t.Fatal(err)
	}
	if got := w.WatchedFiles(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("WatchedFiles() = %v", got)
	}
	if w.dirs[tmpDir] != 2 {
		t.Errorf("dir count = %d, want 2", w.dirs[tmpDir])
	}

	if err := w.Unwatch(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Unwatch(b); err != nil {
		t.Fatal(err)
	}
	if len(w.WatchedFiles()) != 0 || len(w.dirs) != 0 {
		t.Errorf("files = %v, dirs = %v after Unwatch", w.files, w.dirs)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w := New()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if err := w.Start(); err != nil {
		t.Errorf("second Start() = %v", err)
	}
	w.Stop()
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	w.Stop()
}

// recorder collects the events delivered to a handler.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.events)
		r.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) < n {
		t.Fatalf("received %d events, want %d", len(r.events), n)
	}
	return append([]Event(nil), r.events...)
}

func TestWatcher_DetectsFileModification(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "gridsync.toml")
	if err := os.WriteFile(tmpFile, []byte("initial"), 0644); err != nil {
		t.Fatal(err)
	}

	w := New(WithDebounce(0))
	var rec recorder
	w.OnChange(rec.handle)
	if err := w.Watch(tmpFile); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(tmpFile, []byte("modified"), 0644); err != nil {
		t.Fatal(err)
	}

	events := rec.wait(t, 1)
	if events[0].Op != OpWrite {
		t.Errorf("event.Op = %v, want write", events[0].Op)
	}
	if events[0].Path != tmpFile {
		t.Errorf("event.Path = %q, want %q", events[0].Path, tmpFile)
	}
}

func TestWatcher_DetectsFileCreation(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "later.toml")

	w := New(WithDebounce(0))
	var rec recorder
	w.OnChange(rec.handle)
	if err := w.Watch(tmpFile); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(tmpDir, "other.toml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tmpFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	events := rec.wait(t, 1)
	if events[0].Op != OpCreate || events[0].Path != tmpFile {
		t.Errorf("first event = %+v, want create of %s", events[0], tmpFile)
	}
}

func TestWatcher_Debounce(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "debounce.toml")
	if err := os.WriteFile(tmpFile, []byte("initial"), 0644); err != nil {
		t.Fatal(err)
	}

	w := New(WithDebounce(100 * time.Millisecond))
	var count atomic.Int32
	w.OnChange(func(Event) { count.Add(1) })
	if err := w.Watch(tmpFile); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for range 5 {
		if err := os.WriteFile(tmpFile, []byte("modified"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	if n := count.Load(); n < 1 || n > 2 {
		t.Errorf("received %d events, expected 1-2 (debounced)", n)
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"writes", []Operation{OpWrite, OpWrite}, OpWrite},
		{"create then write", []Operation{OpCreate, OpWrite}, OpCreate},
		{"write then remove", []Operation{OpWrite, OpRemove}, OpRemove},
		{"remove then write", []Operation{OpRemove, OpWrite}, OpRemove},
		{"atomic replace", []Operation{OpRename, OpCreate, OpWrite}, OpWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ops[0]
			for _, op := range tt.ops[1:] {
				got = coalesce(got, op)
			}
			if got != tt.want {
				t.Errorf("coalesced op = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcher_StopDropsPending(t *testing.T) {
	w := New(WithDebounce(time.Hour))
	var called atomic.Bool
	w.OnChange(func(Event) { called.Store(true) })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	w.schedule(Event{Path: "/f", Op: OpWrite, Time: time.Now()})
	w.schedule(Event{Path: "/f", Op: OpRemove, Time: time.Now()})
	w.pendingMu.Lock()
	if n, op := len(w.pending), w.pending["/f"].event.Op; n != 1 || op != OpRemove {
		t.Errorf("pending = %d, op %v; want 1 remove", n, op)
	}
	w.pendingMu.Unlock()

	w.Stop()
	if len(w.pending) != 0 {
		t.Errorf("%d changes still pending after Stop", len(w.pending))
	}
	if called.Load() {
		t.Error("handler called for a dropped change")
	}
}

func TestWatcher_HandlerPanicRecovered(t *testing.T) {
	w := New()
	var called atomic.Bool
	w.OnChange(func(Event) { panic("boom") })
	w.OnChange(func(Event) { called.Store(true) })

	w.deliver(Event{Path: "/f", Op: OpWrite})
	if !called.Load() {
		t.Error("second handler not called after panic")
	}
}

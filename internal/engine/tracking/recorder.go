package tracking

import (
	"reflect"

	"github.com/dshills/gridsync/internal/command"
)

// Change is one recorded write.
type Change struct {
	Path   Path `json:"path"`
	Before any  `json:"before,omitempty"`
	After  any  `json:"after,omitempty"`
}

// Changes is an ordered list of writes.
type Changes []Change

// Revert restores the state as it was before the changes, undoing them in
// reverse order. The writes are not recorded.
func (c Changes) Revert(s *State) {
	for i := len(c) - 1; i >= 0; i-- {
		s.write(c[i].Path, clone(c[i].Before))
	}
}

// Recording is the outcome of one recorder frame.
type Recording struct {
	Commands []command.Command
	Changes  Changes
}

type frame struct {
	commands []command.Command
	changes  Changes
	index    map[string]int
}

// Recorder captures the writes made to a State.
type Recorder struct {
	state  *State
	frames []*frame
}

// NewRecorder creates a recorder attached to s.
func NewRecorder(s *State) *Recorder {
	r := &Recorder{state: s}
	s.recorder = r
	return r
}

// State returns the state the recorder is attached to.
func (r *Recorder) State() *State {
	return r.state
}

// Recording reports whether a frame is open.
func (r *Recorder) Recording() bool {
	return len(r.frames) > 0
}

// Record runs fn inside a new frame and returns what it recorded. If fn
// panics, the writes of the frame are reverted and the panic propagates.
func (r *Recorder) Record(fn func()) Recording {
	f := &frame{index: make(map[string]int)}
	r.frames = append(r.frames, f)
	done := false
	defer func() {
		r.frames = r.frames[:len(r.frames)-1]
		if !done {
			f.changes.Revert(r.state)
		}
	}()
	fn()
	done = true
	return Recording{
		Commands: f.commands,
		Changes:  f.minimal(),
	}
}

// AddCommand adds cmd to the innermost frame. It is a no-op outside a frame.
func (r *Recorder) AddCommand(cmd command.Command) {
	if f := r.current(); f != nil {
		f.commands = append(f.commands, cmd)
	}
}

func (r *Recorder) current() *frame {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func (r *Recorder) capture(path Path, before, after any) {
	f := r.current()
	k := path.key()
	if i, ok := f.index[k]; ok {
		f.changes[i].After = after
		return
	}
	f.index[k] = len(f.changes)
	f.changes = append(f.changes, Change{Path: path, Before: before, After: after})
}

// minimal drops the writes that end where they started, unless another
// recorded write overlaps their path.
func (f *frame) minimal() Changes {
	out := make(Changes, 0, len(f.changes))
	for i, ch := range f.changes {
		if reflect.DeepEqual(ch.Before, ch.After) && !f.overlaps(i) {
			continue
		}
		out = append(out, ch)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f *frame) overlaps(i int) bool {
	for j, other := range f.changes {
		if j != i && f.changes[i].Path.related(other.Path) {
			return true
		}
	}
	return false
}

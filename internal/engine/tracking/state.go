package tracking

import (
	"maps"
	"slices"
	"strings"
)

// Path addresses a value in the state tree.
type Path []string

// String returns the path joined with slashes.
func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) key() string {
	return strings.Join(p, "\x00")
}

// HasPrefix reports whether q is a prefix of p.
func (p Path) HasPrefix(q Path) bool {
	return len(q) <= len(p) && slices.Equal(p[:len(q)], q)
}

// related reports whether one path is a prefix of the other.
func (p Path) related(q Path) bool {
	return p.HasPrefix(q) || q.HasPrefix(p)
}

// State is the path-addressed document state. It is not safe for concurrent
// use.
type State struct {
	root     map[string]any
	recorder *Recorder
}

// NewState creates an empty state.
func NewState() *State {
	return &State{root: make(map[string]any)}
}

// Get returns the value at path, or nil.
func (s *State) Get(path Path) any {
	var cur any = s.root
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[k]; !ok {
			return nil
		}
	}
	return cur
}

// GetString returns the string at path, or "".
func (s *State) GetString(path Path) string {
	v, _ := s.Get(path).(string)
	return v
}

// GetInt returns the integer at path, or 0.
func (s *State) GetInt(path Path) int {
	switch v := s.Get(path).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Keys returns the sorted keys of the map at path.
func (s *State) Keys(path Path) []string {
	m, ok := s.Get(path).(map[string]any)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}

// Has reports whether a value exists at path.
func (s *State) Has(path Path) bool {
	return s.Get(path) != nil
}

// Recording reports whether writes are currently captured by a recorder
// frame.
func (s *State) Recording() bool {
	return s.recorder != nil && s.recorder.Recording()
}

// Set writes value at path, creating intermediate maps. A nil value deletes
// the entry and prunes parents left empty. The write is recorded when a
// recorder frame is open.
func (s *State) Set(path Path, value any) {
	if len(path) == 0 {
		return
	}
	if s.Recording() {
		s.recorder.capture(path, clone(s.Get(path)), clone(value))
	}
	s.write(path, clone(value))
}

func (s *State) write(path Path, value any) {
	if value == nil {
		s.delete(path)
		return
	}
	m := s.root
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[k] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func (s *State) delete(path Path) {
	parents := make([]map[string]any, 0, len(path))
	m := s.root
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			return
		}
		parents = append(parents, m)
		m = next
	}
	delete(m, path[len(path)-1])
	for i := len(parents) - 1; i >= 0 && len(m) == 0; i-- {
		delete(parents[i], path[i])
		m = parents[i]
	}
}

// Export returns a deep copy of the state.
func (s *State) Export() map[string]any {
	return clone(s.root).(map[string]any)
}

// Import replaces the state with a deep copy of data. It is not recorded.
func (s *State) Import(data map[string]any) {
	if data == nil {
		s.root = make(map[string]any)
		return
	}
	s.root = clone(data).(map[string]any)
}

// clone deep-copies maps and slices so recorded values never alias the
// live state.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	}
	return v
}

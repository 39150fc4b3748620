package history

import "slices"

// handle addresses a record in the arena. Handles are never reused.
type handle int

type record[T any] struct {
	op        Operation[T]
	cancelled bool

	// applied is the data as returned by Apply. Valid while live.
	applied T
	live    bool

	// context holds the handles that were cancelled when op.Data was
	// expressed. The effective form of op is derived from it.
	context map[handle]bool
}

// branch is a run of consecutive operations on the execution path.
type branch struct {
	handles []handle
}

// tree stores every record and the chain of branches forming the execution
// path.
type tree[T any] struct {
	records  map[handle]*record[T]
	index    map[string]handle
	branches []*branch
	next     handle

	// derived from branches by rebuild
	path []handle
	pos  map[handle]int
}

func newTree[T any]() *tree[T] {
	return &tree[T]{
		records: make(map[handle]*record[T]),
		index:   make(map[string]handle),
		pos:     make(map[handle]int),
	}
}

func (t *tree[T]) add(r *record[T]) handle {
	h := t.next
	t.next++
	t.records[h] = r
	t.index[r.op.ID] = h
	return h
}

func (t *tree[T]) remove(h handle) {
	if r, ok := t.records[h]; ok {
		delete(t.index, r.op.ID)
		delete(t.records, h)
	}
}

func (t *tree[T]) rebuild() {
	t.path = t.path[:0]
	clear(t.pos)
	t.branches = slices.DeleteFunc(t.branches, func(b *branch) bool {
		return len(b.handles) == 0
	})
	for _, b := range t.branches {
		for _, h := range b.handles {
			t.pos[h] = len(t.path)
			t.path = append(t.path, h)
		}
	}
}

// position returns the path position of the operation id.
func (t *tree[T]) position(id string) (int, bool) {
	h, ok := t.index[id]
	if !ok {
		return 0, false
	}
	p, ok := t.pos[h]
	return p, ok
}

func (t *tree[T]) at(p int) *record[T] {
	return t.records[t.path[p]]
}

// appendLast adds h at the end of the last branch.
func (t *tree[T]) appendLast(h handle) {
	if len(t.branches) == 0 {
		t.branches = append(t.branches, &branch{})
	}
	last := t.branches[len(t.branches)-1]
	last.handles = append(last.handles, h)
	t.rebuild()
}

// insertAfter places h right after the handle at path position p. The
// operations that followed p on its branch move to a new continuation
// branch.
func (t *tree[T]) insertAfter(p int, h handle) {
	target := t.path[p]
	for i, b := range t.branches {
		k := slices.Index(b.handles, target)
		if k < 0 {
			continue
		}
		rest := slices.Clone(b.handles[k+1:])
		b.handles = append(b.handles[:k+1], h)
		if len(rest) > 0 {
			t.branches = slices.Insert(t.branches, i+1, &branch{handles: rest})
		}
		break
	}
	t.rebuild()
}

// truncate removes every handle from path position p onwards.
func (t *tree[T]) truncate(p int) {
	cut := make(map[handle]bool, len(t.path)-p)
	for _, h := range t.path[p:] {
		cut[h] = true
		t.remove(h)
	}
	t.filter(cut)
}

// filter removes the given handles from the branches.
func (t *tree[T]) filter(cut map[handle]bool) {
	for _, b := range t.branches {
		b.handles = slices.DeleteFunc(b.handles, func(h handle) bool { return cut[h] })
	}
	t.rebuild()
}

func (t *tree[T]) branchIDs() [][]string {
	out := make([][]string, 0, len(t.branches))
	for _, b := range t.branches {
		ids := make([]string, len(b.handles))
		for i, h := range b.handles {
			ids[i] = t.records[h].op.ID
		}
		out = append(out, ids)
	}
	return out
}

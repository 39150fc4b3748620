package history

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Selective history errors.
var (
	// ErrOperationNotFound indicates an id unknown to the history.
	ErrOperationNotFound = errors.New("history: operation not found")

	// ErrDuplicateOperation indicates an id already present in the history.
	ErrDuplicateOperation = errors.New("history: duplicate operation id")

	// ErrRootOperation indicates an operation that cannot target the root.
	ErrRootOperation = errors.New("history: cannot remove the root operation")
)

// SelectiveHistory is a sequence of operations supporting undo of any past
// operation and insertion in the past. It is not safe for concurrent use.
type SelectiveHistory[T any] struct {
	cfg  Config[T]
	tree *tree[T]

	// cancelled holds every cancelled handle on the path.
	cancelled map[handle]bool

	// head is the path position of the last applied operation.
	head int
}

// New creates a history whose first operation is an empty root with id
// initialID.
func New[T any](initialID string, cfg Config[T]) *SelectiveHistory[T] {
	h := &SelectiveHistory[T]{
		cfg:       cfg,
		tree:      newTree[T](),
		cancelled: make(map[handle]bool),
	}
	h.tree.appendLast(h.tree.add(h.emptyRecord(initialID)))
	return h
}

func (h *SelectiveHistory[T]) emptyRecord(id string) *record[T] {
	empty := h.cfg.BuildEmpty(id)
	return &record[T]{
		op:      NewOperation(id, empty),
		applied: empty,
		live:    true,
		context: map[handle]bool{},
	}
}

// Append records an operation after HEAD. The data is considered already
// applied.
func (h *SelectiveHistory[T]) Append(id string, data T) error {
	if _, ok := h.tree.index[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}
	r := &record[T]{
		op:      NewOperation(id, data),
		applied: data,
		live:    true,
		context: maps.Clone(h.cancelled),
	}
	h.tree.appendLast(h.tree.add(r))
	h.head = len(h.tree.path) - 1
	return nil
}

// Insert applies an operation right after the operation afterID. Every
// operation already following afterID is transformed to apply after the new
// one.
func (h *SelectiveHistory[T]) Insert(id string, data T, afterID string) error {
	if _, ok := h.tree.index[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}
	p, ok := h.tree.position(afterID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, afterID)
	}
	h.revertTo(p)

	memo := map[int]T{}
	tail := h.tree.path[p+1:]
	forms := make([]T, len(tail))
	for i := range tail {
		forms[i] = h.effective(p+1+i, memo)
	}
	with := h.cfg.Transformations.With(data)
	for i, th := range tail {
		r := h.tree.records[th]
		r.op = NewOperation(r.op.ID, with(forms[i]))
		r.context = h.cancelledBefore(p + 1 + i)
	}

	r := &record[T]{
		op:      NewOperation(id, data),
		context: h.cancelledBefore(p + 1),
	}
	h.tree.insertAfter(p, h.tree.add(r))
	h.fastForward()
	return nil
}

// Undo cancels the operation id and records the empty marker undoID after
// afterID.
func (h *SelectiveHistory[T]) Undo(id, undoID, afterID string) error {
	return h.setCancelled(id, undoID, afterID, true)
}

// Redo restores the cancelled operation id and records the empty marker
// redoID after afterID.
func (h *SelectiveHistory[T]) Redo(id, redoID, afterID string) error {
	return h.setCancelled(id, redoID, afterID, false)
}

func (h *SelectiveHistory[T]) setCancelled(id, markerID, afterID string, cancelled bool) error {
	p, ok := h.tree.position(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if p == 0 {
		return fmt.Errorf("%w: %s", ErrRootOperation, id)
	}
	if _, ok := h.tree.position(afterID); !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, afterID)
	}
	if _, ok := h.tree.index[markerID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, markerID)
	}

	hd := h.tree.path[p]
	if h.cancelled[hd] != cancelled {
		h.revertTo(p - 1)
		h.tree.records[hd].cancelled = cancelled
		if cancelled {
			h.cancelled[hd] = true
		} else {
			delete(h.cancelled, hd)
		}
		h.fastForward()
	}
	return h.Insert(markerID, h.cfg.BuildEmpty(markerID), afterID)
}

// Drop compacts the history: the operation id and every operation before it
// are folded into a new empty root with the same id. Operations after id
// stay undoable.
func (h *SelectiveHistory[T]) Drop(id string) error {
	p, ok := h.tree.position(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if p == 0 {
		return nil
	}

	memo := map[int]T{}
	for i := p + 1; i < len(h.tree.path); i++ {
		r := h.tree.at(i)
		data := h.effective(i, memo)
		r.op = NewOperation(r.op.ID, data)
		ctx := h.cancelledBefore(i)
		for q := 0; q <= p; q++ {
			delete(ctx, h.tree.path[q])
		}
		r.context = ctx
	}

	folded := make(map[handle]bool, p+1)
	for _, hd := range h.tree.path[:p+1] {
		folded[hd] = true
		delete(h.cancelled, hd)
		h.tree.remove(hd)
	}
	h.tree.filter(folded)

	root := h.tree.add(h.emptyRecord(id))
	if len(h.tree.branches) == 0 {
		h.tree.branches = append(h.tree.branches, &branch{})
	}
	first := h.tree.branches[0]
	first.handles = slices.Insert(first.handles, 0, root)
	h.tree.rebuild()
	h.head = len(h.tree.path) - 1
	return nil
}

// Discard reverts the operation id and every later operation and removes
// them from the history.
func (h *SelectiveHistory[T]) Discard(id string) error {
	p, ok := h.tree.position(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if p == 0 {
		return fmt.Errorf("%w: %s", ErrRootOperation, id)
	}
	h.revertTo(p - 1)
	for _, hd := range h.tree.path[p:] {
		delete(h.cancelled, hd)
	}
	h.tree.truncate(p)
	return nil
}

// Get returns the effective data of the operation id: its data rewritten for
// the current state of the history.
func (h *SelectiveHistory[T]) Get(id string) (T, error) {
	p, ok := h.tree.position(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	r := h.tree.at(p)
	if r.live {
		return r.applied, nil
	}
	return h.effective(p, map[int]T{}), nil
}

// Contains reports whether id is in the history.
func (h *SelectiveHistory[T]) Contains(id string) bool {
	_, ok := h.tree.position(id)
	return ok
}

// IsCancelled reports whether the operation id is currently undone.
func (h *SelectiveHistory[T]) IsCancelled(id string) (bool, error) {
	p, ok := h.tree.position(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return h.tree.at(p).cancelled, nil
}

// CanUndo reports whether the operation id can be cancelled.
func (h *SelectiveHistory[T]) CanUndo(id string) bool {
	p, ok := h.tree.position(id)
	return ok && p > 0 && !h.tree.at(p).cancelled
}

// CanRedo reports whether the operation id can be restored.
func (h *SelectiveHistory[T]) CanRedo(id string) bool {
	p, ok := h.tree.position(id)
	return ok && p > 0 && h.tree.at(p).cancelled
}

// Head returns the id of the last operation.
func (h *SelectiveHistory[T]) Head() string {
	return h.tree.at(h.head).op.ID
}

// Len returns the number of operations, root included.
func (h *SelectiveHistory[T]) Len() int {
	return len(h.tree.path)
}

// IDs returns the operation ids in execution order.
func (h *SelectiveHistory[T]) IDs() []string {
	ids := make([]string, len(h.tree.path))
	for i := range h.tree.path {
		ids[i] = h.tree.at(i).op.ID
	}
	return ids
}

// Branches returns the operation ids of each branch of the execution path.
func (h *SelectiveHistory[T]) Branches() [][]string {
	return h.tree.branchIDs()
}

// revertTo reverts every applied operation after path position p.
func (h *SelectiveHistory[T]) revertTo(p int) {
	for i := h.head; i > p; i-- {
		r := h.tree.at(i)
		if r.live {
			h.cfg.Revert(r.applied)
			r.live = false
		}
	}
	h.head = max(p, 0)
}

// fastForward applies every operation after HEAD in its effective form.
func (h *SelectiveHistory[T]) fastForward() {
	memo := map[int]T{}
	for i := h.head + 1; i < len(h.tree.path); i++ {
		r := h.tree.at(i)
		if !r.cancelled {
			r.applied = h.cfg.Apply(h.effective(i, memo))
			r.live = true
		}
		h.head = i
	}
}

// effective returns the data of the operation at path position p rewritten
// for the current cancellations. An operation cancelled since its data was
// expressed is transformed out; one restored since is transformed in.
func (h *SelectiveHistory[T]) effective(p int, memo map[int]T) T {
	if data, ok := memo[p]; ok {
		return data
	}
	r := h.tree.at(p)
	var changed []int
	for hd := range h.cancelled {
		if q := h.tree.pos[hd]; q < p && !r.context[hd] {
			changed = append(changed, q)
		}
	}
	for hd := range r.context {
		if q, ok := h.tree.pos[hd]; ok && q < p && !h.cancelled[hd] {
			changed = append(changed, q)
		}
	}
	slices.Sort(changed)

	data := r.op.Data
	for _, q := range changed {
		other := h.effective(q, memo)
		if h.tree.at(q).cancelled {
			data = h.cfg.Transformations.Without(other)(data)
		} else {
			data = h.cfg.Transformations.With(other)(data)
		}
	}
	memo[p] = data
	return data
}

// cancelledBefore returns the cancelled handles before path position p.
func (h *SelectiveHistory[T]) cancelledBefore(p int) map[handle]bool {
	out := make(map[handle]bool)
	for hd := range h.cancelled {
		if h.tree.pos[hd] < p {
			out[hd] = true
		}
	}
	return out
}

package history

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// Stack errors.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultMaxEntries bounds a Stack created with a non-positive size.
const DefaultMaxEntries = 99

// stackEntry wraps an operation id with metadata.
type stackEntry struct {
	id        string
	timestamp time.Time
}

// Stack tracks which operations a user can undo or redo.
type Stack struct {
	mu sync.Mutex

	undoStack []stackEntry
	redoStack []stackEntry

	maxEntries int
}

// NewStack creates a stack keeping at most maxEntries undoable ids.
func NewStack(maxEntries int) *Stack {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Stack{maxEntries: maxEntries}
}

// Push records a new undoable id and clears the redo stack.
func (s *Stack) Push(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undoStack = append(s.undoStack, stackEntry{id: id, timestamp: time.Now()})
	s.redoStack = nil

	if len(s.undoStack) > s.maxEntries {
		excess := len(s.undoStack) - s.maxEntries
		s.undoStack = s.undoStack[excess:]
	}
}

// PeekUndo returns the id the next undo would target.
func (s *Stack) PeekUndo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undoStack) == 0 {
		return "", ErrNothingToUndo
	}
	return s.undoStack[len(s.undoStack)-1].id, nil
}

// PeekRedo returns the id the next redo would target.
func (s *Stack) PeekRedo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redoStack) == 0 {
		return "", ErrNothingToRedo
	}
	return s.redoStack[len(s.redoStack)-1].id, nil
}

// Undo moves the last undoable id to the redo stack and returns it.
func (s *Stack) Undo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undoStack) == 0 {
		return "", ErrNothingToUndo
	}
	e := s.undoStack[len(s.undoStack)-1]
	s.undoStack = s.undoStack[:len(s.undoStack)-1]
	s.redoStack = append(s.redoStack, e)
	return e.id, nil
}

// Redo moves the last redoable id back to the undo stack and returns it.
func (s *Stack) Redo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redoStack) == 0 {
		return "", ErrNothingToRedo
	}
	e := s.redoStack[len(s.redoStack)-1]
	s.redoStack = s.redoStack[:len(s.redoStack)-1]
	s.undoStack = append(s.undoStack, e)
	return e.id, nil
}

// Remove forgets the given ids on both stacks.
func (s *Stack) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := func(e stackEntry) bool { return slices.Contains(ids, e.id) }
	s.undoStack = slices.DeleteFunc(s.undoStack, drop)
	s.redoStack = slices.DeleteFunc(s.redoStack, drop)
}

// Retain forgets the ids on both stacks for which keep returns false.
func (s *Stack) Retain(keep func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := func(e stackEntry) bool { return !keep(e.id) }
	s.undoStack = slices.DeleteFunc(s.undoStack, drop)
	s.redoStack = slices.DeleteFunc(s.redoStack, drop)
}

// CanUndo returns true if undo is available.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redoStack) > 0
}

// UndoCount returns the number of undo operations available.
func (s *Stack) UndoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undoStack)
}

// RedoCount returns the number of redo operations available.
func (s *Stack) RedoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redoStack)
}

// MaxEntries returns the maximum number of undo entries.
func (s *Stack) MaxEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxEntries
}

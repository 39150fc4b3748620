package model

import (
	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/history"
	"github.com/dshills/gridsync/internal/session"
)

// MaxHistorySteps bounds the local undo stack.
const MaxHistorySteps = 99

// LocalHistory is the history handler. It tracks the revisions of the local
// client and turns REQUEST_UNDO and REQUEST_REDO into session requests.
// The revision is cancelled or restored when the relay echoes the request.
type LocalHistory struct {
	handler.Base

	session *session.Session
	stack   *history.Stack
}

// NewLocalHistory creates the history handler of s.
func NewLocalHistory(s *session.Session, maxSteps int) *LocalHistory {
	if maxSteps <= 0 {
		maxSteps = MaxHistorySteps
	}
	return &LocalHistory{session: s, stack: history.NewStack(maxSteps)}
}

// AllowDispatch implements handler.Handler.
func (h *LocalHistory) AllowDispatch(cmd command.Command) []handler.Reason {
	switch cmd.(type) {
	case command.RequestUndo:
		if !h.session.CanApplyOptimisticUpdate() {
			return []handler.Reason{handler.ReasonWaitingSessionConfirmation}
		}
		if !h.CanUndo() {
			return []handler.Reason{handler.ReasonEmptyUndoStack}
		}
	case command.RequestRedo:
		if !h.session.CanApplyOptimisticUpdate() {
			return []handler.Reason{handler.ReasonWaitingSessionConfirmation}
		}
		if !h.CanRedo() {
			return []handler.Reason{handler.ReasonEmptyRedoStack}
		}
	default:
		if command.IsCore(cmd) && !h.session.CanApplyOptimisticUpdate() {
			return []handler.Reason{handler.ReasonWaitingSessionConfirmation}
		}
	}
	return nil
}

// Handle implements handler.Handler.
func (h *LocalHistory) Handle(cmd command.Command) {
	switch cmd.(type) {
	case command.RequestUndo:
		if id, err := h.stack.Undo(); err == nil {
			h.session.Undo(id)
		}
	case command.RequestRedo:
		if id, err := h.stack.Redo(); err == nil {
			h.session.Redo(id)
		}
	}
}

// CanUndo reports whether a local revision can be undone.
func (h *LocalHistory) CanUndo() bool {
	id, err := h.stack.PeekUndo()
	return err == nil && h.session.Log().CanUndo(id)
}

// CanRedo reports whether an undone local revision can be redone.
func (h *LocalHistory) CanRedo() bool {
	id, err := h.stack.PeekRedo()
	return err == nil && h.session.Log().CanRedo(id)
}

func (h *LocalHistory) push(id string) {
	h.stack.Push(id)
}

func (h *LocalHistory) forget(ids ...string) {
	h.stack.Remove(ids...)
}

// prune forgets the revisions folded into a snapshot.
func (h *LocalHistory) prune() {
	log := h.session.Log()
	h.stack.Retain(func(id string) bool {
		return log.CanUndo(id) || log.CanRedo(id)
	})
}

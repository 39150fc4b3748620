// Package handler provides the handler protocol and result types for
// command dispatch.
package handler

import "github.com/dshills/gridsync/internal/command"

// Handler takes part in the dispatch of every command.
//
// For a dispatched command the dispatcher calls AllowDispatch on every
// handler; if none objects it calls BeforeHandle on every handler, then
// Handle on every handler, then Finalize on every handler once the outermost
// command is done.
type Handler interface {
	// AllowDispatch returns the reasons cmd must be refused. Nil means
	// allowed. It must not change any state.
	AllowDispatch(cmd command.Command) []Reason

	// BeforeHandle is called on every handler before any Handle.
	BeforeHandle(cmd command.Command)

	// Handle applies cmd.
	Handle(cmd command.Command)

	// Finalize is called once per outermost dispatch, after all handling.
	// Dispatching from Finalize is a contract violation.
	Finalize()
}

// Layer groups handlers. Layers are called in declaration order.
type Layer uint8

const (
	// LayerCore holds the plugins owning the document data. Only core
	// handlers see replayed commands.
	LayerCore Layer = iota
	// LayerUI holds the plugins owning local, non-synchronized state.
	LayerUI
	// LayerHistory holds the local undo/redo handler.
	LayerHistory
)

// String returns a string representation of the layer.
func (l Layer) String() string {
	switch l {
	case LayerCore:
		return "core"
	case LayerUI:
		return "ui"
	case LayerHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Base is an embeddable Handler with no behavior.
type Base struct{}

// AllowDispatch implements Handler.
func (Base) AllowDispatch(command.Command) []Reason { return nil }

// BeforeHandle implements Handler.
func (Base) BeforeHandle(command.Command) {}

// Handle implements Handler.
func (Base) Handle(command.Command) {}

// Finalize implements Handler.
func (Base) Finalize() {}

// Funcs adapts functions to Handler. Nil functions do nothing.
type Funcs struct {
	Allow    func(cmd command.Command) []Reason
	Before   func(cmd command.Command)
	OnHandle func(cmd command.Command)
	Final    func()
}

// AllowDispatch implements Handler.
func (f Funcs) AllowDispatch(cmd command.Command) []Reason {
	if f.Allow == nil {
		return nil
	}
	return f.Allow(cmd)
}

// BeforeHandle implements Handler.
func (f Funcs) BeforeHandle(cmd command.Command) {
	if f.Before != nil {
		f.Before(cmd)
	}
}

// Handle implements Handler.
func (f Funcs) Handle(cmd command.Command) {
	if f.OnHandle != nil {
		f.OnHandle(cmd)
	}
}

// Finalize implements Handler.
func (f Funcs) Finalize() {
	if f.Final != nil {
		f.Final()
	}
}

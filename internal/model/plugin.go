package model

import (
	"fmt"
	"reflect"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
)

// PluginSpec describes a plugin. Specs are instantiated in order when the
// model is created.
type PluginSpec struct {
	// Name identifies the plugin in errors and logs.
	Name string

	// Layer is the dispatcher layer the plugin is registered on. Core
	// plugins own persisted state; UI plugins derive local state.
	Layer handler.Layer

	// New creates the plugin.
	New func(env Env) (handler.Handler, error)

	// Getters lists the exported methods of the plugin made available
	// through Model.Getter. Each must exist on the value returned by New.
	Getters []string
}

// Env is what a plugin receives at construction.
type Env struct {
	// State is the shared document state. Only core plugins write to it.
	State *tracking.State

	// Dispatch sends a nested command. For core plugins the command is
	// replayed with its parent and never recorded on its own.
	Dispatch func(cmd command.Command) handler.Result

	// Getters resolves the getters of the plugins created before this one.
	Getters Getters

	// Presence publishes the position of the local client.
	Presence func(pos session.ClientPosition)

	// Logger is the model logger.
	Logger Logger
}

// Getters resolves plugin getters by name.
type Getters interface {
	Getter(name string) (any, error)
}

// Lookup resolves the getter name and asserts its signature.
//
//	cell, err := model.Lookup[func(string, int, int) string](m, "CellContent")
func Lookup[F any](g Getters, name string) (F, error) {
	var zero F
	v, err := g.Getter(name)
	if err != nil {
		return zero, err
	}
	fn, ok := v.(F)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %T", ErrGetterType, name, v, zero)
	}
	return fn, nil
}

type plugin struct {
	name    string
	layer   handler.Layer
	handler handler.Handler
}

// getterRegistry maps getter names to bound methods.
type getterRegistry map[string]any

func (r getterRegistry) Getter(name string) (any, error) {
	fn, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGetter, name)
	}
	return fn, nil
}

// register binds the declared getters of h. It fails without registering
// anything if one of them is not an exported method of h.
func (r getterRegistry) register(spec PluginSpec, h handler.Handler) error {
	v := reflect.ValueOf(h)
	bound := make(map[string]any, len(spec.Getters))
	for _, name := range spec.Getters {
		m := v.MethodByName(name)
		if !m.IsValid() {
			return fmt.Errorf("%w: plugin %s has no method %s", ErrInvalidGetter, spec.Name, name)
		}
		if _, dup := r[name]; dup {
			return fmt.Errorf("%w: %s (plugin %s)", ErrDuplicateGetter, name, spec.Name)
		}
		bound[name] = m.Interface()
	}
	for name, fn := range bound {
		r[name] = fn
	}
	return nil
}

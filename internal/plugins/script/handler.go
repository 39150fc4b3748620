package script

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/model"
)

// ModuleName is the name scripts require to reach the model.
const ModuleName = "gridsync"

// Lua globals called by Handler.
const (
	fnAllowDispatch = "allow_dispatch"
	fnBeforeHandle  = "before_handle"
	fnHandle        = "handle"
	fnFinalize      = "finalize"
)

// Spec returns a plugin spec running source on layer.
func Spec(name, source string, layer handler.Layer, opts ...StateOption) model.PluginSpec {
	return model.PluginSpec{
		Name:  name,
		Layer: layer,
		New: func(env model.Env) (handler.Handler, error) {
			h, err := New(name, source, layer, env, opts...)
			if err != nil {
				return nil, err
			}
			return h, nil
		},
	}
}

// Handler is a dispatcher handler implemented by a script.
type Handler struct {
	name   string
	layer  handler.Layer
	env    model.Env
	state  *State
	bridge *Bridge

	// Globals defined by the script, resolved once after loading.
	hasAllow, hasBefore, hasHandle, hasFinalize bool
}

// New loads source and returns its handler. Errors in the chunk are
// returned; errors in later calls are logged.
func New(name, source string, layer handler.Layer, env model.Env, opts ...StateOption) (*Handler, error) {
	if env.Logger == nil {
		env.Logger = nopLogger{}
	}
	h := &Handler{
		name:  name,
		layer: layer,
		env:   env,
		state: NewState(opts...),
	}
	h.bridge = NewBridge(h.state.L)
	h.state.RegisterModule(ModuleName, map[string]lua.LGFunction{
		"get":      h.luaGet,
		"set":      h.luaSet,
		"dispatch": h.luaDispatch,
		"getter":   h.luaGetter,
		"log":      h.luaLog,
	})
	if err := h.state.DoString(source); err != nil {
		h.state.Close()
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}
	h.hasAllow = h.state.Has(fnAllowDispatch)
	h.hasBefore = h.state.Has(fnBeforeHandle)
	h.hasHandle = h.state.Has(fnHandle)
	h.hasFinalize = h.state.Has(fnFinalize)
	return h, nil
}

// AllowDispatch implements handler.Handler. A script error refuses the
// command.
func (h *Handler) AllowDispatch(cmd command.Command) []handler.Reason {
	if !h.hasAllow {
		return nil
	}
	ret, err := h.call(fnAllowDispatch, cmd)
	if err != nil {
		return []handler.Reason{handler.ReasonScriptRejected}
	}
	if len(ret) == 0 {
		return nil
	}
	switch v := ret[0].(type) {
	case lua.LBool:
		if !bool(v) {
			return []handler.Reason{handler.ReasonScriptRejected}
		}
	case lua.LString:
		h.env.Logger.Debug("command rejected by script", "plugin", h.name, "command", cmd.Kind(), "reason", string(v))
		return []handler.Reason{handler.ReasonScriptRejected}
	}
	return nil
}

// BeforeHandle implements handler.Handler.
func (h *Handler) BeforeHandle(cmd command.Command) {
	if h.hasBefore {
		h.call(fnBeforeHandle, cmd)
	}
}

// Handle implements handler.Handler.
func (h *Handler) Handle(cmd command.Command) {
	if h.hasHandle {
		h.call(fnHandle, cmd)
	}
}

// Finalize implements handler.Handler.
func (h *Handler) Finalize() {
	if !h.hasFinalize {
		return
	}
	if _, err := h.state.Call(fnFinalize); err != nil {
		h.env.Logger.Error("script finalize", "plugin", h.name, "error", err)
	}
}

// Close releases the Lua state.
func (h *Handler) Close() error {
	return h.state.Close()
}

func (h *Handler) call(fn string, cmd command.Command) ([]lua.LValue, error) {
	t, err := h.bridge.CommandTable(cmd)
	if err == nil {
		var ret []lua.LValue
		if ret, err = h.state.Call(fn, t); err == nil {
			return ret, nil
		}
	}
	h.env.Logger.Error("script call", "plugin", h.name, "function", fn, "command", cmd.Kind(), "error", err)
	return nil, err
}

// path reads the arguments from..to as a state path.
func path(L *lua.LState, from, to int) tracking.Path {
	p := make(tracking.Path, 0, to-from+1)
	for i := from; i <= to; i++ {
		p = append(p, lua.LVAsString(L.Get(i)))
	}
	return p
}

// gridsync.get(key...) returns the state value at the path.
func (h *Handler) luaGet(L *lua.LState) int {
	L.Push(h.bridge.ToLuaValue(h.env.State.Get(path(L, 1, L.GetTop()))))
	return 1
}

// gridsync.set(key..., value) writes the state. nil deletes. Writes are
// only accepted while a command is being handled, so that every write is
// recorded and reverted with its command.
func (h *Handler) luaSet(L *lua.LState) int {
	if h.layer != handler.LayerCore {
		L.RaiseError("gridsync.set: %s is not a core plugin", h.name)
		return 0
	}
	if !h.env.State.Recording() {
		L.RaiseError("gridsync.set: no command is being handled")
		return 0
	}
	top := L.GetTop()
	if top < 2 {
		L.RaiseError("gridsync.set: path and value expected")
		return 0
	}
	h.env.State.Set(path(L, 1, top-1), h.bridge.ToGoValue(L.Get(top)))
	return 0
}

// gridsync.dispatch(cmd) returns ok and the table of refusal reasons.
func (h *Handler) luaDispatch(L *lua.LState) int {
	cmd, err := h.bridge.TableCommand(L.CheckTable(1))
	if err != nil {
		L.RaiseError("gridsync.dispatch: %v", err)
		return 0
	}
	r := h.env.Dispatch(cmd)
	reasons := L.NewTable()
	for _, reason := range r.Reasons() {
		reasons.Append(lua.LString(reason.String()))
	}
	L.Push(lua.LBool(r.IsSuccessful()))
	L.Push(reasons)
	return 2
}

// gridsync.getter(name, args...) calls a plugin getter.
func (h *Handler) luaGetter(L *lua.LState) int {
	name := L.CheckString(1)
	g, err := h.env.Getters.Getter(name)
	if err != nil {
		L.RaiseError("gridsync.getter: %v", err)
		return 0
	}
	fn := reflect.ValueOf(g)
	ft := fn.Type()
	if ft.Kind() != reflect.Func || ft.IsVariadic() || ft.NumIn() != L.GetTop()-1 {
		L.RaiseError("gridsync.getter: %s takes %d arguments", name, ft.NumIn())
		return 0
	}

	in := make([]reflect.Value, ft.NumIn())
	for i := range in {
		v, ok := convert(h.bridge.ToGoValue(L.Get(i+2)), ft.In(i))
		if !ok {
			L.RaiseError("gridsync.getter: argument %d of %s must be %s", i+1, name, ft.In(i))
			return 0
		}
		in[i] = v
	}
	out := fn.Call(in)
	for _, v := range out {
		L.Push(h.bridge.ToLuaValue(v.Interface()))
	}
	return len(out)
}

// convert adapts a value from Lua to a getter parameter.
func convert(v any, want reflect.Type) (reflect.Value, bool) {
	if v == nil {
		return reflect.Zero(want), true
	}
	rv := reflect.ValueOf(v)
	switch want.Kind() {
	case reflect.String:
		if rv.Kind() != reflect.String {
			return reflect.Value{}, false
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
		if rv.Kind() != reflect.Int && rv.Kind() != reflect.Float64 {
			return reflect.Value{}, false
		}
	case reflect.Bool:
		if rv.Kind() != reflect.Bool {
			return reflect.Value{}, false
		}
	default:
		if !rv.Type().AssignableTo(want) {
			return reflect.Value{}, false
		}
		return rv, true
	}
	return rv.Convert(want), true
}

// gridsync.log(msg, key, value, ...) logs at info level.
func (h *Handler) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	var kv []any
	for i := 2; i <= L.GetTop(); i++ {
		kv = append(kv, h.bridge.ToGoValue(L.Get(i)))
	}
	h.env.Logger.Info(msg, append([]any{"plugin", h.name}, kv...)...)
	return 0
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

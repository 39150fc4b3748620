package script

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds every call into a script.
const DefaultExecutionTimeout = time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe and a State is not either: the
// caller serializes access. Calls may nest, as when a script dispatches a
// command that is handled by the same script.
type State struct {
	L *lua.LState

	timeout time.Duration
	sandbox *Sandbox
	depth   int
	closed  bool

	// fatal is the first fatal panic raised by a Go function during the
	// current call. gopher-lua turns panics into Lua errors that scripts
	// can catch, so it is kept here and raised again once the call returns.
	fatal any
}

// fatalError is implemented by panic values that must cross scripts
// unchanged, such as dispatch contract violations.
type fatalError interface {
	error
	Fatal() bool
}

func isFatal(v any) bool {
	f, ok := v.(fatalError)
	return ok && f.Fatal()
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the timeout of a single call. Zero disables it.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{timeout: DefaultExecutionTimeout}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	s.L = L
	s.sandbox = NewSandbox(L)
	s.sandbox.Install()
	return s
}

// openSafeLibraries opens the libraries without file, process or debug
// access.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoString executes a chunk.
func (s *State) DoString(code string) error {
	if s.closed {
		return ErrStateClosed
	}
	return s.run(func() error {
		return s.L.DoString(code)
	})
}

// Has reports whether the global name is a function.
func (s *State) Has(name string) bool {
	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// Call calls the global function fn. It returns an empty slice when the
// function returns nothing.
func (s *State) Call(fn string, args ...lua.LValue) ([]lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrNoFunction, fn)
	}

	top := s.L.GetTop()
	err := s.run(func() error {
		s.L.Push(fnVal)
		for _, arg := range args {
			s.L.Push(arg)
		}
		return s.L.PCall(len(args), lua.MultRet, nil)
	})
	if err != nil {
		s.L.SetTop(top)
		return nil, err
	}

	n := s.L.GetTop() - top
	results := make([]lua.LValue, max(n, 0))
	for i := range results {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// run executes fn under the execution timeout, turning panics into errors.
// A fatal panic raised by a Go function during fn propagates once fn
// returns, whatever the script did with the Lua error.
func (s *State) run(fn func() error) error {
	err := s.protect(fn)
	if f := s.fatal; f != nil {
		s.fatal = nil
		panic(f)
	}
	return err
}

func (s *State) protect(fn func() error) (err error) {
	s.depth++
	defer func() { s.depth-- }()
	if s.timeout > 0 && s.depth == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			if isFatal(r) {
				panic(r)
			}
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// guard wraps a Go function exposed to scripts so that its fatal panics
// survive the Lua call.
func (s *State) guard(fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		defer func() {
			if r := recover(); r != nil {
				if isFatal(r) && s.fatal == nil {
					s.fatal = r
				}
				panic(r)
			}
		}()
		return fn(L)
	}
}

// RegisterModule makes a table of Go functions available to require.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	if s.closed {
		return
	}
	guarded := make(map[string]lua.LGFunction, len(funcs))
	for k, fn := range funcs {
		guarded[k] = s.guard(fn)
	}
	s.L.PreloadModule(name, func(L *lua.LState) int {
		L.Push(L.SetFuncs(L.NewTable(), guarded))
		return 1
	})
	s.sandbox.Allow(name)
}

// Close releases the state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}

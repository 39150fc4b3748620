package script

import (
	"errors"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func TestStateCall(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`function add(a, b) return a + b, "done" end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	ret, err := s.Call("add", lua.LNumber(2), lua.LNumber(3))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(ret) != 2 || ret[0] != lua.LNumber(5) || ret[1] != lua.LString("done") {
		t.Errorf("Call() = %v", ret)
	}
	if top := s.L.GetTop(); top != 0 {
		t.Errorf("stack left with %d values", top)
	}

	if _, err := s.Call("missing"); !errors.Is(err, ErrNoFunction) {
		t.Errorf("Call(missing) error = %v, want ErrNoFunction", err)
	}
}

func TestStateScriptError(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`invalid lua code !!!`); err == nil {
		t.Error("DoString() accepted a syntax error")
	}
	if err := s.DoString(`function boom() error("boom") end`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Call("boom"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Call(boom) error = %v", err)
	}
}

func TestStateTimeout(t *testing.T) {
	s := NewState(WithExecutionTimeout(50 * time.Millisecond))
	defer s.Close()

	if err := s.DoString(`function spin() while true do end end`); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := s.Call("spin"); err == nil {
		t.Fatal("Call(spin) returned without error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	// The state is usable after a timeout.
	if err := s.DoString(`x = 1`); err != nil {
		t.Errorf("DoString() after timeout error = %v", err)
	}
}

func TestSandbox(t *testing.T) {
	tests := []struct {
		name string
		code string
		ok   bool
	}{
		{"string library", `local s = require("string"); assert(s.upper("a") == "A")`, true},
		{"math", `assert(math.max(1, 2) == 2)`, true},
		{"io is absent", `assert(io == nil)`, true},
		{"os is absent", `assert(os == nil)`, true},
		{"require io", `require("io")`, false},
		{"require os", `require("os")`, false},
		{"loadstring", `loadstring("x = 1")()`, false},
		{"dofile", `dofile("/etc/passwd")`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			defer s.Close()
			err := s.DoString(tt.code)
			if (err == nil) != tt.ok {
				t.Errorf("DoString() error = %v, want ok = %v", err, tt.ok)
			}
		})
	}
}

func TestRegisterModule(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.RegisterModule("greet", map[string]lua.LGFunction{
		"hello": func(L *lua.LState) int {
			L.Push(lua.LString("hello " + L.CheckString(1)))
			return 1
		},
	})
	if err := s.DoString(`msg = require("greet").hello("grid")`); err != nil {
		t.Fatal(err)
	}
	if got := s.L.GetGlobal("msg"); got != lua.LString("hello grid") {
		t.Errorf("msg = %v", got)
	}
}

func TestClosedState(t *testing.T) {
	s := NewState()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.DoString(`x = 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() error = %v, want ErrStateClosed", err)
	}
	if _, err := s.Call("f"); !errors.Is(err, ErrStateClosed) {
		t.Errorf("Call() error = %v, want ErrStateClosed", err)
	}
}

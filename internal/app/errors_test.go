package app

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInitError(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&InitError{Component: "redis", Err: inner})

	if err.Error() != "init redis: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected InitError to unwrap to the cause")
	}
}

func TestComponentError(t *testing.T) {
	tests := []struct {
		name      string
		component string
		op        string
		err       error
		want      string
	}{
		{"nil cause", "store", "close", nil, ""},
		{"with op", "store", "close", errors.New("database is locked"), "store close: database is locked"},
		{"without op", "hub", "", errors.New("2 documents failed"), "hub: 2 documents failed"},
		{"timeout", "server", "shutdown", ErrShutdownTimeout, "server shutdown: shutdown timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := componentError(tt.component, tt.op, tt.err)
			if tt.err == nil {
				if err != nil {
					t.Fatalf("componentError(nil) = %v, want nil", err)
				}
				return
			}
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("expected errors.Is to reach the cause")
			}
			var ce *ComponentError
			if !errors.As(err, &ce) || ce.Component != tt.component {
				t.Errorf("errors.As = %v, component %q", ce, tt.component)
			}
		})
	}
}

func TestRecoveredPanicError(t *testing.T) {
	t.Run("value", func(t *testing.T) {
		err := &RecoveredPanicError{Method: "GET", Path: "/docs/a/stats", Value: "boom"}
		if err.Error() != "panic serving GET /docs/a/stats: boom" {
			t.Errorf("Error() = %q", err.Error())
		}
		if err.Unwrap() != nil {
			t.Error("a string panic should not unwrap")
		}
	})

	t.Run("stack", func(t *testing.T) {
		err := &RecoveredPanicError{Method: "GET", Path: "/", Value: 1, Stack: "goroutine 7 [running]:"}
		if !strings.HasSuffix(err.Error(), "\ngoroutine 7 [running]:") {
			t.Errorf("Error() = %q, want the stack last", err.Error())
		}
	})

	t.Run("error value", func(t *testing.T) {
		cause := fmt.Errorf("nil map")
		err := &RecoveredPanicError{Method: "POST", Path: "/", Value: cause}
		if !errors.Is(err, cause) {
			t.Error("expected an error panic value to unwrap")
		}
	})
}

func TestErrorList(t *testing.T) {
	list := NewErrorList()
	if list.AsError() != nil {
		t.Error("empty list should be a nil error")
	}
	if list.Errors() != nil {
		t.Error("empty list should have no errors")
	}

	list.Add(nil)
	if list.Len() != 0 {
		t.Errorf("Len() = %d after adding nil", list.Len())
	}

	closeErr := componentError("store", "close", errors.New("disk full"))
	list.Add(componentError("server", "shutdown", ErrShutdownTimeout))
	list.Add(closeErr)

	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	err := list.AsError()
	if err == nil {
		t.Fatal("AsError() = nil")
	}
	want := "server shutdown: shutdown timed out; store close: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Error("expected errors.Is to find the shutdown timeout")
	}
	var ce *ComponentError
	if !errors.As(err, &ce) || ce.Component != "server" {
		t.Errorf("errors.As found %v", ce)
	}

	errs := list.Errors()
	errs[0] = nil
	if list.Errors()[0] == nil {
		t.Error("Errors() should return a copy")
	}
}

func TestSentinelErrors(t *testing.T) {
	for _, err := range []error{ErrAlreadyRunning, ErrNotRunning, ErrShutdownTimeout} {
		if err.Error() == "" {
			t.Errorf("%#v has an empty message", err)
		}
		wrapped := fmt.Errorf("serve: %w", err)
		if !errors.Is(wrapped, err) {
			t.Errorf("errors.Is(wrapped, %v) = false", err)
		}
	}
}

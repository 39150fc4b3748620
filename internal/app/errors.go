package app

import (
	"errors"
	"fmt"
	"strings"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates an application that was shut down.
	ErrNotRunning = errors.New("application not running")

	// ErrShutdownTimeout indicates shutdown timed out.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// InitError reports the component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ComponentError is a failure of a running component: the HTTP server,
// the document hub, redis or the store.
type ComponentError struct {
	Component string
	Op        string
	Err       error
}

// componentError returns nil when err is nil.
func componentError(component, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ComponentError{Component: component, Op: op, Err: err}
}

func (e *ComponentError) Error() string {
	if e.Op == "" {
		return e.Component + ": " + e.Err.Error()
	}
	return e.Component + " " + e.Op + ": " + e.Err.Error()
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// RecoveredPanicError is a panic recovered while serving a request.
// Error includes the stack; log it at debug level only.
type RecoveredPanicError struct {
	Method string
	Path   string
	Value  any
	Stack  string
}

func (e *RecoveredPanicError) Error() string {
	msg := fmt.Sprintf("panic serving %s %s: %v", e.Method, e.Path, e.Value)
	if e.Stack != "" {
		msg += "\n" + e.Stack
	}
	return msg
}

// Unwrap returns the panic value when it is an error.
func (e *RecoveredPanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ErrorList collects the errors of a multi-step operation such as shutdown.
// It is not safe for concurrent use.
type ErrorList struct {
	errs []error
}

// NewErrorList creates an empty list.
func NewErrorList() *ErrorList {
	return &ErrorList{}
}

// Add appends err. Nil errors are ignored.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

// Len returns the number of errors.
func (e *ErrorList) Len() int {
	return len(e.errs)
}

// Errors returns a copy of the errors.
func (e *ErrorList) Errors() []error {
	if len(e.errs) == 0 {
		return nil
	}
	return append([]error(nil), e.errs...)
}

// Error joins the messages with "; ".
func (e *ErrorList) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is and errors.As see every error of the list.
func (e *ErrorList) Unwrap() []error {
	return e.errs
}

// AsError returns nil for an empty list, and the list otherwise.
func (e *ErrorList) AsError() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e
}

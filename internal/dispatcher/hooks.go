package dispatcher

import (
	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/dispatcher/handler"
	"github.com/dshills/gridsync/internal/engine/tracking"
)

// PreDispatchHook is called before an outermost command is validated.
// Returning false cancels the dispatch with ReasonCancelledByHook.
type PreDispatchHook interface {
	PreDispatch(cmd command.Command) bool
}

// PostDispatchHook is called after an outermost dispatch completes,
// successful or not.
type PostDispatchHook interface {
	PostDispatch(cmd command.Command, result handler.Result)
}

// PreDispatchFunc is a function adapter for PreDispatchHook.
type PreDispatchFunc func(cmd command.Command) bool

// PreDispatch implements PreDispatchHook.
func (f PreDispatchFunc) PreDispatch(cmd command.Command) bool {
	return f(cmd)
}

// PostDispatchFunc is a function adapter for PostDispatchHook.
type PostDispatchFunc func(cmd command.Command, result handler.Result)

// PostDispatch implements PostDispatchHook.
func (f PostDispatchFunc) PostDispatch(cmd command.Command, result handler.Result) {
	f(cmd, result)
}

// CommitFunc receives the core commands and changes recorded by a successful
// outermost dispatch. The session saves them as a local revision.
type CommitFunc func(cmd command.Command, rec tracking.Recording)

// Logger is the logging interface of LoggingHook.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

// LoggingHook logs outermost dispatches and their outcome at debug level.
type LoggingHook struct {
	logger Logger
}

// NewLoggingHook returns a hook logging to logger. Register it as both a
// pre- and a post-dispatch hook.
func NewLoggingHook(logger Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

// PreDispatch implements PreDispatchHook. It never cancels.
func (h *LoggingHook) PreDispatch(cmd command.Command) bool {
	h.logger.Debug("dispatch", "command", cmd.Kind(), "core", command.IsCore(cmd))
	return true
}

// PostDispatch implements PostDispatchHook.
func (h *LoggingHook) PostDispatch(cmd command.Command, result handler.Result) {
	h.logger.Debug("dispatched", "command", cmd.Kind(), "result", result)
}

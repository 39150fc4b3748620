package dispatcher

import (
	"errors"
	"fmt"

	"github.com/dshills/gridsync/internal/command"
)

// Dispatcher errors.
var (
	// ErrInvalidTransition indicates an event not accepted by the state
	// machine.
	ErrInvalidTransition = errors.New("dispatcher: invalid transition")

	// ErrContractViolation indicates a dispatch at a point where the
	// protocol forbids it.
	ErrContractViolation = errors.New("dispatcher: contract violation")
)

// ContractError is the panic value raised when a handler breaks the dispatch
// protocol, for instance by dispatching from Finalize.
type ContractError struct {
	Op     string
	Status Status
	Kind   command.Kind
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("dispatcher: %s of %s not allowed while %s", e.Op, e.Kind, e.Status)
}

// Unwrap returns ErrContractViolation.
func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

// Fatal reports that the error must not be recovered by handlers,
// including those that run foreign code such as scripts.
func (e *ContractError) Fatal() bool { return true }

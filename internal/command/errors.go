package command

import "errors"

// Command errors.
var (
	// ErrInvalidReference indicates a malformed A1 cell or zone reference.
	ErrInvalidReference = errors.New("command: invalid reference")

	// ErrMissingType indicates an encoded command without a "type" field.
	ErrMissingType = errors.New("command: missing type")

	// ErrUnknownKind indicates an encoded command of an unregistered kind.
	ErrUnknownKind = errors.New("command: unknown kind")

	// ErrMalformed indicates an encoded payload that is not valid JSON.
	ErrMalformed = errors.New("command: malformed payload")
)

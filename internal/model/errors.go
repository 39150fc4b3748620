package model

import "errors"

// Errors returned by the model.
var (
	// ErrInvalidGetter is returned by New when a plugin declares a getter it
	// does not implement.
	ErrInvalidGetter = errors.New("model: invalid getter")

	// ErrDuplicateGetter is returned by New when two plugins declare the
	// same getter.
	ErrDuplicateGetter = errors.New("model: duplicate getter")

	// ErrUnknownGetter is returned when no plugin declares a getter.
	ErrUnknownGetter = errors.New("model: unknown getter")

	// ErrGetterType is returned by Lookup on a signature mismatch.
	ErrGetterType = errors.New("model: getter type mismatch")

	// ErrInvalidPlugin is returned by New for a spec without constructor.
	ErrInvalidPlugin = errors.New("model: invalid plugin")
)

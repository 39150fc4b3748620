package script

import "errors"

// Errors returned by scripts and the loader.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("script: state is closed")

	// ErrNoFunction is returned when calling a global that is not a
	// function.
	ErrNoFunction = errors.New("script: no such function")

	// ErrInvalidManifest is returned for a plugin.json that cannot be used.
	ErrInvalidManifest = errors.New("script: invalid manifest")

	// ErrNoEntryPoint is returned for a plugin directory without a main
	// file.
	ErrNoEntryPoint = errors.New("script: no entry point")
)

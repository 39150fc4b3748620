package session

import "errors"

// Session errors.
var (
	// ErrInvalidMessage indicates a message that cannot be decoded.
	ErrInvalidMessage = errors.New("session: invalid message")

	// ErrNotJoined indicates an operation requiring a joined client.
	ErrNotJoined = errors.New("session: client not joined")

	// ErrReplaying indicates a send while initial messages are replayed.
	ErrReplaying = errors.New("session: cannot send while replaying initial messages")

	// ErrClosed indicates a transport that was closed.
	ErrClosed = errors.New("session: transport closed")
)

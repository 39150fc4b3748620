package session

// Transport carries messages between the clients of a document and its
// relay. Delivery is asynchronous and ordered per document.
type Transport interface {
	// Send forwards msg to the relay.
	Send(msg Message) error

	// OnMessage registers fn to receive the messages broadcast to the
	// document. The returned function unsubscribes.
	OnMessage(clientID string, fn func(Message)) (unsubscribe func())

	// Leave stops delivering messages to clientID.
	Leave(clientID string)
}

// Logger is the logging interface used by the session.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

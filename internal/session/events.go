package session

import (
	"slices"

	"github.com/dshills/gridsync/internal/command"
	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/event"
)

// EventKind identifies a session event.
type EventKind uint8

const (
	// EventNewLocalStateUpdate follows the save of a local revision.
	EventNewLocalStateUpdate EventKind = iota
	// EventRemoteRevisionReceived follows the replay of a revision of
	// another client.
	EventRemoteRevisionReceived
	// EventRevisionUndone follows the cancellation of a revision.
	EventRevisionUndone
	// EventRevisionRedone follows the restoration of a revision.
	EventRevisionRedone
	// EventPendingRevisionsDropped follows the discard of pending local
	// revisions transformed into nothing.
	EventPendingRevisionsDropped
	// EventSnapshotCreated follows the compaction of the revision log.
	EventSnapshotCreated
	// EventUnexpectedRevision reports a message issued on top of another
	// revision than the local one. The message was not applied.
	EventUnexpectedRevision
	// EventCollaborative follows every applied message.
	EventCollaborative
)

// String returns a string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventNewLocalStateUpdate:
		return "new-local-state-update"
	case EventRemoteRevisionReceived:
		return "remote-revision-received"
	case EventRevisionUndone:
		return "revision-undone"
	case EventRevisionRedone:
		return "revision-redone"
	case EventPendingRevisionsDropped:
		return "pending-revisions-dropped"
	case EventSnapshotCreated:
		return "snapshot-created"
	case EventUnexpectedRevision:
		return "unexpected-revision"
	case EventCollaborative:
		return "collaborative-event-received"
	default:
		return "unknown"
	}
}

// Event is published by a Session.
type Event struct {
	Kind EventKind

	// RevisionID is the revision concerned by the event.
	RevisionID string
	// RevisionIDs lists dropped pending revisions.
	RevisionIDs []string
	// ClientID is the author of the revision or message.
	ClientID string

	// Commands are the replayed remote commands.
	Commands []command.Command
	// Changes are the writes made applying the event.
	Changes tracking.Changes

	// Message is the message that caused the event, if any.
	Message *Message
}

// ForKinds is a subscription option keeping only the given event kinds.
func ForKinds(kinds ...EventKind) event.Option[Event] {
	return event.WithFilter(func(e Event) bool {
		return slices.Contains(kinds, e.Kind)
	})
}

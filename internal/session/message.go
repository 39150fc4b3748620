package session

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/gridsync/internal/command"
)

// MessageVersion is the protocol version stamped on every message.
const MessageVersion = 1

// DefaultRevisionID is the revision id of a new document.
const DefaultRevisionID = "START_REVISION"

// MessageType identifies a collaborative message.
type MessageType string

// Message types.
const (
	MessageRemoteRevision  MessageType = "REMOTE_REVISION"
	MessageRevisionUndone  MessageType = "REVISION_UNDONE"
	MessageRevisionRedone  MessageType = "REVISION_REDONE"
	MessageClientJoined    MessageType = "CLIENT_JOINED"
	MessageClientLeft      MessageType = "CLIENT_LEFT"
	MessageClientMoved     MessageType = "CLIENT_MOVED"
	MessageSnapshot        MessageType = "SNAPSHOT"
	MessageSnapshotCreated MessageType = "SNAPSHOT_CREATED"
)

// Message is the unit exchanged through a Transport.
type Message struct {
	Type    MessageType `json:"type"`
	Version int         `json:"version"`

	// ServerRevisionID is the revision the message was issued on top of.
	ServerRevisionID string `json:"serverRevisionId,omitempty"`
	// NextRevisionID is the revision the message creates.
	NextRevisionID string `json:"nextRevisionId,omitempty"`

	ClientID string       `json:"clientId,omitempty"`
	Commands command.List `json:"commands,omitempty"`

	UndoneRevisionID string `json:"undoneRevisionId,omitempty"`
	RedoneRevisionID string `json:"redoneRevisionId,omitempty"`

	Client *Client        `json:"client,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// IsRevision reports whether the message creates a revision in the
// server log.
func (m Message) IsRevision() bool {
	switch m.Type {
	case MessageRemoteRevision, MessageRevisionUndone, MessageRevisionRedone:
		return true
	}
	return false
}

// IsOrdered reports whether the message must be issued on top of the
// current server revision.
func (m Message) IsOrdered() bool {
	return m.IsRevision() || m.Type == MessageSnapshot || m.Type == MessageSnapshotCreated
}

// Encode returns the JSON form of m.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

// DecodeMessage parses a message produced by Encode.
func DecodeMessage(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, fmt.Errorf("%w: invalid json", ErrInvalidMessage)
	}
	if !gjson.GetBytes(data, "type").Exists() {
		return Message{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return m, nil
}

// PeekType returns the message type without decoding the commands.
func PeekType(data []byte) MessageType {
	return MessageType(gjson.GetBytes(data, "type").String())
}

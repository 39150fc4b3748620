package session

import (
	"github.com/google/uuid"
)

// LocalClientID identifies the client of a session that never joined.
const LocalClientID = "local"

// ClientPosition is the cell a client has selected.
type ClientPosition struct {
	SheetID string `json:"sheetId"`
	Col     int    `json:"col"`
	Row     int    `json:"row"`
}

// Client is a participant of a collaborative session.
type Client struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Position *ClientPosition `json:"position,omitempty"`
}

// IDGenerator creates revision ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random v4 UUIDs.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

// NewID implements IDGenerator.
func (f IDFunc) NewID() string {
	return f()
}

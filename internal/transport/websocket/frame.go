// Package websocket connects a client session to a gridsync server.
//
// The server writes one frame per message, as JSON. The first frame of a
// connection is an INIT frame carrying the backlog of the document; the
// following ones are session messages. The client writes session messages.
package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
)

// FrameInit is the type of the first frame of a connection.
const FrameInit = "INIT"

// InitFrame carries the backlog of a document to a new connection.
type InitFrame struct {
	Type string `json:"type"`
	relay.Backlog
}

// EncodeInit returns the INIT frame of b.
func EncodeInit(b *relay.Backlog) ([]byte, error) {
	f := InitFrame{Type: FrameInit}
	if b != nil {
		f.Backlog = *b
	}
	if f.Messages == nil {
		f.Messages = []session.Message{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode init frame: %w", err)
	}
	return data, nil
}

// DecodeInit parses an INIT frame.
func DecodeInit(data []byte) (*relay.Backlog, error) {
	if t := gjson.GetBytes(data, "type").String(); t != FrameInit {
		return nil, fmt.Errorf("%w: got %q frame, want %s", ErrHandshake, t, FrameInit)
	}
	var f InitFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return &f.Backlog, nil
}

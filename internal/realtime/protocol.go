// Package realtime multiplexes live document sessions over websockets: one
// room per document, a shared document instance per room, and debounced
// snapshot persistence through the collaboration hooks.
package realtime

import (
	"encoding/json"

	"inkwell/api/internal/crdt"
)

type MessageType string

const (
	// MessageSync carries the full document state plus the current
	// awareness snapshot; sent to a peer when it joins.
	MessageSync MessageType = "sync"
	// MessageUpdate carries one encoded document update.
	MessageUpdate MessageType = "update"
	// MessageAwareness carries presence changes (cursor moves, joins,
	// leaves).
	MessageAwareness MessageType = "awareness"
)

// Message is the JSON envelope exchanged with clients. Update bytes are
// base64-encoded by encoding/json.
type Message struct {
	Type     MessageType              `json:"type"`
	ClientID string                   `json:"clientId,omitempty"`
	Update   []byte                   `json:"update,omitempty"`
	States   map[string]crdt.Presence `json:"states,omitempty"`
	Cursor   json.RawMessage          `json:"cursor,omitempty"`
}

func encodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

package streaming

import (
	"encoding/json"

	"github.com/shadowhunters/boardview/pkg/core"
)

// Inbound message types pushed by the game server.
const (
	TypeInit     = "init"
	TypeUpdate   = "update"
	TypeActivate = "activate"
)

// Outbound message types streamed to a renderer.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeSnapshot     = "snapshot"
	TypeChangeSet    = "change_set"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the receiver's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a new viewing session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// SnapshotPayload carries a raw inbound snapshot with the sequence number
// of the change set it produced.
type SnapshotPayload struct {
	Seq      uint64         `json:"seq"`
	Snapshot *core.Snapshot `json:"snapshot"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

package node

import (
	"encoding/json"
	"time"
)

// MsgType tags each frame on a node's WebSocket.
type MsgType string

// Wire message types. The strings are the protocol; device firmware
// matches on them.
const (
	MsgPairRequest  MsgType = "pair_request"
	MsgPairResponse MsgType = "pair_response"
	MsgHeartbeat    MsgType = "heartbeat"
	MsgHeartbeatAck MsgType = "heartbeat_ack"
	MsgCapabilities MsgType = "capabilities"
	MsgToolRequest  MsgType = "tool_request"
	MsgToolResponse MsgType = "tool_response"
	MsgError        MsgType = "error"
)

// Envelope frames every message on the socket. ID correlates a
// tool_response with its tool_request; other message types leave it
// empty.
type Envelope struct {
	Type      MsgType         `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// newEnvelope stamps a payload for the wire. A nil payload yields an
// envelope without a payload field.
func newEnvelope(t MsgType, id string, payload any) (Envelope, error) {
	env := Envelope{Type: t, ID: id, Timestamp: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = raw
	}
	return env, nil
}

// Capability names a device feature the server can surface as a tool.
type Capability string

// Capabilities a device may declare after pairing.
const (
	CapAudio        Capability = "audio"
	CapCamera       Capability = "camera"
	CapClipboard    Capability = "clipboard"
	CapFilesystem   Capability = "filesystem"
	CapLocation     Capability = "location"
	CapNotification Capability = "notification"
	CapScreen       Capability = "screen"
)

// Pairing handshake. The device opens the socket and presents its
// token; the server accepts or rejects.

// PairRequest is the device's opening message.
type PairRequest struct {
	Token      string `json:"token"`
	Platform   string `json:"platform"`
	DeviceName string `json:"device_name"`
}

// PairResponse is the server's verdict. Reason is set on reject,
// DeviceID on accept.
type PairResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// CapabilitiesDeclaration follows a successful pairing and drives which
// device tools get registered.
type CapabilitiesDeclaration struct {
	Capabilities []Capability `json:"capabilities"`
}

// HeartbeatPayload carries whatever telemetry the device chooses to
// attach.
type HeartbeatPayload struct {
	BatteryPct *int `json:"battery_pct,omitempty"`
}

// Tool invocation. The server forwards an agent tool call to the
// device and waits for the correlated response.

// ToolRequest asks the device to run one of its capabilities.
type ToolRequest struct {
	ToolName string `json:"tool_name"`
	// Arguments is the raw JSON object from the model's tool call.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResponse is the device's reply to a correlated ToolRequest.
type ToolResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`

	// Base64Data returns binary results such as camera frames;
	// MimeType describes the bytes.
	Base64Data string `json:"base64_data,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

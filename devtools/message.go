package devtools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jilio/laco"
)

// MessageType discriminates wire messages.
type MessageType string

const (
	// TypeInit carries the snapshot a client starts with.
	TypeInit MessageType = "INIT"
	// TypeAction carries a committed transition.
	TypeAction MessageType = "ACTION"
	// TypeDispatch carries a request from the monitor to the client.
	TypeDispatch MessageType = "DISPATCH"
)

// InitLabel is the label of the first timeline entry.
const InitLabel = "@@INIT"

var (
	// ErrBridgeClosed is returned when writing to a closed connection.
	ErrBridgeClosed = errors.New("devtools: bridge closed")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("devtools: session not found")
	// ErrIndexOutOfRange is returned when jumping past the timeline.
	ErrIndexOutOfRange = errors.New("devtools: timeline index out of range")
)

// Message is the envelope exchanged between clients and the monitor.
type Message struct {
	Type       MessageType     `json:"type"`
	InstanceID string          `json:"instanceId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Action     *Action         `json:"action,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	State      string          `json:"state,omitempty"`
}

// Action names the transition an ACTION message records.
type Action struct {
	Type string `json:"type"`
}

// DispatchPayload is the payload of a DISPATCH message.
type DispatchPayload struct {
	Type string `json:"type"`
}

// encodeSnapshot marshals a registry snapshot. JSON object keys are the
// decimal store ids, which is what laco.Registry.Restore expects back.
func encodeSnapshot(snapshot map[int]any) (json.RawMessage, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("devtools: encode snapshot: %w", err)
	}
	return data, nil
}

// jumpMessage builds the DISPATCH message asking for a jump to state.
func jumpMessage(kind string, state json.RawMessage) (Message, error) {
	payload, err := json.Marshal(DispatchPayload{Type: kind})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeDispatch, Payload: payload, State: string(state)}, nil
}

// bridgeMessage converts an inbound DISPATCH into a laco.BridgeMessage.
func bridgeMessage(msg Message) (laco.BridgeMessage, bool) {
	if msg.Type != TypeDispatch {
		return laco.BridgeMessage{}, false
	}
	var p DispatchPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return laco.BridgeMessage{}, false
	}
	return laco.BridgeMessage{Type: p.Type, State: msg.State}, true
}

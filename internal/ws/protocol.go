package ws

import (
	"encoding/json"
	"fmt"
)

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

type upstreamMessage struct {
	Type  string  `json:"type"`
	Group string  `json:"group"`
	AckID *uint64 `json:"ackId"`
}

// parseUpstreamMessage parses a JSON upstream message.
func parseUpstreamMessage(data []byte) (any, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	switch msg.Type {
	case "joinGroup":
		return &joinGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: msg.Group, ackID: msg.AckID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

// DownstreamMessage is every message the server sends. Unused fields are omitted.
type DownstreamMessage struct {
	Type         string          `json:"type"`
	Event        string          `json:"event,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	AckID        *uint64         `json:"ackId,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Error        string          `json:"error,omitempty"`
	Group        string          `json:"group,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func encode(msg DownstreamMessage) []byte {
	data, _ := json.Marshal(msg)
	return data
}

func buildConnectedMessage(connectionID string) []byte {
	return encode(DownstreamMessage{Type: "system", Event: "connected", ConnectionID: connectionID})
}

func buildAckMessage(ackID uint64, success bool, reason string) []byte {
	return encode(DownstreamMessage{Type: "ack", AckID: &ackID, Success: &success, Error: reason})
}

func buildDataMessage(group string, payload json.RawMessage) []byte {
	return encode(DownstreamMessage{Type: "message", Group: group, Data: payload})
}

func buildPongMessage() []byte {
	return encode(DownstreamMessage{Type: "pong"})
}

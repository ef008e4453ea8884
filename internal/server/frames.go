package server

import "github.com/floorcast/floorcast/internal/domain"

// Subscription names the session manager accepts.
const SubscriptionEntityStates = "entity_states"

// ServerFrame is an outbound frame to a subscriber. Exactly one payload
// field is populated, chosen by Type.
type ServerFrame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Registry  *domain.Registry `json:"registry,omitempty"`
	State     domain.StateMap  `json:"state,omitempty"`
	Data      *StateChange     `json:"data,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// StateChange is the payload of an entity.state_change frame. ID is the
// event serial; subscribers dedupe across the snapshot join point with it.
// Timestamp is unix milliseconds.
type StateChange struct {
	ID        int64   `json:"id"`
	Timestamp int64   `json:"timestamp"`
	EntityID  string  `json:"entity_id"`
	State     *string `json:"state"`
	Unit      *string `json:"unit"`
}

// ClientFrame is an inbound frame from a subscriber. Data carries the
// subscription name for subscribe/unsubscribe.
type ClientFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

const (
	frameConnected   = "connected"
	frameRegistry    = "registry"
	frameSnapshot    = "snapshot"
	frameStateChange = "entity.state_change"
	framePong        = "pong"
	frameError       = "error"

	framePing        = "ping"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
)
